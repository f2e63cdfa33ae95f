package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const searchResponse = `{
  "data": [
    {"id": "1", "text": "loving october.app", "author_id": "u1", "created_at": "2024-05-01T10:00:00.000Z"},
    {"id": "2", "text": "october.app is neat", "author_id": "u2", "created_at": "2024-05-01T11:00:00.000Z"}
  ],
  "includes": {"users": [
    {"id": "u1", "name": "Ada", "username": "ada"},
    {"id": "u2", "name": "Bob", "username": "bob"}
  ]}
}`

// clearEnv keeps the host environment out of config loading.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SEARCH_QUERY", "POLL_SCHEDULE", "TWITTER_BEARER_TOKEN", "SLACK_WEBHOOK_URL",
		"SLACK_CHANNEL", "STORAGE_DRIVER", "STORAGE_PATH", "STORAGE_BUCKET", "REDIS_ADDR",
		"REDIS_PASSWORD", "REDIS_DB", "MAIL_PROVIDER", "SENDGRID_API_KEY",
		"GOOGLE_CREDENTIALS_JSON", "MAIL_FROM", "MAIL_RECIPIENTS", "INVITE_ASSET", "PORT", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "no command", args: nil, wantErr: true},
		{name: "unknown command", args: []string{"tweet"}, wantErr: true},
		{name: "help", args: []string{"help"}},
		{name: "flag help", args: []string{"poll", "-h"}},
		{name: "bad flag", args: []string{"invite", "-nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), tt.args, &out)
			if (err != nil) != tt.wantErr {
				t.Errorf("run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunPollDryRunThenReal(t *testing.T) {
	clearEnv(t)

	var searches int
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		searches++
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchResponse))
	}))
	defer api.Close()

	var webhookCalls int
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookCalls++
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	dir := t.TempDir()
	record := filepath.Join(dir, "tweets.json")
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, `
twitter:
  bearer_token: test-token
  base_url: `+api.URL+`
slack:
  webhook_url: `+hook.URL+`
storage:
  driver: file
  path: `+record+`
`)

	// Dry runs preview every post and leave the record alone.
	for i := range 2 {
		var out bytes.Buffer
		if err := run(context.Background(), []string{"poll", "-config", cfgPath, "-dry-run"}, &out); err != nil {
			t.Fatalf("dry run %d error = %v\n%s", i, err, out.String())
		}
		if got := strings.Count(out.String(), "MOCK NOTIFICATION"); got != 2 {
			t.Errorf("dry run %d previewed %d posts, want 2", i, got)
		}
	}
	if _, err := os.Stat(record); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote the record (stat err = %v)", err)
	}
	if webhookCalls != 0 {
		t.Errorf("dry run called the webhook %d times", webhookCalls)
	}

	// The real run still delivers both posts, then records them.
	for i, want := range []int{2, 2} {
		var out bytes.Buffer
		if err := run(context.Background(), []string{"poll", "-config", cfgPath}, &out); err != nil {
			t.Fatalf("run %d error = %v\n%s", i, err, out.String())
		}
		if webhookCalls != want {
			t.Errorf("after run %d webhook calls = %d, want %d", i, webhookCalls, want)
		}
	}

	if searches != 4 {
		t.Errorf("search API called %d times, want 4", searches)
	}

	data, err := os.ReadFile(record)
	if err != nil {
		t.Fatalf("record not written: %v", err)
	}
	var doc struct {
		Posts map[string]json.RawMessage `json:"posts"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if len(doc.Posts) != 2 || doc.Posts["1"] == nil || doc.Posts["2"] == nil {
		t.Errorf("record posts = %v", doc.Posts)
	}
}

func TestRunPollRequiresToken(t *testing.T) {
	clearEnv(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"poll", "-dry-run"}, &out); err == nil {
		t.Error("expected error without a bearer token")
	}
}

func TestRunInviteDryRun(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	asset := filepath.Join(dir, "october.jpg")
	writeFile(t, asset, "\xff\xd8\xff\xe0\x00\x10JFIF\x00")

	t.Setenv("INVITE_ASSET", asset)
	t.Setenv("MAIL_RECIPIENTS", "a@x.com, b@x.com")

	var out bytes.Buffer
	if err := run(context.Background(), []string{"invite", "-dry-run"}, &out); err != nil {
		t.Fatalf("run() error = %v\n%s", err, out.String())
	}
	if got := strings.Count(out.String(), "MOCK EMAIL"); got != 2 {
		t.Errorf("sent %d emails, want 2", got)
	}
}

func TestRunInviteMissingAsset(t *testing.T) {
	clearEnv(t)
	t.Setenv("INVITE_ASSET", filepath.Join(t.TempDir(), "missing.jpg"))
	t.Setenv("MAIL_RECIPIENTS", "a@x.com")

	var out bytes.Buffer
	if err := run(context.Background(), []string{"invite", "-dry-run"}, &out); err == nil {
		t.Error("expected error for missing asset")
	}
}
