package email

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"october-automation/pkg/notifier"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// jpegHeader is enough for content sniffing to report image/jpeg.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func testAsset(t *testing.T) *Asset {
	t.Helper()
	a, err := NewAsset("october.jpg", "banner", jpegHeader)
	if err != nil {
		t.Fatalf("NewAsset() error = %v", err)
	}
	return a
}

// failingProvider rejects messages to the listed addresses.
type failingProvider struct {
	sent   []*Message
	failTo map[string]bool
}

func (p *failingProvider) Send(ctx context.Context, msg *Message) (*Response, error) {
	p.sent = append(p.sent, msg)
	if p.failTo[msg.To.Email] {
		return &Response{StatusCode: http.StatusBadRequest, Body: "rejected"},
			&APIError{Provider: "fake", StatusCode: http.StatusBadRequest, Body: "rejected"}
	}
	return &Response{StatusCode: http.StatusAccepted, Headers: http.Header{"X-Message-Id": {"abc"}}}, nil
}

func TestSendSingleRecipientScenario(t *testing.T) {
	provider := NewMockProvider(testLogger())
	sender := New(provider, testLogger(), Address{Email: "team@october.news"}, DefaultSubject, InvitationBody("banner", ""))

	results, err := sender.Send(context.Background(), []notifier.Recipient{{Email: "a@x.com"}}, testAsset(t))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sent := provider.Sent()
	if len(sent) != 1 {
		t.Fatalf("provider called %d times, want 1", len(sent))
	}
	msg := sent[0]
	if msg.To.Email != "a@x.com" {
		t.Errorf("To = %q, want a@x.com", msg.To.Email)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].ContentID != "banner" {
		t.Fatalf("attachments = %+v, want one with content-id banner", msg.Attachments)
	}
	if msg.Attachments[0].Disposition != "inline" {
		t.Errorf("disposition = %q, want inline", msg.Attachments[0].Disposition)
	}
	if len(results) != 1 || results[0].StatusCode != http.StatusAccepted || results[0].Err != nil {
		t.Errorf("results = %+v", results)
	}
}

func TestSendIdenticalMessagesInOrder(t *testing.T) {
	provider := NewMockProvider(testLogger())
	sender := New(provider, testLogger(), Address{Email: "team@october.news", Name: "Team October"}, "Subject", "<p>hi</p>")
	asset := testAsset(t)

	recipients := []notifier.Recipient{{Email: "one@x.com"}, {Email: "two@x.com"}, {Email: "one@x.com"}}
	if _, err := sender.Send(context.Background(), recipients, asset); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sent := provider.Sent()
	if len(sent) != len(recipients) {
		t.Fatalf("sent %d messages, want %d (no deduplication)", len(sent), len(recipients))
	}
	for i, msg := range sent {
		if msg.To.Email != recipients[i].Email {
			t.Errorf("message %d to %q, want %q", i, msg.To.Email, recipients[i].Email)
		}
		if msg.Subject != sent[0].Subject || msg.HTML != sent[0].HTML {
			t.Errorf("message %d differs from the first beyond the recipient", i)
		}
		a := msg.Attachments[0]
		if a.ContentID != "banner" || a.Content != asset.Encoded {
			t.Errorf("message %d attachment = %+v", i, a)
		}
		if !strings.Contains(msg.HTML, "cid:banner") {
			t.Errorf("message %d body does not reference the inline image", i)
		}
	}
}

func TestSendContinuesAfterFailure(t *testing.T) {
	provider := &failingProvider{failTo: map[string]bool{"bad@x.com": true}}
	sender := New(provider, testLogger(), Address{Email: "team@october.news"}, "Subject", InvitationBody("banner", ""))

	recipients := []notifier.Recipient{{Email: "bad@x.com"}, {Email: "good@x.com"}}
	results, err := sender.Send(context.Background(), recipients, testAsset(t))
	if err == nil {
		t.Fatal("expected joined error for failed recipient")
	}
	if !IsAPIError(err) {
		t.Errorf("expected APIError in chain, got %v", err)
	}
	if len(provider.sent) != 2 {
		t.Errorf("provider called %d times, want 2", len(provider.sent))
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Err == nil || results[0].StatusCode != http.StatusBadRequest || results[0].Body != "rejected" {
		t.Errorf("failed result = %+v", results[0])
	}
	if results[1].Err != nil || results[1].Headers.Get("X-Message-Id") != "abc" {
		t.Errorf("successful result = %+v", results[1])
	}
}

func TestSendInvalidRecipient(t *testing.T) {
	provider := NewMockProvider(testLogger())
	sender := New(provider, testLogger(), Address{Email: "team@october.news"}, "Subject", "<p>hi</p>")

	results, err := sender.Send(context.Background(), []notifier.Recipient{{Email: "not-an-address"}, {Email: "ok@x.com"}}, testAsset(t))
	if err == nil {
		t.Error("expected error for invalid recipient")
	}
	if len(provider.Sent()) != 1 {
		t.Errorf("provider called %d times, want 1", len(provider.Sent()))
	}
	if results[0].Err == nil {
		t.Error("invalid recipient should have an error result")
	}
}

func TestSendRequiresAsset(t *testing.T) {
	sender := New(NewMockProvider(testLogger()), testLogger(), Address{}, "s", "b")
	if _, err := sender.Send(context.Background(), []notifier.Recipient{{Email: "a@x.com"}}, nil); err == nil {
		t.Error("expected error without asset")
	}
}

func TestSendCancelled(t *testing.T) {
	provider := NewMockProvider(testLogger())
	sender := New(provider, testLogger(), Address{}, "s", "<p>b</p>")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sender.Send(ctx, []notifier.Recipient{{Email: "a@x.com"}}, testAsset(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
	if len(provider.Sent()) != 0 {
		t.Error("no message should be sent after cancellation")
	}
}

func TestLoadAsset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "october.jpg")
	if err := os.WriteFile(path, jpegHeader, 0o600); err != nil {
		t.Fatal(err)
	}

	a, err := LoadAsset(path, "banner")
	if err != nil {
		t.Fatalf("LoadAsset() error = %v", err)
	}
	if a.Filename != "october.jpg" {
		t.Errorf("Filename = %q", a.Filename)
	}
	if a.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg", a.ContentType)
	}
	decoded, err := base64.StdEncoding.DecodeString(a.Encoded)
	if err != nil {
		t.Fatalf("Encoded is not base64: %v", err)
	}
	if string(decoded) != string(jpegHeader) {
		t.Error("Encoded does not round-trip to the file bytes")
	}
}

func TestNewAssetSniffsUnknownExtension(t *testing.T) {
	a, err := NewAsset("banner.unknownext", "banner", jpegHeader)
	if err != nil {
		t.Fatal(err)
	}
	if a.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want sniffed image/jpeg", a.ContentType)
	}
}

func TestNewAssetErrors(t *testing.T) {
	if _, err := NewAsset("a.jpg", "banner", nil); err == nil {
		t.Error("expected error for empty asset")
	}
	if _, err := NewAsset("a.jpg", " ", jpegHeader); err == nil {
		t.Error("expected error for missing content-id")
	}
	if _, err := LoadAsset(filepath.Join(t.TempDir(), "missing.jpg"), "banner"); err == nil {
		t.Error("expected error for missing file")
	}
}
