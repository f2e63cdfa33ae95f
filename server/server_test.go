package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"october-automation/poll"
)

type fakePoller struct {
	err     error
	res     *poll.Result
	queries []string
}

func (f *fakePoller) Run(ctx context.Context, query string) (*poll.Result, error) {
	f.queries = append(f.queries, query)
	return f.res, f.err
}

func newTestServer(p Poller) *Server {
	return New(&Config{
		Poller: p,
		Query:  "october.app",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		pollErr    error
		wantStatus int
		wantPolls  int
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "health wrong method", method: http.MethodPost, path: "/health", wantStatus: http.StatusMethodNotAllowed},
		{name: "poll", method: http.MethodPost, path: "/pollz", wantStatus: http.StatusOK, wantPolls: 1},
		{name: "poll wrong method", method: http.MethodGet, path: "/pollz", wantStatus: http.StatusMethodNotAllowed},
		{name: "poll failure", method: http.MethodPost, path: "/pollz", pollErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantPolls: 1},
		{name: "unknown path", method: http.MethodGet, path: "/subscribe", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePoller{res: &poll.Result{Fetched: 3, Notified: 2, Skipped: 1, Total: 5}, err: tt.pollErr}
			s := newTestServer(p)

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if len(p.queries) != tt.wantPolls {
				t.Errorf("poller called %d times, want %d", len(p.queries), tt.wantPolls)
			}
		})
	}
}

func TestHealthBody(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakePoller{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := rec.Body.String(); got != `{"status":"healthy"}` {
		t.Errorf("body = %q", got)
	}
}

func TestPollReturnsResult(t *testing.T) {
	p := &fakePoller{res: &poll.Result{Fetched: 3, Notified: 2, Skipped: 1, Total: 5}}
	rec := httptest.NewRecorder()
	newTestServer(p).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pollz", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got poll.Result
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != *p.res {
		t.Errorf("result = %+v, want %+v", got, *p.res)
	}
	if p.queries[0] != "october.app" {
		t.Errorf("query = %q", p.queries[0])
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	s := newTestServer(&fakePoller{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
