package email

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
)

// MockProvider is a mock email provider for local development and dry runs.
// It logs and keeps every message instead of sending it.
type MockProvider struct {
	logger *slog.Logger
	sent   []*Message
	mu     sync.Mutex
}

// NewMockProvider creates a new mock email provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Send logs the email instead of sending it.
func (m *MockProvider) Send(ctx context.Context, msg *Message) (*Response, error) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	m.logger.Info("MOCK EMAIL",
		"to", msg.To.Email,
		"subject", msg.Subject,
		"body_length", len(msg.HTML),
		"attachments", len(msg.Attachments))
	return &Response{StatusCode: http.StatusAccepted, Headers: http.Header{}}, nil
}

// Sent returns the messages received so far.
func (m *MockProvider) Sent() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Message, len(m.sent))
	copy(out, m.sent)
	return out
}
