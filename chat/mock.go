package chat

import (
	"context"
	"log/slog"

	"october-automation/pkg/notifier"
)

// MockNotifier logs notifications instead of posting them.
type MockNotifier struct {
	logger *slog.Logger
	style  Style
}

// NewMockNotifier creates a new mock notifier for dry runs.
func NewMockNotifier(style Style, logger *slog.Logger) *MockNotifier {
	return &MockNotifier{
		logger: logger,
		style:  style,
	}
}

// Notify logs the notification that would have been sent.
func (m *MockNotifier) Notify(ctx context.Context, post *notifier.Post) error {
	n := m.style.Format(post)
	m.logger.Info("MOCK NOTIFICATION",
		"channel", n.Channel,
		"username", n.Username,
		"post_id", post.ID,
		"text", n.Text)
	return nil
}
