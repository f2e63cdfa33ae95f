// Package chat delivers post notifications to a chat incoming webhook.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"october-automation/pkg/notifier"
)

// Notification is the incoming-webhook payload.
type Notification struct {
	Username string `json:"username"`
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	IconURL  string `json:"icon_url"`
}

// Style is the fixed presentation applied to every notification.
type Style struct {
	Username string
	Channel  string
	IconURL  string
}

// Format builds the notification for a post. Post text arrives from the
// search API already entity-encoded and is passed through as is; the author
// name is not encoded and gets escaped here.
func (s Style) Format(post *notifier.Post) Notification {
	return Notification{
		Username: s.Username,
		Channel:  s.Channel,
		Text:     fmt.Sprintf("(<%s|Open Tweet>) *%s:* %s", post.URL, escape(post.AuthorName), post.Text),
		IconURL:  s.IconURL,
	}
}

// escape applies the three control-character escapes Slack mrkdwn requires.
func escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// StatusError indicates the webhook answered with a non-2xx status.
type StatusError struct {
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

// IsStatusError checks if an error is a webhook StatusError.
func IsStatusError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

// Webhook posts notifications to an incoming-webhook URL.
type Webhook struct {
	client *http.Client
	logger *slog.Logger
	url    string
	style  Style
}

// NewWebhook creates a new webhook notifier.
func NewWebhook(client *http.Client, webhookURL string, style Style, logger *slog.Logger) *Webhook {
	return &Webhook{
		client: client,
		logger: logger,
		url:    webhookURL,
		style:  style,
	}
}

// Notify sends exactly one notification for the post.
func (w *Webhook) Notify(ctx context.Context, post *notifier.Post) error {
	data, err := json.Marshal(w.style.Format(post))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	w.logger.Info("Webhook request starting",
		"method", "POST",
		"channel", w.style.Channel,
		"post_id", post.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := w.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		w.logger.Warn("Webhook request failed",
			"post_id", post.ID,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			w.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		w.logger.Warn("Webhook returned non-2xx status", "post_id", post.ID, "status_code", resp.StatusCode)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	w.logger.Info("Webhook request completed",
		"post_id", post.ID,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	return nil
}
