package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultSendGridBaseURL is the SendGrid API host.
const DefaultSendGridBaseURL = "https://api.sendgrid.com"

// SendGridProvider sends emails via the SendGrid v3 mail API.
type SendGridProvider struct {
	client  *http.Client
	logger  *slog.Logger
	apiKey  string
	baseURL string
}

// NewSendGridProvider creates a new SendGrid email provider. An empty baseURL
// selects DefaultSendGridBaseURL.
func NewSendGridProvider(apiKey, baseURL string, logger *slog.Logger) *SendGridProvider {
	if baseURL == "" {
		baseURL = DefaultSendGridBaseURL
	}
	return &SendGridProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		apiKey:  apiKey,
		baseURL: baseURL,
	}
}

// sendGridRequest represents the v3 mail/send request body.
type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridContact           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	Attachments      []sendGridAttachment      `json:"attachments,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridContact `json:"to"`
}

type sendGridContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridAttachment struct {
	Content     string `json:"content"`
	Type        string `json:"type,omitempty"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition,omitempty"`
	ContentID   string `json:"content_id,omitempty"`
}

func newSendGridRequest(msg *Message) sendGridRequest {
	req := sendGridRequest{
		Personalizations: []sendGridPersonalization{{
			To: []sendGridContact{{Email: msg.To.Email, Name: msg.To.Name}},
		}},
		From:    sendGridContact{Email: msg.From.Email, Name: msg.From.Name},
		Subject: msg.Subject,
		Content: []sendGridContent{{Type: "text/html", Value: msg.HTML}},
	}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, sendGridAttachment{
			Content:     a.Content,
			Type:        a.Type,
			Filename:    a.Filename,
			Disposition: a.Disposition,
			ContentID:   a.ContentID,
		})
	}
	return req
}

// Send sends an email via the SendGrid API.
func (p *SendGridProvider) Send(ctx context.Context, msg *Message) (*Response, error) {
	jsonData, err := json.Marshal(newSendGridRequest(msg))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	p.logger.Info("SendGrid API request starting",
		"method", "POST",
		"endpoint", "v3/mail/send",
		"to", msg.To.Email,
		"subject", msg.Subject)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v3/mail/send", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	startTime := time.Now()
	resp, err := p.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		p.logger.Warn("SendGrid API request failed",
			"to", msg.To.Email,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, fmt.Errorf("sendgrid request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Headers:    resp.Header.Clone(),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn("SendGrid API returned non-2xx status",
			"status_code", resp.StatusCode,
			"to", msg.To.Email)
		return out, &APIError{Provider: "SendGrid", StatusCode: resp.StatusCode, Body: string(body)}
	}

	p.logger.Info("SendGrid API request completed",
		"endpoint", "v3/mail/send",
		"to", msg.To.Email,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	return out, nil
}
