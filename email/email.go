// Package email sends the invitation email with an inline image via pluggable providers.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"

	"october-automation/pkg/notifier"
)

// Address is an email address with an optional display name.
type Address struct {
	Email string
	Name  string
}

// Attachment is a base64-encoded file attached to a message.
type Attachment struct {
	Content     string // base64 payload
	Type        string // MIME type
	Filename    string
	Disposition string // "inline" or "attachment"
	ContentID   string // referenced from HTML as cid:<ContentID>
}

// Message is one email to one recipient.
type Message struct {
	From        Address
	To          Address
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Response is the provider's answer to a send.
type Response struct {
	Headers    http.Header
	Body       string
	StatusCode int
}

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send submits one message. A non-nil Response may accompany an error
	// when the provider rejected the message.
	Send(ctx context.Context, msg *Message) (*Response, error)
}

// APIError indicates the provider rejected a message.
type APIError struct {
	Provider   string
	Body       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsAPIError checks if an error is a provider APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// Result records the outcome of one recipient's send.
type Result struct {
	Err        error
	Headers    http.Header
	Recipient  notifier.Recipient
	Body       string
	StatusCode int
}

// Sender sends the invitation using a pluggable provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	from     Address
	subject  string
	body     string
}

// New creates a new invitation sender. Every recipient receives the same
// subject and HTML body.
func New(provider Provider, logger *slog.Logger, from Address, subject, htmlBody string) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
		from:     from,
		subject:  subject,
		body:     htmlBody,
	}
}

// Send submits one message per recipient, in order, each carrying the asset
// as an inline attachment. A failed recipient does not stop the others; the
// returned error joins every failure.
func (s *Sender) Send(ctx context.Context, recipients []notifier.Recipient, asset *Asset) ([]Result, error) {
	if asset == nil {
		return nil, errors.New("no inline asset")
	}

	html, err := EnsureInlineImage(s.body, asset.ContentID)
	if err != nil {
		return nil, fmt.Errorf("prepare body: %w", err)
	}
	attachment := asset.Attachment()

	s.logger.Info("Sending invitations",
		"recipients", len(recipients),
		"subject", s.subject,
		"content_id", asset.ContentID,
		"attachment_bytes", len(asset.Data))

	results := make([]Result, 0, len(recipients))
	var errs []error
	for i, rcpt := range recipients {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		res := Result{Recipient: rcpt}
		if !isValidEmail(rcpt.Email) {
			res.Err = fmt.Errorf("invalid recipient address %q", rcpt.Email)
			s.logger.Warn("Skipping invalid recipient", "index", i, "email", rcpt.Email)
			results = append(results, res)
			errs = append(errs, res.Err)
			continue
		}

		msg := &Message{
			From:        s.from,
			To:          Address{Email: rcpt.Email, Name: rcpt.Name},
			Subject:     s.subject,
			HTML:        html,
			Attachments: []Attachment{attachment},
		}

		resp, err := s.provider.Send(ctx, msg)
		if resp != nil {
			res.StatusCode = resp.StatusCode
			res.Body = resp.Body
			res.Headers = resp.Headers
		}
		if err != nil {
			res.Err = fmt.Errorf("send to %s: %w", rcpt.Email, err)
			errs = append(errs, res.Err)
			s.logger.Error("Invitation send failed",
				"index", i,
				"to", rcpt.Email,
				"status_code", res.StatusCode,
				"body", res.Body,
				"error", err)
		} else {
			s.logger.Info("Invitation sent",
				"index", i,
				"to", rcpt.Email,
				"status_code", res.StatusCode,
				"body", res.Body,
				"headers", res.Headers)
		}
		results = append(results, res)
	}

	return results, errors.Join(errs...)
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
