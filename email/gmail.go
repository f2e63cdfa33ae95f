package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
)

// GmailProvider sends emails via Gmail API.
type GmailProvider struct {
	service *gmail.Service
	logger  *slog.Logger
}

// NewGmailProvider creates a new Gmail email provider.
func NewGmailProvider(service *gmail.Service, logger *slog.Logger) *GmailProvider {
	return &GmailProvider{
		service: service,
		logger:  logger,
	}
}

// sanitizeEmailHeader removes newlines and control characters to prevent header injection.
// RFC 5322 headers are newline-delimited, so any newline in a header value
// allows an attacker to inject arbitrary headers or body content.
func sanitizeEmailHeader(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func formatAddress(a Address) string {
	addr := mail.Address{Name: sanitizeEmailHeader(a.Name), Address: sanitizeEmailHeader(a.Email)}
	return addr.String()
}

// buildMIME renders msg as a multipart/related message: the HTML part first,
// then each attachment with its Content-ID so the body can reference it.
func buildMIME(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	buf.WriteString("MIME-Version: 1.0\r\n")
	if msg.From.Email != "" {
		buf.WriteString(fmt.Sprintf("From: %s\r\n", formatAddress(msg.From)))
	}
	buf.WriteString(fmt.Sprintf("To: %s\r\n", formatAddress(msg.To)))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", sanitizeEmailHeader(msg.Subject))))
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/related; boundary=%q\r\n\r\n", w.Boundary()))

	htmlPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=utf-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, fmt.Errorf("create html part: %w", err)
	}
	if err := writeWrapped(htmlPart, base64.StdEncoding.EncodeToString([]byte(msg.HTML))); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		filename := sanitizeEmailHeader(a.Filename)
		disposition := a.Disposition
		if disposition == "" {
			disposition = "attachment"
		}
		header := textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(a.Type, map[string]string{"name": filename})},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType(disposition, map[string]string{"filename": filename})},
		}
		if a.ContentID != "" {
			header.Set("Content-ID", "<"+sanitizeEmailHeader(a.ContentID)+">")
		}
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("create attachment part: %w", err)
		}
		if err := writeWrapped(part, a.Content); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), nil
}

// writeWrapped writes base64 text in 76-column lines (RFC 2045).
func writeWrapped(w io.Writer, s string) error {
	const lineLen = 76
	for len(s) > 0 {
		n := min(lineLen, len(s))
		if _, err := w.Write([]byte(s[:n] + "\r\n")); err != nil {
			return fmt.Errorf("write part: %w", err)
		}
		s = s[n:]
	}
	return nil
}

// Send sends an email via Gmail API.
// The From address is set by Gmail based on the authenticated account when empty.
func (g *GmailProvider) Send(ctx context.Context, msg *Message) (*Response, error) {
	raw, err := buildMIME(msg)
	if err != nil {
		return nil, err
	}
	encoded := base64.URLEncoding.EncodeToString(raw)

	g.logger.Info("Gmail API request starting",
		"method", "POST",
		"endpoint", "users.messages.send",
		"to", msg.To.Email,
		"subject", msg.Subject)

	startTime := time.Now()
	sent, err := g.service.Users.Messages.Send("me", &gmail.Message{
		Raw: encoded,
	}).Context(ctx).Do()
	duration := time.Since(startTime)

	if err != nil {
		g.logger.Warn("Gmail API send failed",
			"to", msg.To.Email,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, fmt.Errorf("gmail send: %w", err)
	}

	g.logger.Info("Gmail API request completed",
		"endpoint", "users.messages.send",
		"to", msg.To.Email,
		"message_id", sent.Id,
		"duration_ms", duration.Milliseconds())

	return &Response{
		StatusCode: sent.HTTPStatusCode,
		Body:       sent.Id,
		Headers:    sent.Header,
	}, nil
}
