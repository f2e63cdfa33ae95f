package email

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultSubject is the invitation subject line.
	DefaultSubject = "Your Invitation to October"

	// DefaultContentID is the content-id of the inline banner image.
	DefaultContentID = "banner"
)

// InvitationBody renders the default invitation HTML. The banner is
// referenced as cid:<contentID>.
func InvitationBody(contentID, inviteURL string) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 640px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString(".banner { max-width: 100%; height: auto; display: block; margin-bottom: 24px; }\n")
	b.WriteString(".signature { margin-top: 24px; font-weight: 600; }\n")
	b.WriteString("a { color: #e67e22; text-decoration: none; }\n")
	b.WriteString("@media (prefers-color-scheme: dark) {\n")
	b.WriteString("body { background: #1a1a1a; color: #e0e0e0; }\n")
	b.WriteString("a { color: #ff8c42; }\n")
	b.WriteString("}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString(fmt.Sprintf("<img src=\"cid:%s\" alt=\"October\" class=\"banner\">\n", escapeHTML(contentID)))

	b.WriteString("<p>We're ready to add early testers to October off the waitlist, and it's your turn.</p>\n")
	if inviteURL != "" {
		b.WriteString(fmt.Sprintf("<p>Go to <a href=\"%s\">%s</a> to get started. iPhone preferred, but Desktop Web also works.</p>\n",
			escapeHTML(inviteURL), escapeHTML(inviteURL)))
	}
	b.WriteString("<p>October is a social network where it's easy to share secrets and have difficult conversations using a mixture of real names and pseudonyms.</p>\n")
	b.WriteString("<p>Good content earns you coins that you can use to post without revealing your name. Think of it as a safe place to discuss difficult subjects.</p>\n")
	b.WriteString("<p>Our goal is to foster communication across tribal boundaries and build new bridges between partisan communities.</p>\n")
	b.WriteString("<p>Feel free to get in touch with us if anything breaks. We're honored to have you as an early tester!</p>\n")
	b.WriteString("<p class=\"signature\">Team October</p>\n")

	b.WriteString("</body>\n</html>")

	return b.String()
}

// EnsureInlineImage returns body unchanged when it already contains an
// <img src="cid:contentID">. Otherwise it prepends one to the <body>.
func EnsureInlineImage(body, contentID string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse body: %w", err)
	}

	want := "cid:" + contentID
	found := false
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if strings.EqualFold(strings.TrimSpace(src), want) {
			found = true
			return false
		}
		return true
	})
	if found {
		return body, nil
	}

	doc.Find("body").First().PrependHtml(fmt.Sprintf("<img src=\"cid:%s\"><br><br>", escapeHTML(contentID)))
	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render body: %w", err)
	}
	return out, nil
}

// escapeHTML escapes HTML special characters for security.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
