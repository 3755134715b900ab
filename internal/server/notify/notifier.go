// Package notify delivers verification mail. Registration hands messages to
// a Dispatcher, whose workers pass them to a Notifier (SMTP, SES or log).
package notify

import (
	"context"
	"fmt"
	"html"
	"net/url"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Notifier sends a single message. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

const verificationSubject = "Verify your account"

// VerificationLink appends token as the last path segment of baseURL.
func VerificationLink(baseURL, token string) (string, error) {
	link, err := url.JoinPath(baseURL, token)
	if err != nil {
		return "", fmt.Errorf("verification link: %w", err)
	}
	return link, nil
}

// VerificationMessage builds the mail asking to to open the verification
// link for token.
func VerificationMessage(baseURL, to, token string) (Message, error) {
	link, err := VerificationLink(baseURL, token)
	if err != nil {
		return Message{}, err
	}

	escaped := html.EscapeString(link)
	return Message{
		To:      to,
		Subject: verificationSubject,
		HTML: "<h2>" + verificationSubject + "</h2>" +
			"<p>Click the link below to activate your account:</p>" +
			`<a href="` + escaped + `">` + escaped + `</a>`,
		Text: verificationSubject + "\n\nOpen this link to activate your account:\n" + link + "\n",
	}, nil
}
