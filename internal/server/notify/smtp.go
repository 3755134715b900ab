package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier sends mail through an SMTP relay with STARTTLS.
type SMTPNotifier struct {
	client mailSender
	from   string
}

// NewSMTPNotifier configures a relay at host:port. PLAIN auth is used only
// when user is set.
func NewSMTPNotifier(host string, port int, user, password, from string) (*SMTPNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	}
	if user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPNotifier{client: client, from: from}, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	m, err := n.buildMsg(msg)
	if err != nil {
		return err
	}
	if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) buildMsg(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.from); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}
