package notify

import (
	"context"

	"github.com/dmitrijs2005/gophaccount/internal/logging"
)

// LogNotifier writes messages to the log instead of sending them. It is the
// default for local development, where no mail server is configured. The
// body carries the verification token, so it is only written at debug level.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.Info(ctx, "mail not sent (log driver)", "to", msg.To, "subject", msg.Subject)
	n.logger.Debug(ctx, "mail body (log driver)", "to", msg.To, "body", msg.Text)
	return nil
}
