package mailer

import (
	"context"
	"log/slog"
	"strings"

	goRecover "github.com/MrEthical07/goRecover"
)

// Log writes messages to a logger instead of sending them. Bodies are only
// logged at Debug since they carry recovery codes.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a logging mailer. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, msg goRecover.Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	l.logger.InfoContext(ctx, "email",
		"to", msg.To,
		"cc", strings.Join(msg.Cc, ","),
		"subject", msg.Subject,
	)
	l.logger.DebugContext(ctx, "email body", "to", msg.To, "text", msg.TextBody)
	return nil
}
