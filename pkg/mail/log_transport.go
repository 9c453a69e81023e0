package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport logs messages instead of sending them.
// Useful for development and for dry runs of the CLI.
type LogTransport struct {
	log *zap.SugaredLogger
}

func NewLogTransport(log *zap.SugaredLogger) *LogTransport {
	return &LogTransport{log: log.Named("log-transport")}
}

// Send logs the message. It never fails.
func (t *LogTransport) Send(_ context.Context, msg OutboundMessage) error {
	t.log.Infow("Email (not sent, log transport)",
		"from", msg.From,
		"to", msg.Recipients,
		"subject", msg.Subject,
		"sentAt", msg.SentAt,
		"body", msg.Body)
	return nil
}

func (t *LogTransport) GetHost() string {
	return "log"
}
