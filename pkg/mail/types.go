package mail

import (
	"context"
	"fmt"
	"time"
)

// OutboundMessage is the transport-level message built for a single dispatch.
// From is always taken from configuration, never from the caller.
type OutboundMessage struct {
	Subject    string
	Body       string
	Recipients []string
	From       string
	SentAt     time.Time
}

// Transport delivers an OutboundMessage.
type Transport interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// PasswordResetContext carries the values substituted into the password reset message.
type PasswordResetContext struct {
	TeamName   string
	Email      string
	ResetToken string
}

// TransportError wraps a delivery failure with the host and number of attempts made.
type TransportError struct {
	Host     string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mail transport %s failed after %d attempt(s): %v", e.Host, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// hostOf returns the metrics label for a transport.
func hostOf(t Transport) string {
	if h, ok := t.(interface{ GetHost() string }); ok && h.GetHost() != "" {
		return h.GetHost()
	}
	return "unknown"
}
