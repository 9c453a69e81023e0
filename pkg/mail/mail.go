package mail

import (
	"context"
	"crypto/tls"
	"math"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/fordlabs/retroquest-notifier/pkg/config"
	"github.com/fordlabs/retroquest-notifier/pkg/metrics"
)

// SMTPTransport sends plain-text mail through an SMTP server using gomail.
type SMTPTransport struct {
	dialer         *gomail.Dialer
	log            *zap.SugaredLogger
	retryCount     int
	retryBackoffMs int
}

func NewSMTPTransport(cfg config.Mail, log *zap.SugaredLogger) *SMTPTransport {
	log = log.Named("smtp")
	log.Infow("Initializing SMTP transport", "host", cfg.Host, "port", cfg.Port, "user", cfg.User)
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warnw("InsecureSkipVerify is enabled for mail TLS connection", "host", cfg.Host)
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in for internal relays
	}

	retryCount := cfg.RetryCount
	if retryCount < 0 {
		retryCount = 0
	}
	retryBackoffMs := cfg.RetryBackoffMs
	if retryBackoffMs <= 0 {
		retryBackoffMs = 100
	}

	return &SMTPTransport{
		dialer:         d,
		log:            log,
		retryCount:     retryCount,
		retryBackoffMs: retryBackoffMs,
	}
}

// Send delivers msg, retrying with exponential backoff when retries are configured.
// Failures are returned as *TransportError.
func (s *SMTPTransport) Send(ctx context.Context, msg OutboundMessage) error {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.Recipients...)
	m.SetHeader("Subject", msg.Subject)
	if !msg.SentAt.IsZero() {
		m.SetDateHeader("Date", msg.SentAt)
	}
	m.SetBody("text/plain", msg.Body)

	var lastErr error
	backoffMs := s.retryBackoffMs
	attempt := 0

	for ; attempt <= s.retryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		metrics.MailSendAttempts.WithLabelValues(s.GetHost()).Inc()
		err := s.dialer.DialAndSend(m)
		if err == nil {
			s.log.Debugw("Mail sent", "receivers", len(msg.Recipients), "attempt", attempt+1)
			return nil
		}
		lastErr = err

		if attempt < s.retryCount {
			s.log.Warnw("Send attempt failed, retrying", "attempt", attempt+1, "error", err, "retryInMs", backoffMs)
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt++
				return &TransportError{Host: s.GetHost(), Attempts: attempt, Err: lastErr}
			case <-time.After(time.Duration(backoffMs) * time.Millisecond):
			}
			backoffMs = int(math.Min(float64(backoffMs)*2, 32000)) // Cap at ~32 seconds
		}
	}

	return &TransportError{Host: s.GetHost(), Attempts: attempt, Err: lastErr}
}

func (s *SMTPTransport) GetHost() string {
	return s.dialer.Host
}
