/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fordlabs/retroquest-notifier/pkg/audit"
	"github.com/fordlabs/retroquest-notifier/pkg/config"
	"github.com/fordlabs/retroquest-notifier/pkg/metrics"
)

// Notifier dispatches plain-text notifications through a Transport when
// email is enabled. It holds only read-only configuration and is safe for
// concurrent use.
type Notifier struct {
	cfg       config.NotificationConfig
	transport Transport
	composer  Composer
	logger    *zap.SugaredLogger
	auditor   audit.Emitter
	now       func() time.Time
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithAuditor records a notification.sent / notification.failed event per dispatch.
func WithAuditor(e audit.Emitter) Option {
	return func(n *Notifier) { n.auditor = e }
}

// WithClock replaces time.Now for the SentAt stamp.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// NewNotifier creates a Notifier. The transport is only used when cfg.Enabled is true.
func NewNotifier(cfg config.NotificationConfig, transport Transport, logger *zap.SugaredLogger, opts ...Option) *Notifier {
	n := &Notifier{
		cfg:       cfg,
		transport: transport,
		composer:  NewComposer(cfg.BaseURL),
		logger:    logger.Named("notifier"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// IsEnabled returns the email feature gate.
func (n *Notifier) IsEnabled() bool {
	return n.cfg.Enabled
}

// Composer returns the message composer bound to the configured base URL.
func (n *Notifier) Composer() Composer {
	return n.composer
}

// SendUnencryptedNotification sends message to recipients. When email is
// disabled it returns without touching the transport or the log. Transport
// failures are logged and swallowed. Recipients are forwarded as given,
// including an empty list.
func (n *Notifier) SendUnencryptedNotification(ctx context.Context, subject, message string, recipients ...string) {
	if !n.cfg.Enabled {
		metrics.NotificationSkipped.Inc()
		return
	}

	msg := OutboundMessage{
		Subject:    subject,
		Body:       message,
		Recipients: recipients,
		From:       n.cfg.FromAddress,
		SentAt:     n.now(),
	}

	host := hostOf(n.transport)
	if err := n.deliver(ctx, msg); err != nil {
		n.logger.Errorw("Error in sending email message", "error", err.Error(), "subject", subject, "recipients", len(recipients))
		metrics.NotificationFailed.WithLabelValues(host).Inc()
		n.emit(ctx, audit.EventNotificationFailed, audit.SeverityWarning, msg, err)
		return
	}

	metrics.NotificationSent.WithLabelValues(host).Inc()
	n.emit(ctx, audit.EventNotificationSent, audit.SeverityInfo, msg, nil)
}

// deliver calls the transport and turns a panic into an error so it takes
// the same logged-and-swallowed path as any other failure.
func (n *Notifier) deliver(ctx context.Context, msg OutboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panicked: %v", r)
		}
	}()
	return n.transport.Send(ctx, msg)
}

// SendPasswordReset renders the password reset message for rc and dispatches it to rc.Email.
func (n *Notifier) SendPasswordReset(ctx context.Context, rc PasswordResetContext) {
	n.SendUnencryptedNotification(ctx, PasswordResetSubject, n.composer.RenderPasswordResetMessage(rc), rc.Email)
}

func (n *Notifier) emit(ctx context.Context, t audit.EventType, sev audit.Severity, msg OutboundMessage, sendErr error) {
	if n.auditor == nil {
		return
	}
	details := map[string]interface{}{
		"subject":    msg.Subject,
		"recipients": len(msg.Recipients),
	}
	if sendErr != nil {
		details["error"] = sendErr.Error()
	}
	n.auditor.Emit(ctx, &audit.Event{
		Type:     t,
		Severity: sev,
		Actor:    audit.Actor{User: msg.From},
		Target:   audit.Target{Kind: "Notification", Name: msg.Subject},
		Details:  details,
	})
}
