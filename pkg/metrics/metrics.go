package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Notification dispatch metrics
	NotificationSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retroquest_notification_sent_total",
		Help: "Total number of notifications handed to the mail transport successfully",
	}, []string{"host"})
	NotificationFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retroquest_notification_failed_total",
		Help: "Total number of notifications the mail transport failed to deliver",
	}, []string{"host"})
	// Disabled dispatches are counted here only; they never reach the transport or the log.
	NotificationSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "retroquest_notification_skipped_total",
		Help: "Total number of notifications skipped because email is disabled",
	})

	// SMTP transport metrics
	MailSendAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retroquest_mail_send_attempts_total",
		Help: "Total number of SMTP send attempts, including retries",
	}, []string{"host"})

	// Password reset flow metrics
	PasswordResetRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retroquest_password_reset_requests_total",
		Help: "Total number of password reset requests grouped by outcome",
	}, []string{"outcome"})
	PasswordResetValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retroquest_password_reset_validations_total",
		Help: "Total number of password reset token validations grouped by result",
	}, []string{"result"})
	PasswordResetConsumptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retroquest_password_reset_consumptions_total",
		Help: "Total number of password reset token consumptions grouped by result",
	}, []string{"result"})

	// Audit metrics
	AuditEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retroquest_audit_events_total",
		Help: "Total number of audit events written, grouped by sink and outcome",
	}, []string{"sink", "outcome"})
	AuditKafkaMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retroquest_audit_kafka_messages_total",
		Help: "Total number of audit messages written to Kafka grouped by topic and outcome",
	}, []string{"topic", "outcome"})

	// Rate limiting
	RateLimitRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retroquest_ratelimit_rejected_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(NotificationSent)
	prometheus.MustRegister(NotificationFailed)
	prometheus.MustRegister(NotificationSkipped)
	prometheus.MustRegister(MailSendAttempts)
	prometheus.MustRegister(PasswordResetRequests)
	prometheus.MustRegister(PasswordResetValidations)
	prometheus.MustRegister(PasswordResetConsumptions)
	prometheus.MustRegister(AuditEvents)
	prometheus.MustRegister(AuditKafkaMessages)
	prometheus.MustRegister(RateLimitRejected)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
