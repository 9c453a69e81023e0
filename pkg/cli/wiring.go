package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"

	"github.com/fordlabs/retroquest-notifier/pkg/audit"
	"github.com/fordlabs/retroquest-notifier/pkg/config"
	"github.com/fordlabs/retroquest-notifier/pkg/mail"
)

// KeyringService is the OS keyring service under which SMTP passwords are
// stored, keyed by mail.user.
const KeyringService = "retroquest-notifier"

// smtpPasswordFromKeyring replaces cfg.Password with the keyring entry for cfg.User.
func smtpPasswordFromKeyring(cfg config.Mail) (config.Mail, error) {
	if cfg.User == "" {
		return cfg, errors.New("mail.user is required to look up the SMTP password in the keyring")
	}
	secret, err := keyring.Get(KeyringService, cfg.User)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return cfg, fmt.Errorf("no SMTP password stored in keyring for %q; run `smtp-password set`", cfg.User)
		}
		return cfg, fmt.Errorf("reading SMTP password from keyring: %w", err)
	}
	cfg.Password = secret
	return cfg, nil
}

func newTransport(cfg config.Mail, dryRun bool, log *zap.SugaredLogger) mail.Transport {
	if dryRun {
		return mail.NewLogTransport(log)
	}
	return mail.NewSMTPTransport(cfg, log)
}

func kafkaSinkConfig(k config.Kafka) (audit.KafkaSinkConfig, error) {
	sc := audit.KafkaSinkConfig{
		Brokers:          k.Brokers,
		Topic:            k.Topic,
		Async:            k.Async,
		CompressionCodec: k.CompressionCodec,
	}
	var err error
	if sc.BatchTimeout, err = optionalDuration("audit.kafka.batchTimeout", k.BatchTimeout); err != nil {
		return sc, err
	}
	if sc.WriteTimeout, err = optionalDuration("audit.kafka.writeTimeout", k.WriteTimeout); err != nil {
		return sc, err
	}
	if k.TLSEnabled {
		sc.TLS = &audit.KafkaTLSConfig{Enabled: true, InsecureSkipVerify: k.TLSInsecureSkipVerify}
		if k.TLSCAFile != "" {
			ca, err := os.ReadFile(k.TLSCAFile)
			if err != nil {
				return sc, fmt.Errorf("reading kafka CA file: %w", err)
			}
			sc.TLS.CACert = ca
		}
	}
	if k.SASLMechanism != "" {
		sc.SASL = &audit.KafkaSASLConfig{
			Mechanism: k.SASLMechanism,
			Username:  k.SASLUsername,
			Password:  k.SASLPassword,
		}
	}
	return sc, nil
}

// newAuditManager returns nil when auditing is disabled. With Kafka brokers
// configured events go to both the log and Kafka.
func newAuditManager(cfg config.Audit, log *zap.Logger) (*audit.Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var sink audit.Sink = audit.NewLogSink(log)
	if len(cfg.Kafka.Brokers) > 0 {
		sc, err := kafkaSinkConfig(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		kafkaSink, err := audit.NewKafkaSink(sc, log)
		if err != nil {
			return nil, fmt.Errorf("audit kafka sink: %w", err)
		}
		sink = audit.NewMultiSink([]audit.Sink{sink, kafkaSink}, log.Named("audit"))
	}
	return audit.NewManager(sink, audit.ManagerConfig{QueueSize: cfg.QueueSize}, log), nil
}

// optionalDuration parses value, leaving an empty value as zero so the
// consumer applies its own default.
func optionalDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, value)
	}
	return d, nil
}

// printConfig logs the effective configuration without secrets.
func printConfig(log *zap.SugaredLogger, cfg config.Config) {
	log.Debugw("Effective configuration",
		"app_base_url", cfg.Retroquest.AppBaseURL,
		"email_from_address", cfg.Retroquest.Email.FromAddress,
		"email_is_enabled", cfg.Retroquest.Email.IsEnabled,
		"mail_host", cfg.Mail.Host,
		"mail_port", cfg.Mail.Port,
		"mail_user", cfg.Mail.User,
		"mail_password_set", cfg.Mail.Password != "",
		"mail_retry_count", cfg.Mail.RetryCount,
		"listen_address", cfg.Server.ListenAddress,
		"tls", cfg.Server.TLSCertFile != "",
		"reset_ttl", cfg.PasswordReset.TTL,
		"reset_store", cfg.PasswordReset.Store,
		"reset_requests_per_minute", cfg.PasswordReset.RequestsPerMinute,
		"audit_enabled", cfg.Audit.Enabled,
		"audit_kafka_brokers", cfg.Audit.Kafka.Brokers,
		"audit_kafka_topic", cfg.Audit.Kafka.Topic,
	)
}
