package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	// ConfigPathEnv overrides the config file location when no explicit path is passed to Load.
	ConfigPathEnv = "RETROQUEST_CONFIG_PATH"

	AppBaseURLEnv       = "RETROQUEST_APP_BASE_URL"
	EmailFromAddressEnv = "RETROQUEST_EMAIL_FROM_ADDRESS"
	EmailIsEnabledEnv   = "RETROQUEST_EMAIL_IS_ENABLED"

	DefaultConfigPath    = "./config.yaml"
	DefaultListenAddress = ":8080"
	DefaultSMTPPort      = 587
	DefaultResetTTL      = 10 * time.Minute
	DefaultAuditTopic    = "retroquest-audit"

	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

// Email holds the retroquest.email.* keys.
type Email struct {
	FromAddress string `yaml:"from-address"`
	IsEnabled   bool   `yaml:"is-enabled"`
}

// Retroquest holds the retroquest.* keys shared with the main web application.
type Retroquest struct {
	AppBaseURL string `yaml:"app-base-url"`
	Email      Email  `yaml:"email"`
}

// Mail configures the SMTP transport.
type Mail struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	// RetryCount is the number of extra attempts after a failed send. Zero means a single attempt.
	RetryCount     int `yaml:"retryCount"`
	RetryBackoffMs int `yaml:"retryBackoffMs"`
}

type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"` // IPs/CIDRS to trust for X-Forwarded-For headers
	// AllowedOrigins is only applied in debug mode, for local frontend development.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// PasswordReset configures reset token issuance.
type PasswordReset struct {
	SigningKey string `yaml:"signingKey"`
	// TTL is a Go duration string, e.g. "10m".
	TTL           string `yaml:"ttl"`
	Store         string `yaml:"store"`
	RedisAddress  string `yaml:"redisAddress"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	// RequestsPerMinute limits reset requests per client IP.
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
}

type Kafka struct {
	Brokers          []string `yaml:"brokers"`
	Topic            string   `yaml:"topic"`
	CompressionCodec string   `yaml:"compressionCodec"`
	Async            bool     `yaml:"async"`
	SASLMechanism    string   `yaml:"saslMechanism"`
	SASLUsername     string   `yaml:"saslUsername"`
	SASLPassword     string   `yaml:"saslPassword"`
	TLSEnabled       bool     `yaml:"tlsEnabled"`
	TLSCAFile        string   `yaml:"tlsCAFile"`
	// BatchTimeout and WriteTimeout are Go durations ("10ms", "5s").
	BatchTimeout string `yaml:"batchTimeout"`
	WriteTimeout string `yaml:"writeTimeout"`
	// TLSInsecureSkipVerify disables broker certificate verification. Test clusters only.
	TLSInsecureSkipVerify bool `yaml:"tlsInsecureSkipVerify"`
}

type Audit struct {
	Enabled bool `yaml:"enabled"`
	// QueueSize bounds the events waiting for the sink; 0 uses the default.
	QueueSize int   `yaml:"queueSize"`
	Kafka     Kafka `yaml:"kafka"`
}

type Config struct {
	Retroquest    Retroquest    `yaml:"retroquest"`
	Mail          Mail          `yaml:"mail"`
	Server        Server        `yaml:"server"`
	PasswordReset PasswordReset `yaml:"passwordReset"`
	Audit         Audit         `yaml:"audit"`
}

// NotificationConfig is the process-wide, read-only view the notification
// dispatcher and message composer work from.
type NotificationConfig struct {
	BaseURL     string
	FromAddress string
	Enabled     bool
}

// Load loads the notifier configuration from a file path.
// If configPath is empty, RETROQUEST_CONFIG_PATH is consulted and then "./config.yaml".
// Environment overrides for the retroquest.* keys are applied after parsing.
func Load(configPath ...string) (Config, error) {
	var path string

	switch {
	case len(configPath) > 0 && configPath[0] != "":
		path = configPath[0]
	case os.Getenv(ConfigPathEnv) != "":
		path = os.Getenv(ConfigPathEnv)
	default:
		path = DefaultConfigPath
	}

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open retroquest config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(content, &config); err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
	}

	if err := config.ApplyEnv(); err != nil {
		return config, err
	}
	return config, nil
}

// ApplyEnv overrides the retroquest.* keys from the environment.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(AppBaseURLEnv); ok {
		c.Retroquest.AppBaseURL = v
	}
	if v, ok := os.LookupEnv(EmailFromAddressEnv); ok {
		c.Retroquest.Email.FromAddress = v
	}
	if v, ok := os.LookupEnv(EmailIsEnabledEnv); ok {
		enabled, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EmailIsEnabledEnv, err)
		}
		c.Retroquest.Email.IsEnabled = enabled
	}
	return nil
}

// Defaults fills unset optional values.
func (c *Config) Defaults() {
	if c.Mail.Port == 0 {
		c.Mail.Port = DefaultSMTPPort
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = DefaultListenAddress
	}
	if c.PasswordReset.TTL == "" {
		c.PasswordReset.TTL = DefaultResetTTL.String()
	}
	if c.PasswordReset.Store == "" {
		c.PasswordReset.Store = TokenStoreMemory
	}
	if c.PasswordReset.RequestsPerMinute <= 0 {
		c.PasswordReset.RequestsPerMinute = 10
	}
	if c.Audit.Kafka.Topic == "" {
		c.Audit.Kafka.Topic = DefaultAuditTopic
	}
}

// Notification projects the values the notification dispatcher owns.
func (c Config) Notification() NotificationConfig {
	return NotificationConfig{
		BaseURL:     c.Retroquest.AppBaseURL,
		FromAddress: c.Retroquest.Email.FromAddress,
		Enabled:     c.Retroquest.Email.IsEnabled,
	}
}

// ResetTTL parses PasswordReset.TTL, falling back to DefaultResetTTL.
func (c Config) ResetTTL() (time.Duration, error) {
	if c.PasswordReset.TTL == "" {
		return DefaultResetTTL, nil
	}
	d, err := time.ParseDuration(c.PasswordReset.TTL)
	if err != nil {
		return DefaultResetTTL, fmt.Errorf("invalid passwordReset.ttl %q; using default %s: %w", c.PasswordReset.TTL, DefaultResetTTL, err)
	}
	if d <= 0 {
		return DefaultResetTTL, fmt.Errorf("invalid passwordReset.ttl %q; must be positive", c.PasswordReset.TTL)
	}
	return d, nil
}

// Validate reports configuration that would make the server unusable.
// A disabled email gate is valid; the notifier then never talks to SMTP.
func (c Config) Validate() error {
	if err := c.ValidateWithoutSMTP(); err != nil {
		return err
	}
	if c.Retroquest.Email.IsEnabled && c.Mail.Host == "" {
		return fmt.Errorf("mail.host is required when email is enabled")
	}
	return nil
}

// ValidateWithoutSMTP is Validate minus the mail server settings, for runs
// that log messages instead of sending them.
func (c Config) ValidateWithoutSMTP() error {
	if c.Retroquest.Email.IsEnabled && c.Retroquest.Email.FromAddress == "" {
		return fmt.Errorf("retroquest.email.from-address is required when email is enabled")
	}
	switch c.PasswordReset.Store {
	case "", TokenStoreMemory:
	case TokenStoreRedis:
		if c.PasswordReset.RedisAddress == "" {
			return fmt.Errorf("passwordReset.redisAddress is required for the redis token store")
		}
	default:
		return fmt.Errorf("unknown passwordReset.store %q", c.PasswordReset.Store)
	}
	if c.Audit.Enabled && len(c.Audit.Kafka.Brokers) > 0 && c.Audit.Kafka.Topic == "" {
		return fmt.Errorf("audit.kafka.topic is required when brokers are configured")
	}
	return nil
}

// parseBool accepts "true", "1", "yes" and "false", "0", "no" (case-insensitive).
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}
