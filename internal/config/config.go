package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig holds HTTP and process level settings.
type AppConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"goal-service"`
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	// StorageDriver selects the goal store: "postgres" or "memory".
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
}

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	URL         string        `env:"DATABASE_URL"`
	MaxOpenConn int           `env:"DB_MAX_OPEN" envDefault:"10"`
	ConnMaxIdle time.Duration `env:"DB_CONN_IDLE" envDefault:"5m"`
	AutoMigrate bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// KafkaConfig holds the progress-delta consumer and notification producer settings.
type KafkaConfig struct {
	Brokers            []string `env:"KAFKA_BROKERS" envSeparator:","`
	ProgressTopic      string   `env:"KAFKA_PROGRESS_TOPIC" envDefault:"progress-deltas"`
	ConsumerGroup      string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"goal-service"`
	NotificationsTopic string   `env:"KAFKA_NOTIF_TOPIC" envDefault:"goal-notifications"`
}

// Enabled reports whether Kafka wiring should be started.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// MonitorConfig drives the deadline monitor.
type MonitorConfig struct {
	Interval  time.Duration `env:"DEADLINE_MONITOR_INTERVAL" envDefault:"1h"`
	Lookahead time.Duration `env:"DEADLINE_LOOKAHEAD" envDefault:"24h"`
	// Cooldown suppresses repeated warnings for the same goal; 0 warns on every run.
	Cooldown    time.Duration `env:"DEADLINE_WARNING_COOLDOWN" envDefault:"24h"`
	Concurrency int           `env:"DEADLINE_MONITOR_CONCURRENCY" envDefault:"10"`
	LockTTL     time.Duration `env:"DEADLINE_MONITOR_LOCK_TTL" envDefault:"5m"`
	RedisAddr   string        `env:"REDIS_ADDR"`
	RedisPass   string        `env:"REDIS_PASSWORD"`
	RedisDB     int           `env:"REDIS_DB" envDefault:"0"`
}

// ChannelConfig controls outbound notification delivery.
type ChannelConfig struct {
	Timeout     time.Duration `env:"CHANNEL_TIMEOUT" envDefault:"10s"`
	MaxAttempts uint          `env:"CHANNEL_MAX_ATTEMPTS" envDefault:"3"`
	BaseBackoff time.Duration `env:"CHANNEL_BACKOFF" envDefault:"500ms"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	SMSGatewayURL  string `env:"SMS_GATEWAY_URL"`
	SMSGatewayUser string `env:"SMS_GATEWAY_USERNAME"`
	SMSGatewayPass string `env:"SMS_GATEWAY_PASSWORD"`
}

// TracingConfig holds the OTLP collector endpoint; empty disables tracing export.
type TracingConfig struct {
	CollectorEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Config is the root configuration of the goal service.
type Config struct {
	AppCfg      AppConfig
	DBConfig    DBConfig
	KafkaConfig KafkaConfig
	MonitorCfg  MonitorConfig
	ChannelCfg  ChannelConfig
	TracingCfg  TracingConfig
}

// LoadConfig reads an optional .env file and parses the environment.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.AppCfg.StorageDriver {
	case "postgres":
		if c.DBConfig.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres storage driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.AppCfg.StorageDriver))
	}
	if c.MonitorCfg.Interval <= 0 {
		errs = append(errs, errors.New("DEADLINE_MONITOR_INTERVAL must be positive"))
	}
	if c.MonitorCfg.Lookahead <= 0 {
		errs = append(errs, errors.New("DEADLINE_LOOKAHEAD must be positive"))
	}
	if c.MonitorCfg.Cooldown < 0 {
		errs = append(errs, errors.New("DEADLINE_WARNING_COOLDOWN must not be negative"))
	}
	if c.MonitorCfg.Concurrency <= 0 {
		errs = append(errs, errors.New("DEADLINE_MONITOR_CONCURRENCY must be positive"))
	}
	if c.ChannelCfg.Timeout <= 0 {
		errs = append(errs, errors.New("CHANNEL_TIMEOUT must be positive"))
	}
	if c.ChannelCfg.MaxAttempts == 0 {
		errs = append(errs, errors.New("CHANNEL_MAX_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}
