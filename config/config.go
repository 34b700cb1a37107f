package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Log          LogConfig          `mapstructure:"log"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Notification NotificationConfig `mapstructure:"notification"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Authz        AuthzConfig        `mapstructure:"authz"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"` // row lock wait inside ledger transactions
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// InMemory reports whether the in-process store should be used instead of PostgreSQL.
func (d DatabaseConfig) InMemory() bool {
	return strings.EqualFold(strings.TrimSpace(d.Driver), "memory")
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Pretty     bool   `mapstructure:"pretty"` // human-readable output (dev only)
	File       string `mapstructure:"file"`   // optional rotated log file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// LedgerConfig holds business settings of the payment ledger.
type LedgerConfig struct {
	Currencies     []string      `mapstructure:"currencies"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type QueueConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	Concurrency int    `mapstructure:"concurrency"`
	Queue       string `mapstructure:"queue"`
	MaxRetry    int    `mapstructure:"max_retry"`
}

// Addr returns the Redis address used by the task queue.
func (q QueueConfig) Addr() string {
	return fmt.Sprintf("%s:%d", q.Host, q.Port)
}

type NotificationConfig struct {
	WebhookURL    string        `mapstructure:"webhook_url"`
	SigningSecret string        `mapstructure:"signing_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether ledger events should be published.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type TracingConfig struct {
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"` // empty = tracing disabled
	ServiceName    string `mapstructure:"service_name"`
}

// AuthzConfig adds role policies on top of the built-in ones.
// Each entry is "role,object,action", e.g. "support,/api/v1/admin/payments/:id/status,PATCH".
type AuthzConfig struct {
	ExtraPolicies []string `mapstructure:"extra_policies"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: LEDGER_.
// Nested keys use underscore: LEDGER_DATABASE_HOST, LEDGER_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "payment_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "payment-ledger")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("ledger.currencies", []string{"USD", "EUR", "GBP", "INR", "CAD", "AUD"})
	v.SetDefault("ledger.idempotency_ttl", "24h")
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queue", "notifications")
	v.SetDefault("queue.max_retry", 5)
	v.SetDefault("notification.webhook_url", "")
	v.SetDefault("notification.signing_secret", "")
	v.SetDefault("notification.timeout", "10s")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "payment-ledger.events")
	v.SetDefault("tracing.jaeger_endpoint", "")
	v.SetDefault("tracing.service_name", "payment-ledger")
	v.SetDefault("authz.extra_policies", []string{})

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: LEDGER_DATABASE_HOST -> database.host
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	for i, c := range cfg.Ledger.Currencies {
		cfg.Ledger.Currencies[i] = strings.ToUpper(strings.TrimSpace(c))
	}

	return &cfg, nil
}
