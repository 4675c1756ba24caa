// Package config provides environment-based configuration loading for the
// concurrency core: priority limits, breaker thresholds, provider
// connection settings, and the ambient logging/service identity fields.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every configuration value the core depends on. Required
// fields cause startup failure if missing; everything else has a sensible
// default.
type Config struct {
	// Ambient
	ServiceName string `envconfig:"SERVICE_NAME" default:"concurrency-core"`
	Env         string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Scheduler: per-priority concurrency caps and queue capacity limits.
	ConcurrencyLimitHigh   int `envconfig:"CONCURRENCY_LIMIT_HIGH" default:"10"`
	ConcurrencyLimitMedium int `envconfig:"CONCURRENCY_LIMIT_MEDIUM" default:"5"`
	ConcurrencyLimitLow    int `envconfig:"CONCURRENCY_LIMIT_LOW" default:"2"`
	QueueLimitHigh         int `envconfig:"QUEUE_LIMIT_HIGH" default:"50"`
	QueueLimitMedium       int `envconfig:"QUEUE_LIMIT_MEDIUM" default:"100"`
	QueueLimitLow          int `envconfig:"QUEUE_LIMIT_LOW" default:"200"`

	// Circuit breaker defaults, applied to every provider's breaker entry.
	BreakerFailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"3"`
	BreakerRecoveryTimeout  time.Duration `envconfig:"BREAKER_RECOVERY_TIMEOUT" default:"30s"`

	// Background Sync.
	SyncInterval time.Duration `envconfig:"SYNC_INTERVAL" default:"10s"`

	// Intent cache defaults.
	CacheDefaultTTL time.Duration `envconfig:"CACHE_DEFAULT_TTL" default:"5m"`

	// Emergency buffer persistence. Empty means in-memory (tests only); a
	// non-empty path backs the buffer with an on-disk SQLite file so it
	// survives process restarts.
	EmergencyBufferPath string `envconfig:"EMERGENCY_BUFFER_PATH" default:"./data/emergency_buffer.db"`

	// Sensitive-field name patterns, merged with the mask package's defaults.
	SensitivePatterns []string `envconfig:"SENSITIVE_PATTERNS"`

	// Postgres primary provider.
	DatabaseURL       string        `envconfig:"DATABASE_URL" required:"true"`
	DBPoolMaxConns    int32         `envconfig:"DB_POOL_MAX_CONNS" default:"25"`
	DBPoolMinConns    int32         `envconfig:"DB_POOL_MIN_CONNS" default:"5"`
	DBPoolMaxLifetime time.Duration `envconfig:"DB_POOL_MAX_LIFETIME" default:"1h"`
	IgnoreDBStartupError bool       `envconfig:"IGNORE_DB_STARTUP_ERROR" default:"false"`

	// Redis fallback provider.
	RedisHost         string        `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort         int           `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword     string        `envconfig:"REDIS_PASSWORD"`
	RedisDB           int           `envconfig:"REDIS_DB" default:"0"`
	RedisPoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	RedisMinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"5"`
	RedisDialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	RedisReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	RedisWriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`

	// Bus outbound bridge: RabbitMQ.
	RabbitMQEnabled      bool   `envconfig:"RABBITMQ_ENABLED" default:"false"`
	RabbitMQURL          string `envconfig:"RABBITMQ_URL"`
	RabbitMQExchange     string `envconfig:"RABBITMQ_EXCHANGE" default:"events"`
	RabbitMQExchangeType string `envconfig:"RABBITMQ_EXCHANGE_TYPE" default:"topic"`
	RabbitMQDurable      bool   `envconfig:"RABBITMQ_DURABLE" default:"true"`

	// Bus outbound bridge: Kafka.
	KafkaEnabled      bool          `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers      []string      `envconfig:"KAFKA_BROKERS"`
	KafkaClientID     string        `envconfig:"KAFKA_CLIENT_ID" default:"concurrency-core"`
	KafkaRequiredAcks string        `envconfig:"KAFKA_REQUIRED_ACKS" default:"all"`
	KafkaTimeout      time.Duration `envconfig:"KAFKA_TIMEOUT" default:"10s"`
	KafkaTLSEnabled   bool          `envconfig:"KAFKA_TLS_ENABLED" default:"false"`
	KafkaSASLEnabled  bool          `envconfig:"KAFKA_SASL_ENABLED" default:"false"`
	KafkaSASLUsername string        `envconfig:"KAFKA_SASL_USERNAME"`
	KafkaSASLPassword string        `envconfig:"KAFKA_SASL_PASSWORD"`
	KafkaSASLMechanism string       `envconfig:"KAFKA_SASL_MECHANISM" default:"plaintext"`

	// Resilience primitives shared by the DataIO path.
	CBMaxRequests      int           `envconfig:"CB_MAX_REQUESTS" default:"3"`
	CBInterval         time.Duration `envconfig:"CB_INTERVAL" default:"10s"`
	CBTimeout          time.Duration `envconfig:"CB_TIMEOUT" default:"30s"`
	CBFailureThreshold int           `envconfig:"CB_FAILURE_THRESHOLD" default:"3"`

	RetryMaxAttempts  int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialDelay time.Duration `envconfig:"RETRY_INITIAL_DELAY" default:"100ms"`
	RetryMaxDelay     time.Duration `envconfig:"RETRY_MAX_DELAY" default:"5s"`
	RetryMultiplier   float64       `envconfig:"RETRY_MULTIPLIER" default:"2.0"`

	TimeoutDefault         time.Duration `envconfig:"TIMEOUT_DEFAULT" default:"30s"`
	TimeoutDatabase        time.Duration `envconfig:"TIMEOUT_DATABASE" default:"5s"`
	TimeoutExternalAPI     time.Duration `envconfig:"TIMEOUT_EXTERNAL_API" default:"10s"`
	TimeoutPrimaryProvider time.Duration `envconfig:"TIMEOUT_PRIMARY_PROVIDER" default:"5s"`

	BulkheadMaxConcurrent int `envconfig:"BULKHEAD_MAX_CONCURRENT" default:"10"`
	BulkheadMaxWaiting    int `envconfig:"BULKHEAD_MAX_WAITING" default:"100"`

	ShutdownDrainPeriod time.Duration `envconfig:"SHUTDOWN_DRAIN_PERIOD" default:"30s"`
	ShutdownGracePeriod time.Duration `envconfig:"SHUTDOWN_GRACE_PERIOD" default:"5s"`
}

// RedisConfig is the subset of Config the Redis provider/client needs.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Redis projects the Redis-related fields into a RedisConfig.
func (c *Config) Redis() RedisConfig {
	return RedisConfig{
		Host:         c.RedisHost,
		Port:         c.RedisPort,
		Password:     c.RedisPassword,
		DB:           c.RedisDB,
		PoolSize:     c.RedisPoolSize,
		MinIdleConns: c.RedisMinIdleConns,
		DialTimeout:  c.RedisDialTimeout,
		ReadTimeout:  c.RedisReadTimeout,
		WriteTimeout: c.RedisWriteTimeout,
	}
}

// RabbitMQConfig is the subset of Config the RabbitMQ bridge needs.
type RabbitMQConfig struct {
	Enabled      bool
	URL          string
	Exchange     string
	ExchangeType string
	Durable      bool
}

// IsEnabled reports whether the RabbitMQ bridge should connect.
func (c RabbitMQConfig) IsEnabled() bool { return c.Enabled }

// RabbitMQ projects the RabbitMQ-related fields into a RabbitMQConfig.
func (c *Config) RabbitMQ() RabbitMQConfig {
	return RabbitMQConfig{
		Enabled:      c.RabbitMQEnabled,
		URL:          c.RabbitMQURL,
		Exchange:     c.RabbitMQExchange,
		ExchangeType: c.RabbitMQExchangeType,
		Durable:      c.RabbitMQDurable,
	}
}

// KafkaConfig is the subset of Config the Kafka bridge needs.
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	ClientID      string
	RequiredAcks  string
	Timeout       time.Duration
	TLSEnabled    bool
	SASLEnabled   bool
	SASLUsername  string
	SASLPassword  string
	SASLMechanism string
}

// IsEnabled reports whether the Kafka bridge should connect.
func (c KafkaConfig) IsEnabled() bool { return c.Enabled }

// Kafka projects the Kafka-related fields into a KafkaConfig.
func (c *Config) Kafka() KafkaConfig {
	return KafkaConfig{
		Enabled:       c.KafkaEnabled,
		Brokers:       c.KafkaBrokers,
		ClientID:      c.KafkaClientID,
		RequiredAcks:  c.KafkaRequiredAcks,
		Timeout:       c.KafkaTimeout,
		TLSEnabled:    c.KafkaTLSEnabled,
		SASLEnabled:   c.KafkaSASLEnabled,
		SASLUsername:  c.KafkaSASLUsername,
		SASLPassword:  c.KafkaSASLPassword,
		SASLMechanism: c.KafkaSASLMechanism,
	}
}

// Redacted returns a safe string representation of the Config for logging.
func (c *Config) Redacted() string {
	safe := *c
	safe.DatabaseURL = "[REDACTED]"
	safe.RedisPassword = "[REDACTED]"
	safe.KafkaSASLPassword = "[REDACTED]"
	return fmt.Sprintf("%+v", safe)
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	const op = "config.Load"

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// Validate checks every configuration surface for internally-consistent
// values. It normalizes LogLevel/Env to lowercase as a side effect.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required and cannot be empty")
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("invalid SERVICE_NAME: must not be empty")
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))

	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("invalid ENV: must be one of development, staging, production, test")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: must be one of debug, info, warn, error")
	}

	for name, v := range map[string]int{
		"CONCURRENCY_LIMIT_HIGH":   c.ConcurrencyLimitHigh,
		"CONCURRENCY_LIMIT_MEDIUM": c.ConcurrencyLimitMedium,
		"CONCURRENCY_LIMIT_LOW":    c.ConcurrencyLimitLow,
		"QUEUE_LIMIT_HIGH":         c.QueueLimitHigh,
		"QUEUE_LIMIT_MEDIUM":       c.QueueLimitMedium,
		"QUEUE_LIMIT_LOW":          c.QueueLimitLow,
	} {
		if v < 1 {
			return fmt.Errorf("invalid %s: must be greater than 0", name)
		}
	}

	if c.BreakerFailureThreshold < 1 {
		return fmt.Errorf("invalid BREAKER_FAILURE_THRESHOLD: must be greater than 0")
	}
	if c.BreakerRecoveryTimeout <= 0 {
		return fmt.Errorf("invalid BREAKER_RECOVERY_TIMEOUT: must be greater than 0")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("invalid SYNC_INTERVAL: must be greater than 0")
	}
	if c.CacheDefaultTTL <= 0 {
		return fmt.Errorf("invalid CACHE_DEFAULT_TTL: must be greater than 0")
	}

	if c.DBPoolMaxConns < 1 {
		return fmt.Errorf("invalid DB_POOL_MAX_CONNS: must be greater than 0")
	}
	if c.DBPoolMinConns < 0 {
		return fmt.Errorf("invalid DB_POOL_MIN_CONNS: must be non-negative")
	}
	if c.DBPoolMinConns > c.DBPoolMaxConns {
		return fmt.Errorf("invalid DB_POOL_MIN_CONNS: must be less than or equal to DB_POOL_MAX_CONNS")
	}
	if c.DBPoolMaxLifetime <= 0 {
		return fmt.Errorf("invalid DB_POOL_MAX_LIFETIME: must be greater than 0")
	}

	if c.ShutdownDrainPeriod <= 0 {
		return fmt.Errorf("invalid SHUTDOWN_DRAIN_PERIOD: must be greater than 0")
	}
	if c.ShutdownGracePeriod < 0 {
		return fmt.Errorf("invalid SHUTDOWN_GRACE_PERIOD: must be non-negative")
	}

	if c.BulkheadMaxConcurrent < 1 {
		return fmt.Errorf("invalid BULKHEAD_MAX_CONCURRENT: must be greater than 0")
	}
	if c.BulkheadMaxWaiting < 0 {
		return fmt.Errorf("invalid BULKHEAD_MAX_WAITING: must be non-negative")
	}

	if c.CBMaxRequests < 1 {
		return fmt.Errorf("invalid CB_MAX_REQUESTS: must be greater than 0")
	}
	if c.CBInterval <= 0 {
		return fmt.Errorf("invalid CB_INTERVAL: must be greater than 0")
	}
	if c.CBTimeout <= 0 {
		return fmt.Errorf("invalid CB_TIMEOUT: must be greater than 0")
	}
	if c.CBFailureThreshold < 1 {
		return fmt.Errorf("invalid CB_FAILURE_THRESHOLD: must be greater than 0")
	}
	if c.RetryMultiplier < 1.0 {
		return fmt.Errorf("invalid RETRY_MULTIPLIER: must be greater than or equal to 1.0")
	}
	if c.TimeoutDefault <= 0 {
		return fmt.Errorf("invalid TIMEOUT_DEFAULT: must be greater than 0")
	}
	if c.TimeoutDatabase <= 0 {
		return fmt.Errorf("invalid TIMEOUT_DATABASE: must be greater than 0")
	}
	if c.TimeoutExternalAPI <= 0 {
		return fmt.Errorf("invalid TIMEOUT_EXTERNAL_API: must be greater than 0")
	}

	return nil
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
