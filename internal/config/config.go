package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://redis:6379/0"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	SessionTokenSecret string        `env:"SESSION_TOKEN_SECRET,required,notEmpty"`
	SessionTokenTTL    time.Duration `env:"SESSION_TOKEN_TTL" envDefault:"30m"`
	WebhookSecret      string        `env:"WEBHOOK_SECRET,required,notEmpty"`
	EmailEncryptionKey string        `env:"EMAIL_ENCRYPTION_KEY,required,notEmpty"`

	GatewayURL           string        `env:"GATEWAY_URL" envDefault:"http://mock-gateway:8081"`
	NodeURL              string        `env:"NODE_URL" envDefault:"http://mock-gateway:8081"`
	CallbackURL          string        `env:"CALLBACK_URL" envDefault:"http://api:8080/api/v1/webhooks/authorization-outcomes"`
	UpstreamTimeout      time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	AuthorizationTimeout int64         `env:"AUTHORIZATION_TIMEOUT_MS" envDefault:"600000"`
	PaymentTokenValidity int           `env:"PAYMENT_TOKEN_VALIDITY_S" envDefault:"900"`
	MaxCartSize          int           `env:"MAX_CART_SIZE" envDefault:"5"`

	LockTTL          time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	LockWait         time.Duration `env:"LOCK_WAIT" envDefault:"2s"`
	AppendMaxRetries int           `env:"APPEND_MAX_RETRIES" envDefault:"3"`
	OperationKeyTTL  time.Duration `env:"OPERATION_KEY_TTL" envDefault:"24h"`

	ProjectionPollInterval time.Duration `env:"PROJECTION_POLL_INTERVAL" envDefault:"2s"`
	ProjectionBatchSize    int           `env:"PROJECTION_BATCH_SIZE" envDefault:"200"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`

	IdempotencyTTL          time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencyCleanupEvery time.Duration `env:"IDEMPOTENCY_CLEANUP_INTERVAL" envDefault:"1h"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.MaxCartSize < 1 {
		return nil, fmt.Errorf("config.Load: MAX_CART_SIZE must be positive, got %d", cfg.MaxCartSize)
	}
	if cfg.AppendMaxRetries < 1 {
		return nil, fmt.Errorf("config.Load: APPEND_MAX_RETRIES must be positive, got %d", cfg.AppendMaxRetries)
	}
	if cfg.ProjectionBatchSize < 1 {
		return nil, fmt.Errorf("config.Load: PROJECTION_BATCH_SIZE must be positive, got %d", cfg.ProjectionBatchSize)
	}
	if cfg.LockTTL <= 0 {
		return nil, fmt.Errorf("config.Load: LOCK_TTL must be positive, got %s", cfg.LockTTL)
	}
	return &cfg, nil
}
