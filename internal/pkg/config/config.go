package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/iam-platform/iam-service/internal/core/resilience"
)

type Config struct {
	Port      string `env:"PORT,       default=8080"`
	Env       string `env:"ENV,        default=development"`
	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	Database   DatabaseConfig
	Redis      RedisConfig
	RabbitMQ   RabbitMQConfig
	Resilience ResilienceConfig
}

type DatabaseConfig struct {
	URL string `env:"DATABASE_URL, required"`
}

type RedisConfig struct {
	URL      string        `env:"REDIS_URL, required"`
	CacheTTL time.Duration `env:"CACHE_TTL, default=300s"`
}

type RabbitMQConfig struct {
	URL string `env:"RABBITMQ_URL, required"`
	// Async hands events to a worker pool instead of publishing inline.
	Async   bool `env:"EVENTS_ASYNC,   default=false"`
	Workers int  `env:"EVENTS_WORKERS, default=4"`
}

type ResilienceConfig struct {
	MaxAttempts    int           `env:"RESILIENCE_MAX_ATTEMPTS,    default=5"`
	MinBackoff     time.Duration `env:"RESILIENCE_MIN_BACKOFF,     default=1s"`
	MaxBackoff     time.Duration `env:"RESILIENCE_MAX_BACKOFF,     default=10s"`
	FailMax        uint32        `env:"RESILIENCE_FAIL_MAX,        default=3"`
	ResetTimeout   time.Duration `env:"RESILIENCE_RESET_TIMEOUT,   default=10s"`
	AttemptTimeout time.Duration `env:"RESILIENCE_ATTEMPT_TIMEOUT, default=5s"`
}

// Guard converts the env settings into a resilience.Config.
func (r ResilienceConfig) Guard() resilience.Config {
	return resilience.Config{
		MaxAttempts:    r.MaxAttempts,
		MinBackoff:     r.MinBackoff,
		MaxBackoff:     r.MaxBackoff,
		FailMax:        r.FailMax,
		ResetTimeout:   r.ResetTimeout,
		AttemptTimeout: r.AttemptTimeout,
	}
}

// Load reads configuration from environment variables using go-envconfig.
// DATABASE_URL, REDIS_URL and RABBITMQ_URL have no defaults; a missing one is
// an error.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load with an explicit source of variables.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Resilience.MaxAttempts < 1 {
		return nil, fmt.Errorf("config: RESILIENCE_MAX_ATTEMPTS must be at least 1, got %d", cfg.Resilience.MaxAttempts)
	}
	return &cfg, nil
}
