package resilience

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Config holds every tunable of a guarded operation.
type Config struct {
	MaxAttempts    int
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	FailMax        uint32
	ResetTimeout   time.Duration
	AttemptTimeout time.Duration
}

// DefaultConfig returns 5 attempts with 1s..10s backoff, a breaker that trips
// after 3 failed calls and resets after 10s, and a 5s bound per attempt.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		MinBackoff:     time.Second,
		MaxBackoff:     10 * time.Second,
		FailMax:        3,
		ResetTimeout:   10 * time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

// Guard is the breaker -> retry -> timeout pipeline for one logical operation.
type Guard struct {
	breaker  *Breaker
	pipeline Pipeline
}

// NewGuard builds the pipeline for the named operation. Errors matched by
// passthrough are handed back to the caller as-is.
func NewGuard(name string, cfg Config, passthrough Passthrough, log zerolog.Logger) *Guard {
	breaker := NewBreaker(name, BreakerConfig{
		FailMax:      cfg.FailMax,
		ResetTimeout: cfg.ResetTimeout,
	}, passthrough, log)

	retry := NewRetry(name, RetryConfig{
		MaxAttempts: cfg.MaxAttempts,
		MinBackoff:  cfg.MinBackoff,
		MaxBackoff:  cfg.MaxBackoff,
	}, passthrough, log)

	return &Guard{
		breaker:  breaker,
		pipeline: Pipeline{breaker, retry, Timeout(cfg.AttemptTimeout)},
	}
}

// Execute implements Policy.
func (g *Guard) Execute(ctx context.Context, op Operation) error {
	return g.pipeline.Execute(ctx, op)
}

// State reports the guard's breaker state.
func (g *Guard) State() State {
	return g.breaker.State()
}
