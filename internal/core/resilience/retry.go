package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/iam-platform/iam-service/internal/pkg/metrics"
)

// RetryConfig bounds one logical call. The wait before attempt k+1 is
// MinBackoff * 2^(k-1), capped at MaxBackoff.
type RetryConfig struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// Retry re-runs failed attempts with exponential backoff and surfaces the last
// failure once MaxAttempts is exhausted.
type Retry struct {
	name        string
	cfg         RetryConfig
	passthrough Passthrough
	log         zerolog.Logger
}

// NewRetry builds a retry policy. MaxAttempts below 1 is treated as 1.
func NewRetry(name string, cfg RetryConfig, passthrough Passthrough, log zerolog.Logger) *Retry {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}
	return &Retry{name: name, cfg: cfg, passthrough: passthrough, log: log}
}

// Execute implements Policy.
func (r *Retry) Execute(ctx context.Context, op Operation) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if r.passthrough.matches(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		metrics.RetriesTotal.WithLabelValues(r.name).Inc()
		r.log.Warn().
			Err(err).
			Str("operation", r.name).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("attempt failed, retrying")
	}

	return backoff.RetryNotify(operation, r.schedule(ctx), notify)
}

func (r *Retry) schedule(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.MinBackoff
	b.MaxInterval = r.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)
}
