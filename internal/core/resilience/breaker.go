package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/iam-platform/iam-service/internal/pkg/metrics"
)

// ErrCircuitOpen is returned without running the operation while the breaker
// is open, or while its single half-open trial call is still in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker's position in its closed/open/half-open cycle.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BreakerConfig configures one breaker.
type BreakerConfig struct {
	// FailMax consecutive failures trip the breaker.
	FailMax uint32
	// ResetTimeout is how long the breaker stays open before allowing a trial.
	ResetTimeout time.Duration
}

// Breaker is a circuit breaker shared by every call through the pipeline that
// owns it. Transitions are serialized inside gobreaker.
type Breaker struct {
	name        string
	cb          *gobreaker.CircuitBreaker
	passthrough Passthrough
}

// NewBreaker builds a breaker for the named operation.
func NewBreaker(name string, cfg BreakerConfig, passthrough Passthrough, log zerolog.Logger) *Breaker {
	if cfg.FailMax == 0 {
		cfg.FailMax = 1
	}

	b := &Breaker{name: name, passthrough: passthrough}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.FailMax
		},
		IsSuccessful: func(err error) bool {
			return err == nil || passthrough.matches(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(fromGobreaker(to)))
			log.Warn().
				Str("operation", name).
				Str("from", fromGobreaker(from).String()).
				Str("to", fromGobreaker(to).String()).
				Msg("circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Execute implements Policy.
func (b *Breaker) Execute(ctx context.Context, op Operation) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, op(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}
	return err
}

// State returns the current state, applying any due timeout transition.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
