// Package resilience guards calls to flaky dependencies with a fixed pipeline
// of policies: circuit breaker, then retry with exponential backoff, then a
// per-attempt timeout.
//
// The breaker is the outermost layer, so a whole retry run counts as a single
// breaker outcome: one failure is recorded only after every attempt of a
// logical call has failed, and an open breaker rejects the call before any
// attempt is made.
package resilience

import (
	"context"
	"errors"
)

// Operation is a single attempt of a guarded call.
type Operation func(ctx context.Context) error

// Policy decides how (and whether) an operation runs.
type Policy interface {
	Execute(ctx context.Context, op Operation) error
}

// Pipeline applies its policies outermost first: Pipeline{a, b}.Execute(op)
// runs a(b(op)).
type Pipeline []Policy

// Execute runs op through every policy in order.
func (p Pipeline) Execute(ctx context.Context, op Operation) error {
	wrapped := op
	for i := len(p) - 1; i >= 0; i-- {
		policy, next := p[i], wrapped
		wrapped = func(ctx context.Context) error {
			return policy.Execute(ctx, next)
		}
	}
	return wrapped(ctx)
}

// Do runs fn through p and returns the value of the successful attempt.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Passthrough reports errors that are expected outcomes rather than
// dependency failures. They are returned to the caller untouched, never
// retried, and count as successes for the breaker.
type Passthrough func(err error) bool

func (p Passthrough) matches(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return p != nil && p(err)
}
