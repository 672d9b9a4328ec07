package resilience

import (
	"context"
	"time"
)

// Timeout bounds each attempt. A zero duration disables it.
type Timeout time.Duration

// Execute implements Policy.
func (t Timeout) Execute(ctx context.Context, op Operation) error {
	if t <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(t))
	defer cancel()
	return op(ctx)
}
