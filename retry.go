package cttso_pieriandx_gateway

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy retries an operation a bounded number of times with a fixed
// delay between attempts. A zero-delay policy makes retrying code testable
// without sleeping.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy matches the attempt budget used against the
// diagnostics service.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Delay: 5 * time.Second}

// Do runs op until it succeeds or the attempt budget is spent. The last
// error is returned wrapped with the attempt count. Context cancellation
// aborts the wait between attempts.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = op(); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}
