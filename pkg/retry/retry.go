// Package retry provides a generic capped exponential backoff helper used both by the
// coordination store connect loop (unbounded attempts) and by per-partition task queries
// (bounded attempts).
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config parameterizes a retry loop.
type Config struct {
	// Initial is the backoff before the first retry.
	Initial time.Duration
	// MaxBackoff caps the backoff between attempts.
	MaxBackoff time.Duration
	// MaxAttempts bounds the number of attempts. Nil means unbounded.
	MaxAttempts *int
}

// Unbounded returns a Config with no attempt cap.
func Unbounded(initial, maxBackoff time.Duration) Config {
	return Config{Initial: initial, MaxBackoff: maxBackoff}
}

// Bounded returns a Config capped at maxAttempts attempts.
func Bounded(initial, maxBackoff time.Duration, maxAttempts int) Config {
	return Config{Initial: initial, MaxBackoff: maxBackoff, MaxAttempts: &maxAttempts}
}

// ErrMaxAttempts wraps the last error when a bounded retry exhausts its attempt budget.
type ErrMaxAttempts struct {
	Attempts int
	Last     error
}

func (e *ErrMaxAttempts) Error() string {
	return fmt.Sprintf("retry: exhausted %d attempts: %v", e.Attempts, e.Last)
}

func (e *ErrMaxAttempts) Unwrap() error { return e.Last }

// Do runs fn, retrying with capped exponential backoff until it succeeds, the context is
// cancelled, or (if cfg.MaxAttempts is set) the attempt budget is exhausted.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is the generic form of Do, returning fn's result value alongside any error.
func DoValue[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	backoff := cfg.Initial
	if backoff <= 0 {
		backoff = time.Millisecond
	}

	attempt := 0
	for {
		attempt++

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if cfg.MaxAttempts != nil && attempt >= *cfg.MaxAttempts {
			var zero T
			return zero, &ErrMaxAttempts{Attempts: attempt, Last: err}
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}
