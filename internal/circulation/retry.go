package circulation

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 5 * time.Millisecond
	defaultJitterFactor = 0.3
)

// RetryOption configures RetryOnConflict.
type RetryOption func(*retryConfig)

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
}

// WithMaxAttempts sets how many times fn runs at most. Values below 1 are ignored.
func WithMaxAttempts(n int) RetryOption {
	return func(c *retryConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first backoff delay; later ones double.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		if d >= 0 {
			c.baseDelay = d
		}
	}
}

// RetryOnConflict runs fn until it succeeds, fails with anything other than
// ErrConflict, or runs out of attempts. Delays grow exponentially with
// jitter: base, 2*base, 4*base, ...
func RetryOnConflict(ctx context.Context, fn func(ctx context.Context) error, opts ...RetryOption) error {
	cfg := retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var err error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			delay += time.Duration(rand.Float64() * float64(delay) * cfg.jitterFactor)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}
