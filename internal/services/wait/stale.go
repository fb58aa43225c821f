package wait

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/interfaces"
)

// RetryOption tunes RetryOnStale.
type RetryOption func(*retryConfig)

type retryConfig struct {
	maxAttempts int
}

// WithMaxAttempts bounds the number of attempts. Zero or less keeps the
// retry unbounded.
func WithMaxAttempts(n int) RetryOption {
	return func(c *retryConfig) {
		c.maxAttempts = n
	}
}

// RetryOnStale runs fn, and runs it again from scratch every time it fails
// with interfaces.ErrStaleElement. fn must re-locate every element it uses.
// Without WithMaxAttempts the loop only ends when fn stops hitting stale
// references or ctx ends.
func RetryOnStale(ctx context.Context, logger arbor.ILogger, op string, fn func(ctx context.Context) error, opts ...RetryOption) error {
	_, err := RetryOnStaleValue(ctx, logger, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

// RetryOnStaleValue is RetryOnStale for operations that produce a value.
func RetryOnStaleValue[T any](ctx context.Context, logger arbor.ILogger, op string, fn func(ctx context.Context) (T, error), opts ...RetryOption) (T, error) {
	cfg := retryConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := fn(ctx)
		if err == nil || !errors.Is(err, interfaces.ErrStaleElement) {
			return value, err
		}

		if cfg.maxAttempts > 0 && attempt >= cfg.maxAttempts {
			logger.Warn().
				Str("operation", op).
				Int("attempts", attempt).
				Msg("Giving up after repeated stale element references")
			return zero, err
		}

		logger.Debug().
			Str("operation", op).
			Int("attempt", attempt).
			Msg("Stale element reference, restarting operation")
	}
}
