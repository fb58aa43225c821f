package storageservice

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy decides which download responses are retried and how long to
// wait between attempts. The Storage Service answers 404 while an AIP is still
// being stored and 500 while it is being indexed, so both are retryable.
type RetryPolicy struct {
	MaxAttempts          int
	Interval             time.Duration
	RetryableStatusCodes []int
}

// NewRetryPolicy returns the download policy: 20 attempts one second apart on
// 404 and 500.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:          20,
		Interval:             time.Second,
		RetryableStatusCodes: []int{404, 500},
	}
}

func (p *RetryPolicy) retryable(statusCode int, err error) bool {
	if statusCode == 0 {
		return isTransient(err)
	}
	for _, code := range p.RetryableStatusCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. fn returns the response status code (0 when no response
// was received) and an error for any non-success outcome.
func (p *RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, fn func() (int, error)) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		statusCode, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.retryable(statusCode, err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		logger.Warn().
			Int("attempt", attempt).
			Int("status_code", statusCode).
			Err(err).
			Dur("interval", p.Interval).
			Msg("Retrying Storage Service request")

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	logger.Warn().
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")
	return lastErr
}

// isTransient reports connection-level failures worth another attempt.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
