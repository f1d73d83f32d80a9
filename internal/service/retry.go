package service

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// retryWithBackoff calls fn up to attempts times with exponential backoff
// starting at base. Every failure is retried; ctx cancellation ends the loop.
func retryWithBackoff(ctx context.Context, attempts int, base time.Duration, onRetry func(attempt int, delay time.Duration, err error), fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = time.Millisecond
	}

	var (
		attempt int
		lastErr error
	)
	inner := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := inner.Next()
		if !stop && onRetry != nil {
			onRetry(attempt, delay, lastErr)
		}
		return delay, stop
	})

	return retry.Do(ctx, backoff, func(context.Context) error {
		attempt++
		if err := fn(); err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}
		return nil
	})
}
