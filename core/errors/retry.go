package errors

import (
	"context"
	"time"
)

// RetryableFunc is the operation retried by Retry.
type RetryableFunc func(ctx context.Context) error

// Retry runs fn, retrying per the behavior of the returned error's kind.
// Non-retryable kinds return immediately. Backoff doubles per attempt.
func Retry(ctx context.Context, fn RetryableFunc) error {
	var lastErr error

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		behavior := BehaviorOf(lastErr)
		if !behavior.Retryable || attempt >= behavior.MaxRetries {
			return lastErr
		}

		if err := sleep(ctx, backoffFor(behavior, attempt)); err != nil {
			return lastErr
		}
		attempt++
	}
}

func backoffFor(behavior Behavior, attempt int) time.Duration {
	backoff := behavior.BaseBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
	}
	return backoff
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
