package fetcher

import (
	"context"
	"time"
)

// retryBaseDelay is the initial pause between attempts; it doubles after
// each failure.
const retryBaseDelay = 500 * time.Millisecond

// attempt runs op up to attempts times. Abort-class failures (see IsAbort)
// are returned immediately without consuming a retry; any other failure is
// retried after a short doubling delay. The final failure is returned when
// all attempts are spent.
func attempt(ctx context.Context, attempts int, op func() error) error {
	attempts = max(attempts, 1)
	delay := retryBaseDelay
	var lastErr error

	for i := 0; i < attempts; i++ {
		if err := op(); err == nil {
			return nil
		} else if lastErr = err; IsAbort(err) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}
