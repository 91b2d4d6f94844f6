// Package retry runs an operation with exponential backoff.
package retry

import (
	"context"
	"time"
)

// BaseDelay is the wait before the second attempt. It doubles after each
// further failure.
var BaseDelay = 500 * time.Millisecond

// Do calls fn up to maxAttempts times until it succeeds. retryable decides
// whether a failure is worth another attempt; nil retries every error.
func Do[T any](ctx context.Context, maxAttempts int, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range max(maxAttempts, 1) {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return zero, err
		}
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * BaseDelay // 500ms, 1s, 2s, 4s...
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
