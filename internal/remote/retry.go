package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithRetry runs call up to maxRetry times with exponential backoff starting
// at 200ms. Client errors (4xx other than 429) are returned immediately.
func WithRetry[T any](ctx context.Context, maxRetry int, call func(context.Context) (T, error)) (T, error) {
	if maxRetry <= 0 {
		maxRetry = 3
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxRetry; attempt++ {
		out, err := call(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return zero, err
		}
		if attempt == maxRetry {
			break
		}
		delay := time.Duration(200*(1<<(attempt-1))) * time.Millisecond
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("remote engine retry exhausted: %w", lastErr)
}
