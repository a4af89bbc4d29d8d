package archive

import (
	"context"
	"errors"
	"fmt"
)

// WithRetries runs op until it succeeds or maxAttempts attempts have been
// made. There is no delay between attempts. It returns the value of the
// successful attempt, the number of attempts made and the last error.
func WithRetries[T any](
	ctx context.Context,
	maxAttempts int,
	op func(ctx context.Context, attempt int) (T, error),
) (T, int, error) {
	var zero T
	if maxAttempts <= 0 {
		return zero, 0, fmt.Errorf("max attempts must be > 0, got %d", maxAttempts)
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return zero, attempt - 1, err
			}
			return zero, attempt - 1, errors.Join(lastErr, err)
		}
		value, err := op(ctx, attempt)
		if err == nil {
			return value, attempt, nil
		}
		lastErr = err
	}
	return zero, maxAttempts, lastErr
}
