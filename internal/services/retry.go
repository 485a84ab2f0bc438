package services

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultAttempts   = 3
	defaultRetryDelay = 500 * time.Millisecond
)

type retryCallback[T any] func(ctx context.Context) (T, error)

// withRetry runs callback until it succeeds, returns an unrecoverable error, or attempts run out.
//
// Delays back off exponentially from delay. Only the last error is returned.
func withRetry[T any](ctx context.Context, attempts uint, delay time.Duration, callback retryCallback[T], opts ...retry.Option) (T, error) {
	if attempts == 0 {
		attempts = defaultAttempts
	}

	base := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}

	return retry.DoWithData(func() (T, error) {
		return callback(ctx)
	}, append(base, opts...)...)
}
