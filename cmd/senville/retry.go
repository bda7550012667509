package main

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/logging"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// Retry policy for reconnecting to a unit
var (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 5 * time.Second
)

// withRetry runs op until it succeeds, fails with an error that will not fix
// itself, or maxRetries retries have been spent. The wait between attempts
// grows exponentially and ends early when ctx is done.
func withRetry(ctx context.Context, maxRetries uint64, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval
	policy.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !midea.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		logging.Info("Retrying after transient error",
			zap.Error(err),
			zap.Duration("wait", wait),
		)
	})
}
