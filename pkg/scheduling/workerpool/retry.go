package workerpool

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	gfcontext "github.com/vnykmshr/taskflow/pkg/common/context"
	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
)

// RetryPolicy configures Retry.
type RetryPolicy struct {
	// MaxTries limits the number of executions. Zero means no limit.
	MaxTries uint

	// InitialInterval is the wait before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps the wait between retries.
	MaxInterval time.Duration

	// MaxElapsedTime caps the total time spent retrying. Zero means no limit.
	MaxElapsedTime time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns a policy of three attempts with exponential
// waits starting at 100ms. Only timeouts and full queues are retried.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Retryable:       gferrors.IsRetryable,
	}
}

// Retry wraps job so that failed executions are retried with exponential
// backoff. Retrying stops as soon as the job's context is cancelled, so a
// cancellation request on the future is honoured between attempts.
func Retry(job Job, policy RetryPolicy) Job {
	return JobFunc(func(ctx context.Context) (any, error) {
		b := backoff.NewExponentialBackOff()
		if policy.InitialInterval > 0 {
			b.InitialInterval = policy.InitialInterval
		}
		if policy.MaxInterval > 0 {
			b.MaxInterval = policy.MaxInterval
		}

		opts := []backoff.RetryOption{backoff.WithBackOff(b)}
		if policy.MaxTries > 0 {
			opts = append(opts, backoff.WithMaxTries(policy.MaxTries))
		}
		if policy.MaxElapsedTime > 0 {
			opts = append(opts, backoff.WithMaxElapsedTime(policy.MaxElapsedTime))
		}

		return backoff.Retry(ctx, func() (any, error) {
			value, err := job.Execute(ctx)
			if err == nil {
				return value, nil
			}
			if gfcontext.IsCanceled(ctx) {
				return nil, backoff.Permanent(fmt.Errorf("%w: %w", ctx.Err(), err))
			}
			if policy.Retryable != nil && !policy.Retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}, opts...)
	})
}
