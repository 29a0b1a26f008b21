package auth

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxRetryInterval = time.Second

// retryPolicy retries idempotent reads that fail with a transient storage
// error. Any other error is returned on the first attempt.
type retryPolicy struct {
	attempts int
	interval time.Duration
}

func newRetryPolicy(cfg Config) retryPolicy {
	p := retryPolicy{attempts: cfg.RetryAttempts, interval: cfg.RetryInterval}
	if p.attempts < 1 {
		p.attempts = 1
	}
	if p.interval <= 0 {
		p.interval = defaultRetryInterval
	}
	return p
}

func (p retryPolicy) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.interval
	b.MaxInterval = maxRetryInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.attempts-1)), ctx)
}

func readWithRetry[T any](ctx context.Context, p retryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := backoff.Retry(func() error {
		v, err := fn(ctx)
		if err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = v
		return nil
	}, p.backoff(ctx))
	return out, err
}
