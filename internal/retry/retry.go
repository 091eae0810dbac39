// Package retry wraps backoff/v5 with the retry policies used by the indexer.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Policy configures exponential backoff. Zero fields fall back to backoff defaults.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxTries        uint          // 0 means unlimited
	MaxElapsedTime  time.Duration // 0 means unlimited
}

// Do runs operation until it succeeds, returns a permanent error, or the policy is exhausted.
// Retries are logged at debug level under name.
func Do[T any](ctx context.Context, p Policy, log *zap.SugaredLogger, name string, operation func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(p.MaxElapsedTime),
	}
	if p.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxTries))
	}
	if log != nil {
		opts = append(opts, backoff.WithNotify(func(err error, d time.Duration) {
			log.Debugf("%s error: %s - retrying after %v", name, err, d)
		}))
	}

	return backoff.Retry(ctx, operation, opts...)
}

// DoNoReturn is Do for operations without a result.
func DoNoReturn(ctx context.Context, p Policy, log *zap.SugaredLogger, name string, operation func() error) error {
	_, err := Do(ctx, p, log, name, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
