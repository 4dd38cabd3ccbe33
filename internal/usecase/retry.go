package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/observability"
)

// RetryPolicy retries transient upstream failures with randomized
// exponential backoff. Backoff sleeps are scoped to the calling context.
type RetryPolicy struct {
	// MaxAttempts counts the first call; values below 1 mean a single attempt.
	MaxAttempts int
	// NewBackOff builds a fresh schedule per call.
	NewBackOff func() backoff.BackOff
}

// NewRetryPolicy returns a policy that waits between minWait and maxWait
// (randomized, doubling) and gives up after maxAttempts or maxElapsed.
func NewRetryPolicy(maxAttempts int, minWait, maxWait, maxElapsed time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		NewBackOff: func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = minWait
			eb.MaxInterval = maxWait
			eb.Multiplier = 2
			eb.RandomizationFactor = 0.5
			eb.MaxElapsedTime = maxElapsed
			eb.Reset()
			return &boundedBackOff{inner: eb, min: minWait, max: maxWait}
		},
	}
}

// boundedBackOff clamps every wait into [min, max].
type boundedBackOff struct {
	inner backoff.BackOff
	min   time.Duration
	max   time.Duration
}

func (b *boundedBackOff) NextBackOff() time.Duration {
	d := b.inner.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if d < b.min {
		d = b.min
	}
	if b.max > 0 && d > b.max {
		d = b.max
	}
	return d
}

func (b *boundedBackOff) Reset() { b.inner.Reset() }

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var bo backoff.BackOff = &backoff.ZeroBackOff{}
	if p.NewBackOff != nil {
		bo = p.NewBackOff()
	}
	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)

	lg := observability.LoggerFromContext(ctx)
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		lg.Warn("upstream call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	})
}
