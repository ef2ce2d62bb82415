package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Synternet/stellar-price-feeder/internal/metrics"
	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

const DefaultAttempts = 3

type Policy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:        DefaultAttempts,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do calls fn until it succeeds or the policy is exhausted. Exhaustion is reported as *types.FetchError.
func Do(ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		metrics.Retries.WithLabelValues(op).Inc()
		logger.Warn("RETRY: remote call failed", "op", op, "attempt", attempts, "next", next, "err", err)
	}

	if err := backoff.RetryNotify(operation, p.backOff(ctx), notify); err != nil {
		return &types.FetchError{Op: op, Attempts: attempts, Err: err}
	}
	return nil
}

// Value is Do for calls returning a result.
func Value[T any](ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var ret T
	err := Do(ctx, p, logger, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		ret = v
		return nil
	})
	return ret, err
}
