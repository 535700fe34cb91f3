package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/aescanero/periphery/pkg/domain"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// RetryPolicy bounds the retries of a failed transport call.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryPolicy is used when a zero policy is configured.
var DefaultRetryPolicy = RetryPolicy{
	MaxTries:        5,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxElapsed:      15 * time.Second,
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxTries == 0 {
		p.MaxTries = DefaultRetryPolicy.MaxTries
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultRetryPolicy.MaxInterval
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = DefaultRetryPolicy.MaxElapsed
	}
	return p
}

// retry runs call until it succeeds, fails with a non-transport error, or the
// policy is exhausted.
func (m *Manager) retry(ctx context.Context, op, addr string, call func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retryPolicy.InitialInterval
	b.MaxInterval = m.retryPolicy.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := call(ctx)
		if err != nil && !errors.Is(err, domain.ErrTransport) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(m.retryPolicy.MaxTries),
		backoff.WithMaxElapsedTime(m.retryPolicy.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.logger.Warn("transport call failed, retrying",
				zap.String("op", op),
				zap.String("addr", addr),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	)
	return err
}
