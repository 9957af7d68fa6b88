package application

import (
	"context"
	"errors"
	"time"

	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the exponential backoff used for gateway calls and the
// settlement saga's inline retries.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Do runs op until it succeeds, retryable reports false, the attempts run out
// or ctx ends. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, retryable func(error) bool, op func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.initialInterval()
	policy.MaxInterval = p.maxInterval()
	policy.MaxElapsedTime = 0

	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.attempts()-1)), ctx)
	return backoff.Retry(func() error {
		err := op(ctx)
		if err != nil && retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bounded)
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 3
	}
	return p.MaxAttempts
}

func (p RetryPolicy) initialInterval() time.Duration {
	if p.InitialInterval <= 0 {
		return 200 * time.Millisecond
	}
	return p.InitialInterval
}

func (p RetryPolicy) maxInterval() time.Duration {
	if p.MaxInterval <= 0 {
		return 5 * time.Second
	}
	return p.MaxInterval
}

// IsTransientGatewayError marks gateway failures worth another attempt.
// Rejections are final.
func IsTransientGatewayError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domainerrors.ErrGatewayRejected) {
		return false
	}
	return true
}

// IsRetryableConflict marks errors a fresh read may resolve.
func IsRetryableConflict(err error) bool {
	return errors.Is(err, domainerrors.ErrConflict)
}
