package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func TestBreakerTripsOnConsecutiveFailures(t *testing.T) {
	cfg := HTTPServiceConfig()
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = time.Hour
	breaker := NewBreaker("test", cfg, nil)

	for i := 0; i < 2; i++ {
		_, err := breaker.Execute(func() (any, error) { return nil, errUpstream })
		require.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, "open", breaker.State())

	called := false
	_, err := breaker.Execute(func() (any, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerIgnoresErrorsMarkedSuccessful(t *testing.T) {
	errRejected := errors.New("rejected")
	cfg := HTTPServiceConfig()
	cfg.ConsecutiveFailures = 1
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, errRejected)
	}
	breaker := NewBreaker("test", cfg, nil)

	for i := 0; i < 3; i++ {
		_, err := breaker.Execute(func() (any, error) { return nil, errRejected })
		require.ErrorIs(t, err, errRejected)
	}
	assert.Equal(t, "closed", breaker.State())

	result, err := breaker.Execute(func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}
