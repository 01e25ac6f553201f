package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRegistryDown = errors.New("registry down")

func failingBreaker(cooldown time.Duration) *Breaker {
	cfg := DefaultConfig("test")
	cfg.Cooldown = cooldown
	return New(cfg)
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := failingBreaker(time.Hour)

	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return errRegistryDown })
		require.ErrorIs(t, err, errRegistryDown)
	}
	assert.Equal(t, StateOpen, b.State())

	// Open breaker fails fast without invoking the call.
	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := failingBreaker(time.Hour)

	require.Error(t, b.Do(func() error { return errRegistryDown }))
	require.Error(t, b.Do(func() error { return errRegistryDown }))
	require.NoError(t, b.Do(func() error { return nil }))
	require.Error(t, b.Do(func() error { return errRegistryDown }))
	require.Error(t, b.Do(func() error { return errRegistryDown }))

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := failingBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		require.Error(t, b.Do(func() error { return errRegistryDown }))
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	// One successful probe closes the breaker.
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := failingBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		require.Error(t, b.Do(func() error { return errRegistryDown }))
	}
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.Error(t, b.Do(func() error { return errRegistryDown }))
	assert.Equal(t, StateOpen, b.State())
}
