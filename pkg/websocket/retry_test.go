package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetry(cfg RetryConfig, now time.Time) *Retry {
	r := NewRetry(cfg)
	r.now = func() time.Time { return now }
	r.jitterFn = func() float64 { return 0 }
	return r
}

func TestRetry_ExponentialBackoffCapped(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRetry(RetryConfig{
		InitialDelay:      time.Second,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2,
	}, now)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		delay, err := r.Fail()
		require.NoError(t, err)
		assert.Equal(t, w, delay, "attempt %d", i+1)
		assert.Equal(t, now.Add(w), r.NextEligible())
	}
	assert.Equal(t, len(want), r.Attempt())

	r.Reset()
	assert.Equal(t, 0, r.Attempt())
	assert.True(t, r.NextEligible().IsZero())

	delay, err := r.Fail()
	require.NoError(t, err)
	assert.Equal(t, time.Second, delay)
}

func TestRetry_Jitter(t *testing.T) {
	r := NewRetry(RetryConfig{InitialDelay: time.Second, MaxDelay: time.Second, JitterPercent: 0.2})
	r.jitterFn = func() float64 { return 0.5 }

	delay, err := r.Fail()
	require.NoError(t, err)
	assert.Equal(t, 1100*time.Millisecond, delay)
}

func TestRetry_MaxAttempts(t *testing.T) {
	r := newTestRetry(RetryConfig{InitialDelay: time.Millisecond, MaxAttempts: 2}, time.Now())

	_, err := r.Fail()
	require.NoError(t, err)

	_, err = r.Fail()
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestRetry_Defaults(t *testing.T) {
	r := NewRetry(RetryConfig{})
	assert.Equal(t, time.Second, r.cfg.InitialDelay)
	assert.Equal(t, time.Second, r.cfg.MaxDelay)
	assert.InDelta(t, 2.0, r.cfg.BackoffMultiplier, 0.0001)
}

func TestRetry_Wait(t *testing.T) {
	r := NewRetry(RetryConfig{InitialDelay: time.Hour})
	r.jitterFn = func() float64 { return 0 }

	// Nothing scheduled yet.
	require.NoError(t, r.Wait(context.Background()))

	_, err := r.Fail()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}
