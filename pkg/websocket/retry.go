package websocket

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrRetriesExhausted means the retry budget ran out without a successful connect.
var ErrRetriesExhausted = errors.New("websocket retries exhausted")

// RetryConfig holds capped exponential backoff settings.
type RetryConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = up to 20% added
	MaxAttempts       int     // 0 = unlimited
}

// Retry is the explicit state of a bounded retry loop: how many attempts
// failed, the current backoff and when the next attempt is allowed.
type Retry struct {
	mu       sync.Mutex
	cfg      RetryConfig
	attempt  int
	backoff  time.Duration
	nextAt   time.Time
	now      func() time.Time
	jitterFn func() float64
}

// NewRetry creates retry state with defaults filled in.
func NewRetry(cfg RetryConfig) *Retry {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2
	}

	return &Retry{
		cfg:      cfg,
		backoff:  cfg.InitialDelay,
		now:      time.Now,
		jitterFn: rand.Float64,
	}
}

// Fail records a failed attempt and returns the delay before the next one.
// It returns ErrRetriesExhausted once MaxAttempts failures have accumulated.
func (r *Retry) Fail() (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempt++
	if r.cfg.MaxAttempts > 0 && r.attempt >= r.cfg.MaxAttempts {
		return 0, ErrRetriesExhausted
	}

	delay := time.Duration(float64(r.backoff) * (1.0 + r.jitterFn()*r.cfg.JitterPercent))
	r.nextAt = r.now().Add(delay)

	next := time.Duration(float64(r.backoff) * r.cfg.BackoffMultiplier)
	if next > r.cfg.MaxDelay {
		next = r.cfg.MaxDelay
	}
	r.backoff = next

	return delay, nil
}

// Reset clears the failure count after a successful attempt.
func (r *Retry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempt = 0
	r.backoff = r.cfg.InitialDelay
	r.nextAt = time.Time{}
}

// Attempt returns the number of consecutive failures.
func (r *Retry) Attempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// NextEligible returns when the next attempt may start.
func (r *Retry) NextEligible() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextAt
}

// Wait blocks until the next attempt is eligible or ctx is done.
func (r *Retry) Wait(ctx context.Context) error {
	wait := time.Until(r.NextEligible())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
