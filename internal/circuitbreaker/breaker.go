// Package circuitbreaker halts new order placement after repeated
// rejections or an exposure emergency. Cancels are never gated.
package circuitbreaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reason names why the breaker tripped.
type Reason string

// Trip reasons.
const (
	ReasonRejects  Reason = "rejects"
	ReasonExposure Reason = "exposure"
)

// Config holds circuit breaker configuration.
type Config struct {
	RejectThreshold int             // consecutive rejections that trip the breaker
	Cooldown        time.Duration   // how long a trip halts placements
	MaxExposure     decimal.Decimal // |ΔQ| at or above this is an emergency
	Logger          *zap.Logger
	Now             func() time.Time
}

// Breaker gates placements. Reads are lock-free; the session loop is the
// only writer.
type Breaker struct {
	cfg    *Config
	logger *zap.Logger
	now    func() time.Time

	tripped atomic.Bool

	mu           sync.RWMutex
	rejects      int
	reason       Reason
	trippedAt    time.Time
	until        time.Time
	trips        int
	lastExposure decimal.Decimal
}

// Status is a snapshot for the HTTP API.
type Status struct {
	Tripped            bool      `json:"tripped"`
	Reason             Reason    `json:"reason,omitempty"`
	TrippedAt          time.Time `json:"tripped_at,omitempty"`
	Until              time.Time `json:"until,omitempty"`
	ConsecutiveRejects int       `json:"consecutive_rejects"`
	Trips              int       `json:"trips"`
}

// New creates a breaker.
func New(cfg *Config) (*Breaker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.RejectThreshold <= 0 {
		return nil, errors.New("reject threshold must be positive")
	}
	if cfg.Cooldown <= 0 {
		return nil, errors.New("cooldown must be positive")
	}
	if !cfg.MaxExposure.IsPositive() {
		return nil, errors.New("max exposure must be positive")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	Tripped.Set(0)
	return &Breaker{cfg: cfg, logger: cfg.Logger, now: now}, nil
}

// Allow reports whether an order of the given role may be placed now. An
// exposure trip only halts traps so hedges can still reduce the exposure.
// Flatten orders always pass.
func (b *Breaker) Allow(role orders.Role) bool {
	if role == orders.RoleFlatten || !b.tripped.Load() {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.now().Before(b.until) {
		b.resetLocked()
		return true
	}

	allowed := b.reason == ReasonExposure && role == orders.RoleHedge
	if !allowed {
		BlockedTotal.WithLabelValues(string(b.reason), string(role)).Inc()
	}
	return allowed
}

// RecordReject counts a rejected placement.
func (b *Breaker) RecordReject() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rejects++
	ConsecutiveRejects.Set(float64(b.rejects))
	if b.rejects >= b.cfg.RejectThreshold {
		b.tripLocked(ReasonRejects)
		b.rejects = 0
		ConsecutiveRejects.Set(0)
	}
}

// RecordAck resets the rejection streak.
func (b *Breaker) RecordAck() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rejects = 0
	ConsecutiveRejects.Set(0)
}

// ObserveExposure trips the breaker when |ΔQ| reaches the maximum. While the
// emergency lasts the cooldown keeps being extended.
func (b *Breaker) ObserveExposure(exposure decimal.Decimal) {
	if exposure.Abs().LessThan(b.cfg.MaxExposure) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastExposure = exposure
	b.tripLocked(ReasonExposure)
}

// Status returns the current state.
func (b *Breaker) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Status{ConsecutiveRejects: b.rejects, Trips: b.trips}
	if b.tripped.Load() && b.now().Before(b.until) {
		st.Tripped = true
		st.Reason = b.reason
		st.TrippedAt = b.trippedAt
		st.Until = b.until
	}
	return st
}

func (b *Breaker) tripLocked(reason Reason) {
	now := b.now()
	wasTripped := b.tripped.Load() && now.Before(b.until)

	b.until = now.Add(b.cfg.Cooldown)
	if wasTripped && b.reason == reason {
		return
	}
	// A reject trip is the stricter of the two and is not downgraded.
	if wasTripped && b.reason == ReasonRejects {
		return
	}

	b.reason = reason
	b.trippedAt = now
	b.trips++
	b.tripped.Store(true)

	Tripped.Set(1)
	TripsTotal.WithLabelValues(string(reason)).Inc()
	b.logger.Warn("circuit-breaker-tripped",
		zap.String("reason", string(reason)),
		zap.Duration("cooldown", b.cfg.Cooldown),
		zap.String("delta-q", b.lastExposure.String()))
}

func (b *Breaker) resetLocked() {
	b.tripped.Store(false)
	Tripped.Set(0)
	b.logger.Info("circuit-breaker-reset",
		zap.String("reason", string(b.reason)),
		zap.Duration("halted", b.now().Sub(b.trippedAt)))
	b.reason = ""
}
