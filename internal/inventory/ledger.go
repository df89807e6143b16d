package inventory

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrUnknownOutcome means a fill names a token outside the active market.
	ErrUnknownOutcome = errors.New("unknown outcome")

	// ErrInvalidFill means a fill has a non-positive size or an impossible price.
	ErrInvalidFill = errors.New("invalid fill")
)

// Side of a fill from our point of view.
type Side string

// Fill sides.
const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Fill is one execution against one of our orders.
type Fill struct {
	ID              string          `json:"id,omitempty"` // exchange fill id, may be empty
	IntentID        string          `json:"intent_id"`
	ExchangeOrderID string          `json:"exchange_order_id,omitempty"`
	OutcomeID       string          `json:"outcome_id"`
	Side            Side            `json:"side"`
	Price           decimal.Decimal `json:"price"`
	Size            decimal.Decimal `json:"size"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Key is the fill identity used for idempotence: the exchange fill id when
// present, otherwise (intent id, timestamp, size).
func (f Fill) Key() string {
	if f.ID != "" {
		return f.ID
	}
	return fmt.Sprintf("%s|%d|%s", f.IntentID, f.Timestamp.UnixNano(), f.Size.String())
}

// Position is the net holding of one outcome.
type Position struct {
	OutcomeID string          `json:"outcome_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	VWAP      decimal.Decimal `json:"vwap"`
}

// Cost is the total amount paid for the current quantity.
func (p Position) Cost() decimal.Decimal {
	return p.Quantity.Mul(p.VWAP)
}

// Ledger tracks positions in both outcomes of a single market.
type Ledger struct {
	mu       sync.RWMutex
	outcomeA string
	outcomeB string
	pos      map[string]*Position
	seen     map[string]struct{}
	logger   *zap.Logger

	lastFillAt      time.Time
	lockedQuantity  decimal.Decimal
	lockedProfit    decimal.Decimal
	completedRounds int
	totalTrades     int
	totalVolume     decimal.Decimal
}

// Config holds ledger configuration.
type Config struct {
	OutcomeA string
	OutcomeB string
	Logger   *zap.Logger
}

// New creates an empty ledger for a market's two outcomes.
func New(cfg *Config) *Ledger {
	return &Ledger{
		outcomeA: cfg.OutcomeA,
		outcomeB: cfg.OutcomeB,
		pos: map[string]*Position{
			cfg.OutcomeA: {OutcomeID: cfg.OutcomeA},
			cfg.OutcomeB: {OutcomeID: cfg.OutcomeB},
		},
		seen:   make(map[string]struct{}),
		logger: cfg.Logger,
	}
}

// ApplyFill folds a fill into the position. A fill already applied is
// ignored and reported as not applied.
func (l *Ledger) ApplyFill(f Fill) (bool, error) {
	if f.Size.Sign() <= 0 {
		return false, fmt.Errorf("fill %s size %s: %w", f.Key(), f.Size, ErrInvalidFill)
	}
	if f.Price.Sign() < 0 || f.Price.GreaterThan(decimal.NewFromInt(1)) {
		return false, fmt.Errorf("fill %s price %s: %w", f.Key(), f.Price, ErrInvalidFill)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pos[f.OutcomeID]
	if !ok {
		return false, fmt.Errorf("fill %s outcome %s: %w", f.Key(), f.OutcomeID, ErrUnknownOutcome)
	}

	key := f.Key()
	if _, dup := l.seen[key]; dup {
		DuplicateFillsTotal.Inc()
		l.logger.Debug("fill-duplicate-ignored", zap.String("fill-key", key))
		return false, nil
	}
	l.seen[key] = struct{}{}

	switch f.Side {
	case Sell:
		sold := decimal.Min(f.Size, p.Quantity)
		if f.Size.GreaterThan(p.Quantity) {
			l.logger.Warn("fill-oversell-clamped",
				zap.String("outcome-id", f.OutcomeID),
				zap.String("size", f.Size.String()),
				zap.String("held", p.Quantity.String()))
		}
		p.Quantity = p.Quantity.Sub(sold)
		if p.Quantity.IsZero() {
			p.VWAP = decimal.Zero
		}
		if lockable := decimal.Min(l.pos[l.outcomeA].Quantity, l.pos[l.outcomeB].Quantity); l.lockedQuantity.GreaterThan(lockable) {
			l.lockedQuantity = lockable
		}
	default:
		// vwap' = (vwap*qty + price*size) / (qty + size)
		qty := p.Quantity.Add(f.Size)
		p.VWAP = p.VWAP.Mul(p.Quantity).Add(f.Price.Mul(f.Size)).Div(qty)
		p.Quantity = qty
	}

	l.totalTrades++
	l.totalVolume = l.totalVolume.Add(f.Price.Mul(f.Size))
	if f.Timestamp.After(l.lastFillAt) {
		l.lastFillAt = f.Timestamp
	}

	FillsAppliedTotal.WithLabelValues(string(f.Side)).Inc()
	Exposure.Set(l.exposure().InexactFloat64())

	l.logger.Info("fill-applied",
		zap.String("intent-id", f.IntentID),
		zap.String("outcome-id", f.OutcomeID),
		zap.String("side", string(f.Side)),
		zap.String("price", f.Price.String()),
		zap.String("size", f.Size.String()),
		zap.String("quantity", p.Quantity.String()),
		zap.String("vwap", p.VWAP.String()))

	return true, nil
}

func (l *Ledger) exposure() decimal.Decimal {
	return l.pos[l.outcomeA].Quantity.Sub(l.pos[l.outcomeB].Quantity)
}

// Exposure returns ΔQ = quantity(A) − quantity(B).
func (l *Ledger) Exposure() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.exposure()
}

// VWAP returns the average cost of an outcome, or false when nothing is held.
func (l *Ledger) VWAP(outcomeID string) (decimal.Decimal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.pos[outcomeID]
	if !ok || p.Quantity.Sign() <= 0 {
		return decimal.Zero, false
	}
	return p.VWAP, true
}

// Position returns a copy of one outcome's position.
func (l *Ledger) Position(outcomeID string) Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if p, ok := l.pos[outcomeID]; ok {
		return *p
	}
	return Position{OutcomeID: outcomeID}
}

// Positions returns both positions, A first.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return []Position{*l.pos[l.outcomeA], *l.pos[l.outcomeB]}
}

// LastFillAt is the newest fill timestamp applied, used for catch-up queries.
func (l *Ledger) LastFillAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.lastFillAt
}

// LockProfit books the profit of newly matched pairs. Returns the profit
// added, which is zero when nothing new can be locked.
func (l *Ledger) LockProfit() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, b := l.pos[l.outcomeA], l.pos[l.outcomeB]
	lockable := decimal.Min(a.Quantity, b.Quantity)
	if lockable.LessThanOrEqual(l.lockedQuantity) {
		return decimal.Zero
	}

	perUnit := decimal.NewFromInt(1).Sub(a.VWAP.Add(b.VWAP))
	if perUnit.Sign() <= 0 {
		return decimal.Zero
	}

	added := lockable.Sub(l.lockedQuantity).Mul(perUnit)
	l.lockedProfit = l.lockedProfit.Add(added)
	l.lockedQuantity = lockable
	l.completedRounds++

	LockedProfit.Set(l.lockedProfit.InexactFloat64())
	l.logger.Info("profit-locked",
		zap.String("added", added.String()),
		zap.String("locked-quantity", lockable.String()),
		zap.String("locked-profit", l.lockedProfit.String()),
		zap.Int("completed-rounds", l.completedRounds))

	return added
}

// Stats is a read-only summary of the ledger.
type Stats struct {
	Exposure        decimal.Decimal `json:"exposure"`
	LockedQuantity  decimal.Decimal `json:"locked_quantity"`
	LockedProfit    decimal.Decimal `json:"locked_profit"`
	CompletedRounds int             `json:"completed_rounds"`
	TotalTrades     int             `json:"total_trades"`
	TotalVolume     decimal.Decimal `json:"total_volume"`
	LastFillAt      time.Time       `json:"last_fill_at"`
}

// Stats returns the current summary.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Stats{
		Exposure:        l.exposure(),
		LockedQuantity:  l.lockedQuantity,
		LockedProfit:    l.lockedProfit,
		CompletedRounds: l.completedRounds,
		TotalTrades:     l.totalTrades,
		TotalVolume:     l.totalVolume,
		LastFillAt:      l.lastFillAt,
	}
}
