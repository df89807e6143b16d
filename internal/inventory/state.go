package inventory

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// State is the persisted form of a ledger.
type State struct {
	OutcomeA        string          `json:"outcome_a"`
	OutcomeB        string          `json:"outcome_b"`
	Positions       []Position      `json:"positions"`
	LockedQuantity  decimal.Decimal `json:"locked_quantity"`
	LockedProfit    decimal.Decimal `json:"locked_profit"`
	CompletedRounds int             `json:"completed_rounds"`
	TotalTrades     int             `json:"total_trades"`
	TotalVolume     decimal.Decimal `json:"total_volume"`
	LastFillAt      time.Time       `json:"last_fill_at"`
	FillKeys        []string        `json:"fill_keys"`
}

// Snapshot captures the ledger for persistence.
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]string, 0, len(l.seen))
	for k := range l.seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return State{
		OutcomeA:        l.outcomeA,
		OutcomeB:        l.outcomeB,
		Positions:       []Position{*l.pos[l.outcomeA], *l.pos[l.outcomeB]},
		LockedQuantity:  l.lockedQuantity,
		LockedProfit:    l.lockedProfit,
		CompletedRounds: l.completedRounds,
		TotalTrades:     l.totalTrades,
		TotalVolume:     l.totalVolume,
		LastFillAt:      l.lastFillAt,
		FillKeys:        keys,
	}
}

// Restore replaces the ledger contents with a saved state for the same market.
func (l *Ledger) Restore(s State) error {
	if s.OutcomeA != l.outcomeA || s.OutcomeB != l.outcomeB {
		return fmt.Errorf("restore state for %s/%s into %s/%s: %w",
			s.OutcomeA, s.OutcomeB, l.outcomeA, l.outcomeB, ErrUnknownOutcome)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range s.Positions {
		if _, ok := l.pos[p.OutcomeID]; !ok {
			return fmt.Errorf("restore position %s: %w", p.OutcomeID, ErrUnknownOutcome)
		}
		if p.Quantity.Sign() < 0 {
			return fmt.Errorf("restore position %s quantity %s: %w", p.OutcomeID, p.Quantity, ErrInvalidFill)
		}
	}
	for _, p := range s.Positions {
		cp := p
		l.pos[p.OutcomeID] = &cp
	}

	l.seen = make(map[string]struct{}, len(s.FillKeys))
	for _, k := range s.FillKeys {
		l.seen[k] = struct{}{}
	}
	l.lockedQuantity = s.LockedQuantity
	l.lockedProfit = s.LockedProfit
	l.completedRounds = s.CompletedRounds
	l.totalTrades = s.TotalTrades
	l.totalVolume = s.TotalVolume
	l.lastFillAt = s.LastFillAt

	Exposure.Set(l.exposure().InexactFloat64())
	LockedProfit.Set(l.lockedProfit.InexactFloat64())

	return nil
}
