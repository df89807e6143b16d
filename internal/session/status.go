package session

import (
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/circuitbreaker"
	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"github.com/mselser95/polymarket-boxspread/internal/orders"
	"github.com/mselser95/polymarket-boxspread/internal/strategy"
	"github.com/shopspring/decimal"
)

// BookStatus is the top of one outcome's book.
type BookStatus struct {
	OutcomeID string           `json:"outcome_id"`
	Label     string           `json:"label"`
	BestBid   *decimal.Decimal `json:"best_bid,omitempty"`
	BestAsk   *decimal.Decimal `json:"best_ask,omitempty"`
	Sequence  uint64           `json:"sequence"`
	Stale     bool             `json:"stale"`
}

// Status is a point-in-time view of a session for the HTTP API.
type Status struct {
	SessionID   string                `json:"session_id"`
	ConditionID string                `json:"condition_id"`
	Slug        string                `json:"slug"`
	EndTime     time.Time             `json:"end_time"`
	Mode        strategy.Mode         `json:"mode"`
	Ready       bool                  `json:"ready"`
	DeltaQ      decimal.Decimal       `json:"delta_q"`
	Positions   []inventory.Position  `json:"positions"`
	Ledger      inventory.Stats       `json:"ledger"`
	LiveOrders  []orders.Order        `json:"live_orders"`
	Books       []BookStatus          `json:"books"`
	Breaker     circuitbreaker.Status `json:"breaker"`
}

// Status may be called from any goroutine.
func (s *Session) Status() Status {
	st := Status{
		SessionID:   s.id,
		ConditionID: s.market.ConditionID,
		Slug:        s.market.Slug,
		EndTime:     s.market.EndTime,
		Mode:        s.Mode(),
		Ready:       s.Ready(),
		DeltaQ:      s.ledger.Exposure(),
		Positions:   s.ledger.Positions(),
		Ledger:      s.ledger.Stats(),
		LiveOrders:  s.orders.Live(),
		Breaker:     s.breaker.Status(),
	}

	for _, outcome := range s.market.Outcomes() {
		b := BookStatus{OutcomeID: outcome, Label: s.market.Label(outcome), Stale: s.books.IsStale(outcome)}
		b.Sequence, _ = s.books.LastSequence(outcome)
		if q, err := s.books.Best(outcome); err == nil {
			if q.HasBid {
				b.BestBid = &q.BestBid
			}
			if q.HasAsk {
				b.BestAsk = &q.BestAsk
			}
		}
		st.Books = append(st.Books, b)
	}

	return st
}
