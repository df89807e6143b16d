// Package storage journals fills and session summaries.
package storage

import (
	"context"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"github.com/shopspring/decimal"
)

// Summary describes one finished market session.
type Summary struct {
	SessionID       string
	ConditionID     string
	Slug            string
	Mode            string // execution mode
	StartedAt       time.Time
	EndedAt         time.Time
	ExitReason      string
	FinalMode       string // strategy mode at exit
	QuantityA       decimal.Decimal
	QuantityB       decimal.Decimal
	VWAPA           decimal.Decimal
	VWAPB           decimal.Decimal
	FinalExposure   decimal.Decimal
	LockedProfit    decimal.Decimal
	CompletedRounds int
	TotalTrades     int
	TotalVolume     decimal.Decimal
}

// Storage is the journal for applied fills and finished sessions.
type Storage interface {
	// RecordFill stores a fill applied to the ledger of a market.
	RecordFill(ctx context.Context, conditionID string, fill inventory.Fill) error

	// RecordSession stores a session summary.
	RecordSession(ctx context.Context, s *Summary) error

	Close() error
}
