package testutil

import (
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/orderbook"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
)

// Token ids of the fixture market.
const (
	ConditionID = "0xcond"
	TokenYes    = "tok-yes"
	TokenNo     = "tok-no"
)

// BinaryMarket returns an Up/Down market that expires at end.
func BinaryMarket(end time.Time) *types.BinaryMarket {
	return &types.BinaryMarket{
		ConditionID:  ConditionID,
		Slug:         "btc-updown-15m-test",
		Question:     "Bitcoin Up or Down?",
		OutcomeA:     TokenYes,
		OutcomeB:     TokenNo,
		LabelA:       "Up",
		LabelB:       "Down",
		EndTime:      end,
		TickSize:     0.01,
		MinOrderSize: 1,
	}
}

// D parses a decimal literal and panics on bad input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Levels builds a ladder side from price, size pairs.
func Levels(pairs ...string) []orderbook.Level {
	out := make([]orderbook.Level, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, orderbook.Level{Price: D(pairs[i]), Size: D(pairs[i+1])})
	}
	return out
}
