package cmd

import (
	"errors"
	"testing"

	"github.com/mselser95/polymarket-boxspread/internal/orderbook"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLockedValue(t *testing.T) {
	tests := []struct {
		name string
		open []types.OrderQueryResponse
		want string
	}{
		{name: "empty", want: "0"},
		{
			name: "unmatched remainder only",
			open: []types.OrderQueryResponse{
				{Price: "0.48", OriginalSize: "10", SizeMatched: "4"},
				{Price: "0.50", OriginalSize: "5", SizeMatched: "0"},
			},
			want: "5.38",
		},
		{
			name: "bad rows skipped",
			open: []types.OrderQueryResponse{
				{Price: "x", OriginalSize: "10"},
				{Price: "0.40", OriginalSize: "10", SizeMatched: ""},
			},
			want: "4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lockedValue(tt.open)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "0xabc", shorten("0xabc", 12))
	assert.Equal(t, "0x1234567890...", shorten("0x1234567890abcdef", 12))
}

func TestTopOf(t *testing.T) {
	assert.Equal(t, "stale", topOf(orderbook.Quote{}, errors.New("stale")))
	assert.Equal(t, "-/-", topOf(orderbook.Quote{}, nil))
	assert.Equal(t, "0.48/0.5", topOf(orderbook.Quote{
		BestBid: decimal.RequireFromString("0.48"), HasBid: true,
		BestAsk: decimal.RequireFromString("0.50"), HasAsk: true,
	}, nil))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "cancel-orders", "next-market", "watch-book", "balance"} {
		assert.True(t, names[want], want)
	}

	once := runCmd.Flags().Lookup("once")
	if assert.NotNil(t, once) {
		assert.Equal(t, "false", once.DefValue)
	}
}
