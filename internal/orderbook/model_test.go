package orderbook

import (
	"errors"
	"testing"

	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lvl(price, size string) Level {
	return Level{Price: d(price), Size: d(size)}
}

func newTestModel() *Model {
	return New(&Config{Logger: zap.NewNop()})
}

func TestBest_UnknownBeforeSnapshot(t *testing.T) {
	m := newTestModel()

	_, err := m.Best("tok")
	assert.ErrorIs(t, err, ErrUnknownBook)
	assert.True(t, m.IsStale("tok"))

	err = m.ApplyDiff("tok", 1, nil)
	assert.ErrorIs(t, err, ErrUnknownBook)
}

func TestApplySnapshot_Best(t *testing.T) {
	m := newTestModel()
	m.ApplySnapshot("tok", 0,
		[]Level{lvl("0.47", "10"), lvl("0.48", "30")},
		[]Level{lvl("0.53", "5"), lvl("0.52", "25")})

	q, err := m.Best("tok")
	require.NoError(t, err)
	assert.True(t, q.HasBid)
	assert.True(t, q.HasAsk)
	assert.True(t, q.BestBid.Equal(d("0.48")), "best bid %s", q.BestBid)
	assert.True(t, q.BestBidSize.Equal(d("30")))
	assert.True(t, q.BestAsk.Equal(d("0.52")), "best ask %s", q.BestAsk)
	assert.True(t, q.BestAskSize.Equal(d("25")))
	assert.Equal(t, uint64(0), q.Sequence)
}

func TestApplyDiff(t *testing.T) {
	tests := []struct {
		name      string
		changes   []Change
		wantBid   string
		wantAsk   string
		wantNoBid bool
	}{
		{
			name:    "new_better_bid",
			changes: []Change{{Side: Bid, Price: d("0.49"), Size: d("4")}},
			wantBid: "0.49",
			wantAsk: "0.52",
		},
		{
			name:    "remove_best_ask",
			changes: []Change{{Side: Ask, Price: d("0.52"), Size: d("0")}},
			wantBid: "0.48",
			wantAsk: "0.53",
		},
		{
			name:    "trailing_zero_price_matches_level",
			changes: []Change{{Side: Bid, Price: d("0.480"), Size: d("0")}},
			wantBid: "0.47",
			wantAsk: "0.52",
		},
		{
			name: "empty_bid_side",
			changes: []Change{
				{Side: Bid, Price: d("0.48"), Size: d("0")},
				{Side: Bid, Price: d("0.47"), Size: d("0")},
			},
			wantNoBid: true,
			wantAsk:   "0.52",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel()
			m.ApplySnapshot("tok", 0,
				[]Level{lvl("0.48", "30"), lvl("0.47", "10")},
				[]Level{lvl("0.52", "25"), lvl("0.53", "5")})

			require.NoError(t, m.ApplyDiff("tok", 1, tt.changes))

			q, err := m.Best("tok")
			require.NoError(t, err)
			assert.Equal(t, uint64(1), q.Sequence)
			if tt.wantNoBid {
				assert.False(t, q.HasBid)
			} else {
				assert.True(t, q.BestBid.Equal(d(tt.wantBid)), "best bid %s", q.BestBid)
			}
			assert.True(t, q.BestAsk.Equal(d(tt.wantAsk)), "best ask %s", q.BestAsk)
		})
	}
}

func TestApplyDiff_SequenceGapLeavesLadderUntouched(t *testing.T) {
	m := newTestModel()
	m.ApplySnapshot("tok", 0, []Level{lvl("0.48", "30")}, []Level{lvl("0.52", "25")})
	require.NoError(t, m.ApplyDiff("tok", 1, []Change{{Side: Bid, Price: d("0.49"), Size: d("1")}}))

	err := m.ApplyDiff("tok", 3, []Change{{Side: Ask, Price: d("0.50"), Size: d("9")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSequenceGap))

	seq, ok := m.LastSequence("tok")
	require.True(t, ok)
	assert.Equal(t, uint64(1), seq)

	bids, asks, err := m.Levels("tok", 0)
	require.NoError(t, err)
	assert.Len(t, bids, 2)
	require.Len(t, asks, 1)
	assert.True(t, asks[0].Price.Equal(d("0.52")))

	_, err = m.Best("tok")
	assert.ErrorIs(t, err, ErrStaleBook)

	// A replayed diff is a gap as well.
	err = m.ApplyDiff("tok", 1, nil)
	assert.ErrorIs(t, err, ErrSequenceGap)
}

func TestResyncEqualsCleanSnapshot(t *testing.T) {
	bids := []Level{lvl("0.45", "12"), lvl("0.44", "3")}
	asks := []Level{lvl("0.55", "8"), lvl("0.56", "2")}

	dirty := newTestModel()
	dirty.ApplySnapshot("tok", 0, []Level{lvl("0.48", "30")}, []Level{lvl("0.52", "25")})
	require.NoError(t, dirty.ApplyDiff("tok", 1, []Change{{Side: Bid, Price: d("0.50"), Size: d("7")}}))
	require.ErrorIs(t, dirty.ApplyDiff("tok", 4, nil), ErrSequenceGap)
	dirty.ApplySnapshot("tok", 0, bids, asks)

	clean := newTestModel()
	clean.ApplySnapshot("tok", 0, bids, asks)

	dq, err := dirty.Best("tok")
	require.NoError(t, err)
	cq, err := clean.Best("tok")
	require.NoError(t, err)

	assert.True(t, dq.BestBid.Equal(cq.BestBid))
	assert.True(t, dq.BestAsk.Equal(cq.BestAsk))
	assert.Equal(t, cq.Sequence, dq.Sequence)

	db, da, _ := dirty.Levels("tok", 0)
	cb, ca, _ := clean.Levels("tok", 0)
	assert.Equal(t, len(cb), len(db))
	assert.Equal(t, len(ca), len(da))
	for i := range cb {
		assert.True(t, cb[i].Price.Equal(db[i].Price))
		assert.True(t, cb[i].Size.Equal(db[i].Size))
	}

	// Diffs continue from the snapshot sequence.
	require.NoError(t, dirty.ApplyDiff("tok", 1, nil))
}

func TestCrossedBookIsStaleUntilValidDiff(t *testing.T) {
	m := newTestModel()
	m.ApplySnapshot("tok", 0, []Level{lvl("0.48", "30")}, []Level{lvl("0.52", "25")})

	require.NoError(t, m.ApplyDiff("tok", 1, []Change{{Side: Bid, Price: d("0.53"), Size: d("1")}}))
	_, err := m.Best("tok")
	assert.ErrorIs(t, err, ErrStaleBook)

	require.NoError(t, m.ApplyDiff("tok", 2, []Change{{Side: Bid, Price: d("0.53"), Size: d("0")}}))
	q, err := m.Best("tok")
	require.NoError(t, err)
	assert.True(t, q.BestBid.Equal(d("0.48")))
}

func TestCrossedSnapshotIsStale(t *testing.T) {
	m := newTestModel()
	m.ApplySnapshot("tok", 0, []Level{lvl("0.52", "1")}, []Level{lvl("0.52", "1")})

	_, err := m.Best("tok")
	assert.ErrorIs(t, err, ErrStaleBook)
}

func TestMarkAllStale(t *testing.T) {
	m := newTestModel()
	m.ApplySnapshot("a", 0, []Level{lvl("0.48", "1")}, []Level{lvl("0.52", "1")})
	m.ApplySnapshot("b", 0, []Level{lvl("0.46", "1")}, []Level{lvl("0.50", "1")})

	m.MarkAllStale()
	for _, id := range []string{"a", "b"} {
		_, err := m.Best(id)
		assert.ErrorIs(t, err, ErrStaleBook, id)
	}

	// Marking is not enough to recover; only a fresh snapshot is.
	m.ApplySnapshot("a", 0, []Level{lvl("0.48", "1")}, []Level{lvl("0.52", "1")})
	_, err := m.Best("a")
	assert.NoError(t, err)
	assert.True(t, m.IsStale("b"))
}

func TestLevels_Depth(t *testing.T) {
	m := newTestModel()
	m.ApplySnapshot("tok", 0,
		[]Level{lvl("0.40", "1"), lvl("0.42", "1"), lvl("0.41", "1")},
		[]Level{lvl("0.60", "1"), lvl("0.58", "1"), lvl("0.59", "1")})

	bids, asks, err := m.Levels("tok", 2)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Len(t, asks, 2)
	assert.True(t, bids[0].Price.Equal(d("0.42")))
	assert.True(t, bids[1].Price.Equal(d("0.41")))
	assert.True(t, asks[0].Price.Equal(d("0.58")))
	assert.True(t, asks[1].Price.Equal(d("0.59")))

	_, _, err = m.Levels("other", 1)
	assert.ErrorIs(t, err, ErrUnknownBook)
}

func TestParseLevelsAndChange(t *testing.T) {
	levels, err := ParseLevels([]types.PriceLevel{{Price: "0.48", Size: "30"}, {Price: "0.47", Size: "1.5"}})
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.True(t, levels[1].Size.Equal(d("1.5")))

	_, err = ParseLevels([]types.PriceLevel{{Price: "abc", Size: "1"}})
	assert.Error(t, err)

	c, err := ParseChange(types.PriceChange{AssetID: "tok", Price: "0.5", Size: "200", Side: "BUY"})
	require.NoError(t, err)
	assert.Equal(t, Bid, c.Side)
	assert.True(t, c.Size.Equal(d("200")))

	c, err = ParseChange(types.PriceChange{Price: "0.5", Size: "0", Side: "SELL"})
	require.NoError(t, err)
	assert.Equal(t, Ask, c.Side)

	_, err = ParseChange(types.PriceChange{Price: "0.5", Size: "1", Side: "SIDEWAYS"})
	assert.Error(t, err)
}
