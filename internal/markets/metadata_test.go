package markets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/polymarket-boxspread/pkg/cache"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/mselser95/polymarket-boxspread/pkg/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeFetcher struct {
	mu        sync.Mutex
	ticks     map[string]float64
	minSizes  map[string]string
	tickErrs  int // fail this many tick calls first
	bookErr   error
	tickCalls int
	bookCalls int
}

func (f *fakeFetcher) TickSize(_ context.Context, tokenID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickCalls++
	if f.tickErrs > 0 {
		f.tickErrs--
		return 0, errors.New("connection reset")
	}
	return f.ticks[tokenID], nil
}

func (f *fakeFetcher) BookSnapshot(_ context.Context, tokenID string) (*types.BookMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookCalls++
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	return &types.BookMessage{AssetID: tokenID, MinOrderSize: f.minSizes[tokenID]}, nil
}

func fastRetry() websocket.RetryConfig {
	return websocket.RetryConfig{
		InitialDelay:      time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxAttempts:       3,
	}
}

func newService(t *testing.T, f Fetcher, withCache bool) *Service {
	t.Helper()
	cfg := &Config{Fetcher: f, Retry: fastRetry(), Logger: zaptest.NewLogger(t)}
	if withCache {
		c, err := cache.NewRistrettoCache(&cache.RistrettoConfig{Name: "metadata-test", Logger: zaptest.NewLogger(t)})
		require.NoError(t, err)
		t.Cleanup(c.Close)
		cfg.Cache = c
	}
	return New(cfg)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestService_Token(t *testing.T) {
	tests := []struct {
		name     string
		fetcher  *fakeFetcher
		wantTick string
		wantMin  string
		wantErr  bool
	}{
		{
			name:     "exchange values",
			fetcher:  &fakeFetcher{ticks: map[string]float64{"tok-a": 0.001}, minSizes: map[string]string{"tok-a": "15"}},
			wantTick: "0.001",
			wantMin:  "15",
		},
		{
			name:     "defaults when omitted",
			fetcher:  &fakeFetcher{},
			wantTick: "0.01",
			wantMin:  "5",
		},
		{
			name:     "book failure keeps default min size",
			fetcher:  &fakeFetcher{ticks: map[string]float64{"tok-a": 0.01}, bookErr: errors.New("502")},
			wantTick: "0.01",
			wantMin:  "5",
		},
		{
			name:     "transient tick failures are retried",
			fetcher:  &fakeFetcher{ticks: map[string]float64{"tok-a": 0.01}, tickErrs: 2},
			wantTick: "0.01",
			wantMin:  "5",
		},
		{
			name:    "tick failures exhaust retries",
			fetcher: &fakeFetcher{tickErrs: 10},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newService(t, tt.fetcher, false)

			meta, err := s.Token(context.Background(), "tok-a")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, 3, tt.fetcher.tickCalls)
				return
			}
			require.NoError(t, err)
			assert.True(t, meta.TickSize.Equal(d(tt.wantTick)), "tick %s", meta.TickSize)
			assert.True(t, meta.MinOrderSize.Equal(d(tt.wantMin)), "min %s", meta.MinOrderSize)
			assert.False(t, meta.FetchedAt.IsZero())
		})
	}
}

func TestService_TokenIsCached(t *testing.T) {
	f := &fakeFetcher{ticks: map[string]float64{"tok-a": 0.01}, minSizes: map[string]string{"tok-a": "5"}}
	s := newService(t, f, true)

	_, err := s.Token(context.Background(), "tok-a")
	require.NoError(t, err)
	_, err = s.Token(context.Background(), "tok-a")
	require.NoError(t, err)

	assert.Equal(t, 1, f.tickCalls)
	assert.Equal(t, 1, f.bookCalls)
}

func TestService_ForMarket(t *testing.T) {
	f := &fakeFetcher{
		ticks:    map[string]float64{"tok-a": 0.01, "tok-b": 0.001},
		minSizes: map[string]string{"tok-a": "5", "tok-b": "8"},
	}
	s := newService(t, f, false)
	m := &types.BinaryMarket{OutcomeA: "tok-a", OutcomeB: "tok-b"}

	rules, err := s.ForMarket(context.Background(), m, d("1"))
	require.NoError(t, err)
	assert.True(t, rules.TickSize.Equal(d("0.01")))
	assert.True(t, rules.MinOrderSize.Equal(d("8")), "exchange minimum above the configured floor")

	rules, err = s.ForMarket(context.Background(), m, d("12"))
	require.NoError(t, err)
	assert.True(t, rules.MinOrderSize.Equal(d("12")), "configured floor above the exchange minimum")
}

func TestService_UpdateTickSize(t *testing.T) {
	f := &fakeFetcher{ticks: map[string]float64{"tok-a": 0.01}}
	s := newService(t, f, true)

	s.UpdateTickSize("tok-a", d("0.001"))
	_, err := s.Token(context.Background(), "tok-a")
	require.NoError(t, err)
	assert.Equal(t, 1, f.tickCalls, "uncached update is a no-op")

	s.UpdateTickSize("tok-a", d("0.001"))
	meta, err := s.Token(context.Background(), "tok-a")
	require.NoError(t, err)
	assert.True(t, meta.TickSize.Equal(d("0.001")))
	assert.Equal(t, 1, f.tickCalls)
}

func TestService_ContextCancelled(t *testing.T) {
	f := &fakeFetcher{tickErrs: 10}
	s := newService(t, f, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Token(ctx, "tok-a")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
