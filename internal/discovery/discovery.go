// Package discovery picks the market a session trades: the soonest-ending
// open market of the configured series.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mselser95/polymarket-boxspread/pkg/cache"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"go.uber.org/zap"
)

// ErrNoMarket means no open market qualifies right now.
var ErrNoMarket = errors.New("no qualifying market")

const (
	cacheKey = "next-market"
	maxPages = 5
)

// Fetcher lists markets from Gamma.
type Fetcher interface {
	FetchMarkets(ctx context.Context, q Query) ([]types.Market, error)
}

// Config holds discovery configuration.
type Config struct {
	Client   Fetcher
	Cache    cache.Cache // nil disables caching
	CacheTTL time.Duration

	SlugPrefix       string
	MinTimeRemaining time.Duration

	// Static bypasses Gamma entirely.
	Static *types.BinaryMarket

	Logger *zap.Logger
	Now    func() time.Time
}

// Service selects markets.
type Service struct {
	cfg    *Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a discovery service.
func New(cfg *Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{cfg: cfg, logger: cfg.Logger, now: now}
}

// NextMarket returns the soonest-ending market that still has at least
// MinTimeRemaining to run.
func (s *Service) NextMarket(ctx context.Context) (*types.BinaryMarket, error) {
	now := s.now()

	if s.cfg.Static != nil {
		m := s.cfg.Static
		if !m.EndTime.IsZero() && m.TimeToExpiry(now) <= 0 {
			return nil, fmt.Errorf("static market %s ended at %s: %w", m.ConditionID, m.EndTime, ErrNoMarket)
		}
		return m, nil
	}

	if m := s.cached(now); m != nil {
		return m, nil
	}

	start := time.Now()
	defer func() { LookupDuration.Observe(time.Since(start).Seconds()) }()

	for page := range maxPages {
		markets, err := s.cfg.Client.FetchMarkets(ctx, Query{
			EndDateMin: now,
			Limit:      MaxBatchSize,
			Offset:     page * MaxBatchSize,
		})
		if err != nil {
			LookupErrorsTotal.Inc()
			return nil, fmt.Errorf("fetch markets page %d: %w", page, err)
		}
		MarketsScannedTotal.Add(float64(len(markets)))

		if m := s.pick(markets, now); m != nil {
			s.logger.Info("market-selected",
				zap.String("slug", m.Slug),
				zap.String("condition-id", m.ConditionID),
				zap.Time("end-time", m.EndTime),
				zap.Duration("time-remaining", m.TimeToExpiry(now)))
			if s.cfg.Cache != nil {
				s.cfg.Cache.Set(cacheKey, m, s.cfg.CacheTTL)
			}
			return m, nil
		}

		if len(markets) < MaxBatchSize {
			break
		}
	}

	return nil, ErrNoMarket
}

// Invalidate drops the cached selection, e.g. after a session on it ended.
func (s *Service) Invalidate() {
	if s.cfg.Cache != nil {
		s.cfg.Cache.Delete(cacheKey)
	}
}

func (s *Service) cached(now time.Time) *types.BinaryMarket {
	if s.cfg.Cache == nil {
		return nil
	}
	v, ok := s.cfg.Cache.Get(cacheKey)
	if !ok {
		return nil
	}
	m, ok := v.(*types.BinaryMarket)
	if !ok || m.TimeToExpiry(now) < s.cfg.MinTimeRemaining {
		s.cfg.Cache.Delete(cacheKey)
		return nil
	}
	return m
}

// pick returns the qualifying market ending soonest.
func (s *Service) pick(markets []types.Market, now time.Time) *types.BinaryMarket {
	var best *types.BinaryMarket

	for i := range markets {
		m := &markets[i]
		reason := s.reject(m, now)
		if reason != "" {
			MarketsRejectedTotal.WithLabelValues(reason).Inc()
			continue
		}

		bm, ok := m.ToBinaryMarket()
		if !ok {
			MarketsRejectedTotal.WithLabelValues("outcomes").Inc()
			s.logger.Debug("skipping-market-outcomes", zap.String("slug", m.Slug))
			continue
		}
		if best == nil || bm.EndTime.Before(best.EndTime) {
			best = bm
		}
	}

	return best
}

func (s *Service) reject(m *types.Market, now time.Time) string {
	switch {
	case s.cfg.SlugPrefix != "" && !strings.HasPrefix(m.Slug, s.cfg.SlugPrefix):
		return "slug"
	case m.Closed || !m.AcceptingOrders:
		return "not-accepting"
	case len(m.Tokens) != 2:
		return "tokens"
	case m.EndDate.Sub(now) < s.cfg.MinTimeRemaining:
		return "too-late"
	}
	return ""
}
