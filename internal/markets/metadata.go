// Package markets resolves per-token trading rules (tick size and minimum
// order size) from the CLOB, cached across sessions.
package markets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-boxspread/pkg/cache"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/mselser95/polymarket-boxspread/pkg/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultTTL = 24 * time.Hour

// Fetcher reads token rules from the exchange.
type Fetcher interface {
	TickSize(ctx context.Context, tokenID string) (float64, error)
	BookSnapshot(ctx context.Context, tokenID string) (*types.BookMessage, error)
}

// Metadata holds the trading rules of one token.
type Metadata struct {
	TickSize     decimal.Decimal
	MinOrderSize decimal.Decimal
	FetchedAt    time.Time
}

// Rules are the effective rules for a market: the coarser tick and the
// larger minimum across both outcomes.
type Rules struct {
	TickSize     decimal.Decimal
	MinOrderSize decimal.Decimal
}

// Config holds service configuration.
type Config struct {
	Fetcher Fetcher
	Cache   cache.Cache // nil disables caching
	TTL     time.Duration

	// Fallbacks used when the exchange omits a value.
	DefaultTickSize     decimal.Decimal
	DefaultMinOrderSize decimal.Decimal

	Retry  websocket.RetryConfig
	Logger *zap.Logger
}

// Service looks up and caches token metadata.
type Service struct {
	cfg    *Config
	logger *zap.Logger
}

// New creates a metadata service.
func New(cfg *Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.DefaultTickSize.IsZero() {
		cfg.DefaultTickSize = decimal.RequireFromString("0.01")
	}
	if cfg.DefaultMinOrderSize.IsZero() {
		cfg.DefaultMinOrderSize = decimal.NewFromInt(5)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = websocket.RetryConfig{
			InitialDelay:      200 * time.Millisecond,
			MaxDelay:          2 * time.Second,
			BackoffMultiplier: 2,
			MaxAttempts:       3,
		}
	}
	return &Service{cfg: cfg, logger: cfg.Logger}
}

func cacheKey(tokenID string) string {
	return "metadata:" + tokenID
}

// Token returns a token's rules, from cache when fresh.
func (s *Service) Token(ctx context.Context, tokenID string) (Metadata, error) {
	if s.cfg.Cache != nil {
		if v, ok := s.cfg.Cache.Get(cacheKey(tokenID)); ok {
			if meta, ok := v.(Metadata); ok {
				CacheHitsTotal.Inc()
				return meta, nil
			}
		}
		CacheMissesTotal.Inc()
	}

	meta, err := s.fetch(ctx, tokenID)
	if err != nil {
		return Metadata{}, err
	}

	if s.cfg.Cache != nil {
		s.cfg.Cache.Set(cacheKey(tokenID), meta, s.cfg.TTL)
	}
	return meta, nil
}

func (s *Service) fetch(ctx context.Context, tokenID string) (Metadata, error) {
	start := time.Now()
	defer func() { FetchDuration.Observe(time.Since(start).Seconds()) }()

	tick, err := withRetry(ctx, s.cfg.Retry, func() (float64, error) {
		return s.cfg.Fetcher.TickSize(ctx, tokenID)
	})
	if err != nil {
		FetchErrorsTotal.WithLabelValues("tick-size").Inc()
		return Metadata{}, fmt.Errorf("tick size for %s: %w", tokenID, err)
	}

	meta := Metadata{
		TickSize:     s.cfg.DefaultTickSize,
		MinOrderSize: s.cfg.DefaultMinOrderSize,
		FetchedAt:    time.Now(),
	}
	if tick > 0 {
		meta.TickSize = decimal.NewFromFloat(tick)
	}

	// The minimum size only appears on the book. A missing book keeps the default.
	book, err := withRetry(ctx, s.cfg.Retry, func() (*types.BookMessage, error) {
		return s.cfg.Fetcher.BookSnapshot(ctx, tokenID)
	})
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return Metadata{}, ctx.Err()
		}
		FetchErrorsTotal.WithLabelValues("book").Inc()
		s.logger.Warn("min-order-size-unavailable",
			zap.String("token-id", tokenID),
			zap.String("default", meta.MinOrderSize.String()),
			zap.Error(err))
	case book.MinOrderSize != "":
		if v, perr := decimal.NewFromString(book.MinOrderSize); perr == nil && v.IsPositive() {
			meta.MinOrderSize = v
		}
	}

	s.logger.Debug("token-metadata-fetched",
		zap.String("token-id", tokenID),
		zap.String("tick-size", meta.TickSize.String()),
		zap.String("min-order-size", meta.MinOrderSize.String()))

	return meta, nil
}

// ForMarket resolves the effective rules of a binary market. configMin is
// the operator's floor; the exchange minimum wins when it is larger.
func (s *Service) ForMarket(ctx context.Context, m *types.BinaryMarket, configMin decimal.Decimal) (Rules, error) {
	rules := Rules{MinOrderSize: configMin}

	for _, tokenID := range m.Outcomes() {
		meta, err := s.Token(ctx, tokenID)
		if err != nil {
			return Rules{}, err
		}
		if meta.TickSize.GreaterThan(rules.TickSize) {
			rules.TickSize = meta.TickSize
		}
		if meta.MinOrderSize.GreaterThan(rules.MinOrderSize) {
			rules.MinOrderSize = meta.MinOrderSize
		}
	}

	return rules, nil
}

// UpdateTickSize applies a tick_size_change event to a cached entry.
// Uncached tokens are left to the next lookup.
func (s *Service) UpdateTickSize(tokenID string, tick decimal.Decimal) {
	if s.cfg.Cache == nil || !tick.IsPositive() {
		return
	}

	v, ok := s.cfg.Cache.Get(cacheKey(tokenID))
	if !ok {
		return
	}
	meta, ok := v.(Metadata)
	if !ok {
		return
	}

	TickSizeUpdatesTotal.Inc()
	s.logger.Info("tick-size-updated",
		zap.String("token-id", tokenID),
		zap.String("old", meta.TickSize.String()),
		zap.String("new", tick.String()))

	meta.TickSize = tick
	meta.FetchedAt = time.Now()
	s.cfg.Cache.Set(cacheKey(tokenID), meta, s.cfg.TTL)
}

func withRetry[T any](ctx context.Context, cfg websocket.RetryConfig, fn func() (T, error)) (T, error) {
	retry := websocket.NewRetry(cfg)
	for {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		var zero T
		if ctx.Err() != nil {
			return zero, errors.Join(ctx.Err(), err)
		}
		if _, retryErr := retry.Fail(); retryErr != nil {
			return zero, err
		}
		if waitErr := retry.Wait(ctx); waitErr != nil {
			return zero, waitErr
		}
	}
}
