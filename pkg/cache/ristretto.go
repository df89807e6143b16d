package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoCache is a Cache backed by ristretto. Every entry costs 1, so
// MaxCost is an item count.
type RistrettoCache struct {
	name   string
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for a ristretto cache.
type RistrettoConfig struct {
	Name        string // metrics label
	NumCounters int64  // ~10x the expected number of items
	MaxCost     int64
	BufferItems int64
	Logger      *zap.Logger
}

// NewRistrettoCache creates a ristretto-backed cache. Zero sizes get
// defaults fit for a few hundred markets.
func NewRistrettoCache(cfg *RistrettoConfig) (*RistrettoCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 10_000
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1_000
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache %s: %w", cfg.Name, err)
	}

	return &RistrettoCache{
		name:   cfg.Name,
		cache:  c,
		logger: cfg.Logger.With(zap.String("cache", cfg.Name)),
	}, nil
}

// Get implements Cache.
func (r *RistrettoCache) Get(key string) (any, bool) {
	value, found := r.cache.Get(key)
	if found {
		HitsTotal.WithLabelValues(r.name).Inc()
	} else {
		MissesTotal.WithLabelValues(r.name).Inc()
	}
	return value, found
}

// Set implements Cache. The write is applied before Set returns, so a
// following Get observes it unless admission rejected the entry.
func (r *RistrettoCache) Set(key string, value any, ttl time.Duration) bool {
	ok := r.cache.SetWithTTL(key, value, 1, ttl)
	r.cache.Wait()

	result := "admitted"
	if !ok {
		result = "dropped"
	}
	SetsTotal.WithLabelValues(r.name, result).Inc()
	r.logger.Debug("cache-set", zap.String("key", key), zap.Duration("ttl", ttl), zap.Bool("admitted", ok))
	return ok
}

// Delete implements Cache.
func (r *RistrettoCache) Delete(key string) {
	r.cache.Del(key)
}

// Clear implements Cache.
func (r *RistrettoCache) Clear() {
	r.cache.Clear()
}

// Close implements Cache.
func (r *RistrettoCache) Close() {
	r.cache.Close()
}
