package markets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_markets_metadata_fetch_duration_seconds",
		Help:    "Duration of token metadata fetches from the CLOB API",
		Buckets: prometheus.DefBuckets,
	})

	FetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_markets_metadata_fetch_errors_total",
		Help: "Total number of token metadata fetch errors",
	}, []string{"endpoint"})

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_markets_metadata_cache_hits_total",
		Help: "Total number of metadata cache hits",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_markets_metadata_cache_misses_total",
		Help: "Total number of metadata cache misses",
	})

	TickSizeUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_markets_tick_size_updates_total",
		Help: "Total number of tick size changes applied from the market stream",
	})
)
