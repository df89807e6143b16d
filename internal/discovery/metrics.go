package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	MarketsScannedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_discovery_markets_scanned_total",
		Help: "Total number of Gamma markets examined",
	})

	MarketsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_discovery_markets_rejected_total",
		Help: "Total number of markets skipped, by reason",
	}, []string{"reason"})

	LookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_discovery_lookup_duration_seconds",
		Help:    "Duration of Gamma market lookups",
		Buckets: prometheus.DefBuckets,
	})

	LookupErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_discovery_lookup_errors_total",
		Help: "Total number of failed Gamma market lookups",
	})
)
