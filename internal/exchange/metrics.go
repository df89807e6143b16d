package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// RequestsTotal tracks CLOB REST calls by outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_exchange_requests_total",
			Help: "Total number of CLOB REST requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration tracks CLOB REST latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polymarket_exchange_request_duration_seconds",
			Help:    "Duration of CLOB REST requests",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// OrderSubmissionsTotal tracks order submissions by result.
	OrderSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_exchange_order_submissions_total",
			Help: "Total number of order submissions",
		},
		[]string{"result"},
	)

	// CancelsTotal tracks single-order cancel results.
	CancelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_exchange_cancels_total",
			Help: "Total number of order cancellations",
		},
		[]string{"result"},
	)
)
