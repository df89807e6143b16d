package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ActiveSessions is 1 while a market session runs.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_session_active",
		Help: "Market sessions currently running",
	})

	// SessionsTotal counts finished sessions by exit reason.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_session_finished_total",
		Help: "Finished market sessions by exit reason",
	}, []string{"reason"})

	// FillsParkedTotal counts fills that arrived before their order was known.
	FillsParkedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_session_fills_parked_total",
		Help: "Fills parked while waiting for their order's ack",
	})

	// FillsDroppedTotal counts parked fills that never matched an order.
	FillsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_session_fills_dropped_total",
		Help: "Parked fills dropped because no order claimed them",
	})

	// ResyncRequestsTotal counts book resyncs requested by the session.
	ResyncRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_session_resync_requests_total",
		Help: "Book resyncs requested after a rejected diff",
	})

	// PlacementsBlockedTotal counts placements held back by the circuit breaker.
	PlacementsBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_session_placements_blocked_total",
		Help: "Order placements blocked by the circuit breaker",
	}, []string{"role"})

	// StateOperationsTotal counts state file restores and writes.
	StateOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_session_state_operations_total",
		Help: "State file operations by kind and result",
	}, []string{"operation", "result"})

	// FlattensTotal counts shutdown flatten attempts by final order status.
	FlattensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_session_flattens_total",
		Help: "Shutdown flatten orders by outcome",
	}, []string{"result"})

	// FillRecordsTotal counts fill writes to storage by result.
	FillRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_session_fill_records_total",
		Help: "Fill records written to storage by result",
	}, []string{"result"})

	// ShutdownDuration tracks how long the shutdown sequence takes.
	ShutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_session_shutdown_duration_seconds",
		Help:    "Duration of the session shutdown sequence",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
	})
)
