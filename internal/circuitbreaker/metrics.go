package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	Tripped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_circuit_breaker_tripped",
		Help: "Whether new placements are halted (1=halted, 0=open)",
	})

	TripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_circuit_breaker_trips_total",
		Help: "Total number of breaker trips, by reason",
	}, []string{"reason"})

	BlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_circuit_breaker_blocked_total",
		Help: "Total number of placements blocked while tripped",
	}, []string{"reason", "role"})

	ConsecutiveRejects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_circuit_breaker_consecutive_rejects",
		Help: "Current streak of rejected placements",
	})
)
