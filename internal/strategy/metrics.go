package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// EvaluationsTotal counts engine evaluations by resulting mode.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_strategy_evaluations_total",
			Help: "Total number of strategy evaluations by mode",
		},
		[]string{"mode"},
	)

	// ModeTransitionsTotal counts mode changes by target mode.
	ModeTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_strategy_mode_transitions_total",
			Help: "Total number of strategy mode transitions",
		},
		[]string{"to"},
	)

	// IntentsTotal counts emitted intents by action and role.
	IntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_strategy_intents_total",
			Help: "Total number of order intents emitted",
		},
		[]string{"action", "role"},
	)

	// InvariantViolationsTotal counts dropped intents by reason.
	InvariantViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_strategy_invariant_violations_total",
			Help: "Total number of intents dropped for breaking price or exposure bounds",
		},
		[]string{"reason"},
	)

	// WithheldTotal counts decisions withheld for missing or stale books.
	WithheldTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_strategy_withheld_total",
			Help: "Total number of pricing decisions withheld",
		},
		[]string{"role"},
	)

	// TrapPrice tracks the latest computed trap price per outcome label.
	TrapPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polymarket_strategy_trap_price",
			Help: "Latest computed trap price",
		},
		[]string{"leg"},
	)

	// HedgeCeiling tracks the latest computed maximum hedge price.
	HedgeCeiling = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_strategy_hedge_ceiling",
		Help: "Latest computed maximum hedge price",
	})
)
