package inventory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// FillsAppliedTotal counts fills folded into positions by side.
	FillsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_inventory_fills_applied_total",
			Help: "Total number of fills applied to the ledger",
		},
		[]string{"side"},
	)

	// DuplicateFillsTotal counts fills ignored because they were already applied.
	DuplicateFillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_inventory_duplicate_fills_total",
		Help: "Total number of duplicate fills ignored",
	})

	// Exposure tracks ΔQ = quantity(A) − quantity(B).
	Exposure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_inventory_exposure",
		Help: "Current inventory imbalance between outcome A and B",
	})

	// LockedProfit tracks the profit locked by matched pairs in USDC.
	LockedProfit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_inventory_locked_profit_usdc",
		Help: "Profit locked by matched outcome pairs",
	})
)
