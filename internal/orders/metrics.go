package orders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// OrdersSubmittedTotal counts submitted orders by role.
	OrdersSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_orders_submitted_total",
			Help: "Total number of orders submitted",
		},
		[]string{"role"},
	)

	// TransitionsTotal counts state transitions by destination status.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_orders_transitions_total",
			Help: "Total number of order state transitions",
		},
		[]string{"status"},
	)

	// RejectsTotal counts orders rejected by the exchange.
	RejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_orders_rejected_total",
		Help: "Total number of orders rejected",
	})

	// IndeterminateTotal counts submits and cancels with an unknown outcome.
	IndeterminateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_orders_indeterminate_total",
		Help: "Total number of order calls with an indeterminate outcome",
	})

	// DuplicateIntentsTotal counts placements refused for a live intent id.
	DuplicateIntentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_orders_duplicate_intents_total",
		Help: "Total number of placements refused as duplicate intents",
	})

	// CancelsTotal counts cancel requests sent to the exchange.
	CancelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_orders_cancels_total",
		Help: "Total number of cancel requests sent",
	})

	// StatusPollsTotal counts status queries by result.
	StatusPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_orders_status_polls_total",
			Help: "Total number of order status queries",
		},
		[]string{"result"},
	)

	// SubmitDurationSeconds tracks order submission round trips.
	SubmitDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_orders_submit_duration_seconds",
		Help:    "Order submission round trip duration",
		Buckets: prometheus.DefBuckets,
	})

	// LiveOrders tracks non-terminal orders.
	LiveOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_orders_live",
		Help: "Number of non-terminal orders",
	})
)
