package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// UpdatesTotal tracks applied book updates by kind (snapshot, diff).
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_orderbook_updates_total",
			Help: "Total number of orderbook updates applied",
		},
		[]string{"kind"},
	)

	// UpdateProcessingDuration tracks the time spent applying an update.
	UpdateProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_orderbook_update_processing_seconds",
		Help:    "Time spent applying an orderbook update",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
	})

	// SequenceGapsTotal counts diffs rejected for a sequence gap.
	SequenceGapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_orderbook_sequence_gaps_total",
		Help: "Total number of diffs rejected for a sequence gap",
	})

	// CrossedBooksTotal counts transitions into a crossed book.
	CrossedBooksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_orderbook_crossed_total",
		Help: "Total number of times a book became crossed",
	})

	// BooksTracked tracks the number of ladders held in memory.
	BooksTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_orderbook_books_tracked",
		Help: "Number of outcome ladders held in memory",
	})
)
