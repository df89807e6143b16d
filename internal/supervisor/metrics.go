package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// EventsTotal tracks events delivered to the session loop.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_supervisor_events_total",
			Help: "Total number of stream events delivered",
		},
		[]string{"kind"},
	)

	// GapsTotal tracks detected stream discontinuities.
	GapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_supervisor_gaps_total",
			Help: "Total number of stream gaps detected",
		},
		[]string{"stream"},
	)

	// ResyncsTotal tracks book resnapshots by reason.
	ResyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_supervisor_resyncs_total",
			Help: "Total number of book resyncs",
		},
		[]string{"reason"},
	)

	// DiffsDroppedTotal counts diffs received while awaiting a snapshot.
	DiffsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_supervisor_diffs_dropped_total",
		Help: "Total number of diffs dropped while awaiting a snapshot",
	})

	// DecodeErrorsTotal tracks undecodable frames.
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_supervisor_decode_errors_total",
			Help: "Total number of frames that failed to decode",
		},
		[]string{"stream"},
	)

	// CatchUpsTotal tracks REST fill catch-ups.
	CatchUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_supervisor_fill_catch_ups_total",
			Help: "Total number of fill catch-up queries",
		},
		[]string{"reason"},
	)

	// FillsTotal tracks candidate fills by source (stream, catch-up).
	FillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_supervisor_fills_total",
			Help: "Total number of candidate fills delivered",
		},
		[]string{"source"},
	)
)
