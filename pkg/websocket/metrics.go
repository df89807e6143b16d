package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ActiveConnections tracks whether each channel is connected.
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polymarket_ws_active_connections",
			Help: "Number of active WebSocket connections",
		},
		[]string{"channel"},
	)

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_ws_reconnect_attempts_total",
			Help: "Total number of WebSocket reconnection attempts",
		},
		[]string{"channel"},
	)

	// ReconnectFailuresTotal tracks failed connection attempts.
	ReconnectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_ws_reconnect_failures_total",
			Help: "Total number of WebSocket reconnection failures",
		},
		[]string{"channel"},
	)

	// MessagesReceivedTotal tracks data frames received.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_ws_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
		[]string{"channel"},
	)

	// MessagesDroppedTotal tracks frames dropped before delivery.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_ws_messages_dropped_total",
			Help: "Total number of WebSocket messages dropped due to channel full",
		},
		[]string{"channel", "reason"},
	)

	// ConnectionDuration tracks WebSocket connection lifetime.
	ConnectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polymarket_ws_connection_duration_seconds",
			Help:    "Duration of WebSocket connections before disconnect",
			Buckets: []float64{10, 60, 300, 600, 900, 1800, 3600, 7200},
		},
		[]string{"channel"},
	)
)
