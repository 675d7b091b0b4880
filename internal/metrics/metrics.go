package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatio_connections_open",
			Help: "Currently open client connections",
		},
	)

	UsersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatio_users_online",
			Help: "Users with at least one live connection",
		},
	)

	SlowClientDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatio_slow_client_disconnects_total",
			Help: "Connections dropped because their outbound queue stayed full",
		},
	)

	// Fan-out metrics
	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatio_events_delivered_total",
			Help: "Events pushed to connections",
		},
		[]string{"type"},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatio_delivery_failures_total",
			Help: "Pushes that failed and triggered an implicit disconnect",
		},
	)

	// Ephemeral state metrics
	TypingSignalsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatio_typing_signals_active",
			Help: "Typing signals currently live",
		},
	)

	// Call metrics
	CallsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatio_calls_started_total",
			Help: "Calls initiated",
		},
		[]string{"kind"}, // "audio" or "video"
	)

	CallsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatio_calls_ended_total",
			Help: "Calls reaching a terminal state",
		},
		[]string{"reason"}, // "ended", "rejected", "timeout", "abandoned"
	)
)
