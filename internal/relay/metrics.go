package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	ConnectionsActive   prometheus.Gauge
	MessagesRelayed     prometheus.Counter
	MessagesUndelivered prometheus.Counter
	SignallingRelayed   prometheus.Counter
	SignallingDropped   prometheus.Counter
	RosterBroadcasts    prometheus.Counter
}

// NewMetrics registers the relay collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Number of authenticated live connections.",
		}),
		MessagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_relayed_total",
			Help: "Chat messages appended to history.",
		}),
		MessagesUndelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_undelivered_total",
			Help: "Chat messages persisted while the recipient was offline.",
		}),
		SignallingRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_signalling_relayed_total",
			Help: "Signalling frames forwarded to a live recipient.",
		}),
		SignallingDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_signalling_dropped_total",
			Help: "Signalling frames dropped because the recipient was offline.",
		}),
		RosterBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_roster_broadcasts_total",
			Help: "Full-roster presence broadcasts.",
		}),
	}
}
