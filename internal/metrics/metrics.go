// Package metrics exposes the switchboard's operational counters and
// gauges as Prometheus collectors, registered against a caller-supplied
// registry so internal/adminapi can mount them under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the switchboard core updates as it runs.
type Metrics struct {
	TickTotal        prometheus.Counter
	ConnectionsGauge prometheus.Gauge
	SpacesGauge      prometheus.Gauge
	MissingAspects   *prometheus.GaugeVec
	MessagesSent     *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	FetchesSent      prometheus.Counter
}

// New creates and registers the switchboard's collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TickTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "switchboard_retry_ticks_total",
			Help: "Number of times the retry loop has run.",
		}),
		ConnectionsGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "switchboard_connections",
			Help: "Number of currently open connections.",
		}),
		SpacesGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "switchboard_spaces",
			Help: "Number of currently active spaces.",
		}),
		MissingAspects: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "switchboard_missing_aspects",
			Help: "Agents with outstanding missing aspects, per space.",
		}, []string{"space"}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "switchboard_messages_sent_total",
			Help: "Messages sent to connections, by wire message type.",
		}, []string{"type"}),
		MessagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "switchboard_messages_dropped_total",
			Help: "Messages discarded without being routed, by reason.",
		}, []string{"reason"}),
		FetchesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "switchboard_fetch_requests_total",
			Help: "FetchEntry requests issued during replication diffing.",
		}),
	}
}

// RecordMissingAspects sets the missing-aspect gauge for a space.
func (m *Metrics) RecordMissingAspects(space string, count int) {
	m.MissingAspects.WithLabelValues(space).Set(float64(count))
}

// RecordSent increments the sent-message counter for a wire message type.
func (m *Metrics) RecordSent(msgType string) {
	m.MessagesSent.WithLabelValues(msgType).Inc()
}

// RecordDropped increments the dropped-message counter for reason.
func (m *Metrics) RecordDropped(reason string) {
	m.MessagesDropped.WithLabelValues(reason).Inc()
}
