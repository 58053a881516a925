package tracking

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the tracking core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ingestTotal     *prometheus.CounterVec // kind, result
	eventsPublished *prometheus.CounterVec // kind
	deliveries      prometheus.Counter
	drops           prometheus.Counter
	connections     prometheus.Gauge
	disconnects     *prometheus.CounterVec // reason
}

// NewMetrics creates and registers the collectors. A nil registerer disables metrics.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transit",
			Subsystem: "ingest",
			Name:      "updates_total",
			Help:      "Ingest calls by update kind and result",
		}, []string{"kind", "result"}), // result: ok, invalid, not_found, error

		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transit",
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Change events handed to the dispatcher",
		}, []string{"kind"}),

		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transit",
			Subsystem: "dispatch",
			Name:      "enqueued_total",
			Help:      "Events enqueued onto connection outboxes",
		}),

		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transit",
			Subsystem: "dispatch",
			Name:      "dropped_total",
			Help:      "Queued events dropped because an outbox was full",
		}),

		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transit",
			Subsystem: "stream",
			Name:      "connections",
			Help:      "Currently open stream connections",
		}),

		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transit",
			Subsystem: "stream",
			Name:      "disconnects_total",
			Help:      "Closed stream connections by reason",
		}, []string{"reason"}),
	}

	collectors := []prometheus.Collector{
		m.ingestTotal, m.eventsPublished, m.deliveries, m.drops, m.connections, m.disconnects,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("new metrics: register: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) ingest(kind, result string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) published(kind string, enqueued int) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
	m.deliveries.Add(float64(enqueued))
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.drops.Inc()
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) connClosed(reason string) {
	if m == nil {
		return
	}
	m.connections.Dec()
	m.disconnects.WithLabelValues(reason).Inc()
}
