// Package metrics exposes the process's Prometheus counters and gauges,
// grounded on the Visper teacher's infrastructure/metrics package (a small
// struct of prometheus.CounterVec/GaugeVec fields) and its /metrics
// handler wiring via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge this process exports. It implements
// dialogue.RegistryMetrics, dialogue.ClientRegistryMetrics, and
// dialogue.RoomMetrics directly; use Dispatcher() for the
// dialogue.DispatcherMetrics adapter, whose ObserveRejected has a different
// arity than RoomMetrics's.
type Metrics struct {
	roomsActive      prometheus.Gauge
	clientsConnected prometheus.Gauge
	eventsTriggered  prometheus.Counter
	eventsRejected   *prometheus.CounterVec
	historyEvicted   prometheus.Counter
}

// New creates and registers every metric against reg. Passing nil
// registers against the default global registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dialogue_rooms_active",
			Help: "Number of rooms currently registered.",
		}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dialogue_clients_connected",
			Help: "Number of connections currently registered.",
		}),
		eventsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dialogue_events_triggered_total",
			Help: "Total number of events that completed the trigger pipeline.",
		}),
		eventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dialogue_events_rejected_total",
			Help: "Total number of rejected triggers, by reason.",
		}, []string{"reason"}),
		historyEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dialogue_history_evicted_total",
			Help: "Total number of history entries evicted by FIFO eviction.",
		}),
	}

	reg.MustRegister(m.roomsActive, m.clientsConnected, m.eventsTriggered, m.eventsRejected, m.historyEvicted)

	return m
}

// SetRoomsActive implements dialogue.RegistryMetrics.
func (m *Metrics) SetRoomsActive(n int) { m.roomsActive.Set(float64(n)) }

// SetClientsConnected implements dialogue.ClientRegistryMetrics.
func (m *Metrics) SetClientsConnected(n int) { m.clientsConnected.Set(float64(n)) }

// ObserveTriggered implements dialogue.RoomMetrics.
func (m *Metrics) ObserveTriggered(roomID, eventName string) { m.eventsTriggered.Inc() }

// ObserveRejected implements dialogue.RoomMetrics.
func (m *Metrics) ObserveRejected(roomID, reason string) {
	m.eventsRejected.WithLabelValues(reason).Inc()
}

// ObserveHistoryEvicted records a batch eviction, meant to be wired into the
// shared HistoryStore's onCleanup hook.
func (m *Metrics) ObserveHistoryEvicted(count int) {
	m.historyEvicted.Add(float64(count))
}

// TopLevelMetrics adapts Metrics to dialogue.DispatcherMetrics, whose
// ObserveRejected takes only a reason (top-level rejections like
// ROOM_NOT_FOUND are not attributable to any one room).
type TopLevelMetrics struct {
	m *Metrics
}

// ObserveRejected implements dialogue.DispatcherMetrics.
func (t TopLevelMetrics) ObserveRejected(reason string) {
	t.m.eventsRejected.WithLabelValues(reason).Inc()
}

// Dispatcher returns the dialogue.DispatcherMetrics view of m.
func (m *Metrics) Dispatcher() TopLevelMetrics { return TopLevelMetrics{m: m} }

// Handler returns the promhttp handler to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
