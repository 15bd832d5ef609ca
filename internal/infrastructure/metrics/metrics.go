package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notify"

// Admission results.
const (
	AdmissionAccepted     = "accepted"
	AdmissionUnauthorized = "unauthorized"
	AdmissionBadPath      = "bad_path"
	AdmissionUnavailable  = "unavailable"
	AdmissionFailed       = "upgrade_failed"
)

// Delivery results.
const (
	DeliveryOK      = "ok"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped_closed"
)

// Metrics holds the fabric's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connections     *prometheus.GaugeVec
	admissions      *prometheus.CounterVec
	broadcasts      prometheus.Counter
	deliveries      *prometheus.CounterVec
	controlMessages *prometheus.CounterVec
	relayMessages   *prometheus.CounterVec
}

// New registers all collectors on registry, plus the Go and process
// collectors.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of registered live connections",
		}, []string{"type"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Upgrade attempts by result",
		}, []string{"result"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast calls handled by this process",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-connection delivery attempts by result",
		}, []string{"result"}),
		controlMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_messages_total",
			Help:      "Inbound control messages by type",
		}, []string{"type"}),
		relayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_messages_total",
			Help:      "Relay envelopes by direction",
		}, []string{"direction"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.admissions,
		m.broadcasts,
		m.deliveries,
		m.controlMessages,
		m.relayMessages,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened(connType string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(connType).Inc()
}

func (m *Metrics) ConnectionClosed(connType string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(connType).Dec()
}

func (m *Metrics) Admission(result string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(result).Inc()
}

func (m *Metrics) Broadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) Delivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) ControlMessage(msgType string) {
	if m == nil {
		return
	}
	m.controlMessages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Relay(direction string) {
	if m == nil {
		return
	}
	m.relayMessages.WithLabelValues(direction).Inc()
}
