package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace prefixes every metric name.
const namespace = "doorbell"

// Metrics owns a private Prometheus registry and the bridge's collectors.
//
// It satisfies doorbell.Recorder, so the bridge can be handed a *Metrics
// directly.
type Metrics struct {
	registry *prometheus.Registry

	messages         *prometheus.CounterVec
	decodeWarnings   *prometheus.CounterVec
	subscribeFailure *prometheus.CounterVec
	subscribed       prometheus.Gauge
	rings            *prometheus.CounterVec
	sinkErrors       *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// New creates the registry and registers all collectors, including the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "MQTT messages handled, by doorbell topic and outcome.",
			},
			[]string{"topic", "outcome"},
		),
		decodeWarnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_warnings_total",
				Help:      "Payloads that were not valid UTF-8, by doorbell topic.",
			},
			[]string{"topic"},
		),
		subscribeFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscribe_failures_total",
				Help:      "Failed subscribe attempts, by doorbell topic.",
			},
			[]string{"topic"},
		),
		subscribed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscriptions",
				Help:      "Doorbell subscriptions currently active.",
			},
		),
		rings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rings_total",
				Help:      "Ring events emitted, by doorbell name.",
			},
			[]string{"doorbell"},
		),
		sinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_errors_total",
				Help:      "Event delivery failures, by sink.",
			},
			[]string{"sink"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Status API requests, by route, method and status.",
			},
			[]string{"route", "method", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messages,
		m.decodeWarnings,
		m.subscribeFailure,
		m.subscribed,
		m.rings,
		m.sinkErrors,
		m.httpRequests,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MessageHandled counts one message for topic with the given outcome.
func (m *Metrics) MessageHandled(topic, outcome string) {
	m.messages.WithLabelValues(topic, outcome).Inc()
}

// DecodeWarning counts one lossy payload decode for topic.
func (m *Metrics) DecodeWarning(topic string) {
	m.decodeWarnings.WithLabelValues(topic).Inc()
}

// SubscribeFailed counts one failed subscribe for topic.
func (m *Metrics) SubscribeFailed(topic string) {
	m.subscribeFailure.WithLabelValues(topic).Inc()
}

// SetSubscribed sets the active subscription gauge.
func (m *Metrics) SetSubscribed(n int) {
	m.subscribed.Set(float64(n))
}

// RingEmitted counts one ring for the named doorbell.
func (m *Metrics) RingEmitted(doorbell string) {
	m.rings.WithLabelValues(doorbell).Inc()
}

// SinkError counts one failed delivery to sink.
func (m *Metrics) SinkError(sink string) {
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// HTTPRequest counts one API request.
func (m *Metrics) HTTPRequest(route, method string, status int) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}
