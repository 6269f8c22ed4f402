// Package metrics exposes Prometheus collectors for the flow endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple servers never
// collide on the global one.
type Metrics struct {
	registry         *prometheus.Registry
	flowRequests     *prometheus.CounterVec
	flowDuration     *prometheus.HistogramVec
	decryptFailures  *prometheus.CounterVec
	bookingsCreated  prometheus.Counter
	keyRegistrations *prometheus.CounterVec
}

// New registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		flowRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowbook_flow_requests_total",
			Help: "Flow requests handled, by action and outcome.",
		}, []string{"action", "outcome"}),
		flowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowbook_flow_request_duration_seconds",
			Help:    "Time spent handling a flow request, decryption included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		decryptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowbook_decrypt_failures_total",
			Help: "Requests that could not be decrypted, by failure kind.",
		}, []string{"kind"}),
		bookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowbook_bookings_created_total",
			Help: "Calendar events created by confirmed bookings.",
		}),
		keyRegistrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowbook_key_registrations_total",
			Help: "Public key registration attempts with the messaging platform, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.flowRequests,
		m.flowDuration,
		m.decryptFailures,
		m.bookingsCreated,
		m.keyRegistrations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveFlow records one handled request.
func (m *Metrics) ObserveFlow(action, outcome string, d time.Duration) {
	if action == "" {
		action = "unknown"
	}
	m.flowRequests.WithLabelValues(action, outcome).Inc()
	m.flowDuration.WithLabelValues(action).Observe(d.Seconds())
}

// DecryptFailed counts a request rejected before it reached the state machine.
func (m *Metrics) DecryptFailed(kind string) {
	m.decryptFailures.WithLabelValues(kind).Inc()
}

// BookingCreated counts a confirmed booking.
func (m *Metrics) BookingCreated() {
	m.bookingsCreated.Inc()
}

// KeyRegistration counts a registration attempt; result is "ok", "error" or
// "skipped".
func (m *Metrics) KeyRegistration(result string) {
	m.keyRegistrations.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
