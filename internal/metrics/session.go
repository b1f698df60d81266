// Package metrics exposes the polling session's decisions as Prometheus
// metrics. No per-request identifiers are used as labels.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/universal-console/garage/internal/interfaces"
)

// SessionMetrics implements interfaces.SessionObserver
type SessionMetrics struct {
	registry *prometheus.Registry

	// RequestsSent counts accepted sends by kind.
	RequestsSent *prometheus.CounterVec
	// RequestsSkipped counts sends that never left the client, by kind and reason.
	RequestsSkipped *prometheus.CounterVec
	// Responses counts completions by kind and outcome.
	Responses *prometheus.CounterVec
	// Keepalive is the number of poll ticks left, or -1 when unbounded.
	Keepalive prometheus.Gauge
}

// NewSessionMetrics registers the session metrics on a fresh registry that
// also carries the Go and process collectors
func NewSessionMetrics() *SessionMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &SessionMetrics{
		registry: reg,
		RequestsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "garage_requests_sent_total",
			Help: "Total number of requests handed to the transport, by kind.",
		}, []string{"kind"}),
		RequestsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "garage_requests_skipped_total",
			Help: "Total number of requests not sent, by kind and reason.",
		}, []string{"kind", "reason"}),
		Responses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "garage_responses_total",
			Help: "Total number of completions, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Keepalive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "garage_keepalive_remaining_ticks",
			Help: "Poll ticks left before the session stops, -1 when unbounded.",
		}),
	}
	m.Keepalive.Set(-1)
	return m
}

// RequestSent implements interfaces.SessionObserver
func (m *SessionMetrics) RequestSent(tag interfaces.RequestTag) {
	m.RequestsSent.WithLabelValues(tag.String()).Inc()
}

// RequestSkipped implements interfaces.SessionObserver
func (m *SessionMetrics) RequestSkipped(tag interfaces.RequestTag, reason string) {
	m.RequestsSkipped.WithLabelValues(tag.String(), reason).Inc()
}

// ResponseReceived implements interfaces.SessionObserver
func (m *SessionMetrics) ResponseReceived(tag interfaces.RequestTag, outcome string) {
	m.Responses.WithLabelValues(tag.String(), outcome).Inc()
}

// KeepaliveRemaining implements interfaces.SessionObserver
func (m *SessionMetrics) KeepaliveRemaining(ticks int) {
	m.Keepalive.Set(float64(ticks))
}

// Registry returns the registry the metrics are registered on
func (m *SessionMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *SessionMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
