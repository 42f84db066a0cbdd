package proxy

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/waabox/modeldeck/internal/domain"
)

// Metrics holds the proxy's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	sessions    prometheus.Gauge
	initiations *prometheus.CounterVec
	polls       *prometheus.CounterVec
	swept       prometheus.Counter
}

// NewMetrics creates the collectors and registers them on a fresh registry
// alongside the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modeldeck_device_sessions",
			Help: "Current number of in-flight device-flow sessions.",
		}),
		initiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modeldeck_device_flow_initiations_total",
			Help: "Total number of device-flow initiations by result.",
		}, []string{"result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modeldeck_device_flow_polls_total",
			Help: "Total number of device-flow polls by outcome.",
		}, []string{"status"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modeldeck_device_sessions_swept_total",
			Help: "Total number of expired device-flow sessions removed by the sweep.",
		}),
	}
	m.registry.MustRegister(
		m.sessions,
		m.initiations,
		m.polls,
		m.swept,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) setSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *Metrics) initiated(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.initiations.WithLabelValues(result).Inc()
}

func (m *Metrics) polled(status string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(status).Inc()
}

func (m *Metrics) pollResult(res domain.PollResult, err error) {
	switch {
	case err == nil:
		m.polled(string(res.Status))
	case errors.Is(err, domain.ErrSessionNotFound):
		m.polled("not_found")
	case errors.Is(err, domain.ErrSessionExpired):
		m.polled("expired")
	case errors.Is(err, domain.ErrAccessDenied):
		m.polled("denied")
	default:
		m.polled("error")
	}
}

func (m *Metrics) addSwept(n int) {
	if m == nil || n == 0 {
		return
	}
	m.swept.Add(float64(n))
}
