// Package metrics exposes Prometheus collectors for the game server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lss"

// Metrics groups every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	sessions    prometheus.Gauge
	clients     prometheus.Gauge
	actions     *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	leeSoonSin  *prometheus.CounterVec
	evictions   prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Game sessions currently held in memory.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Open WebSocket connections.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Client actions handled, by action and result code.",
		}, []string{"action", "result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Frames rejected by the rate limiters.",
		}, []string{"action"}),
		leeSoonSin: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lee_soon_sin_total",
			Help:      "Lee Soon Sin states entered, by cause.",
		}, []string{"cause"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_evictions_total",
			Help:      "Idle sessions dropped by the store.",
		}),
	}
	m.registry.MustRegister(
		m.sessions,
		m.clients,
		m.actions,
		m.rateLimited,
		m.leeSoonSin,
		m.evictions,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetSessions records how many sessions are live.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// ClientConnected counts one opened connection.
func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.clients.Inc()
}

// ClientDisconnected counts one closed connection.
func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.clients.Dec()
}

// Action counts one handled action; result is "ok" or an error code.
func (m *Metrics) Action(action, result string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, result).Inc()
}

// RateLimited counts a frame rejected for action.
func (m *Metrics) RateLimited(action string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(action).Inc()
}

// LeeSoonSin counts a Lee Soon Sin state entered for cause.
func (m *Metrics) LeeSoonSin(cause string) {
	if m == nil {
		return
	}
	m.leeSoonSin.WithLabelValues(cause).Inc()
}

// SessionEvicted counts an idle session dropped by the store.
func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}
