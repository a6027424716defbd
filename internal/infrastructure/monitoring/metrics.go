package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec
	SpawnFailures  prometheus.Counter
	SessionExits   *prometheus.CounterVec
	OutputBytes    prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with its own registry so
// repeated construction in tests never double-registers collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		startTime: time.Now(),
		registry:  registry,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vterm_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vterm_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vterm_sessions_active",
				Help: "Number of live PTY sessions",
			},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vterm_sessions_total",
				Help: "Total number of PTY sessions created",
			},
			[]string{"kind"},
		),
		SpawnFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vterm_session_spawn_failures_total",
				Help: "Total number of PTY spawn failures",
			},
		),
		SessionExits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vterm_session_exits_total",
				Help: "Total number of session exits by reason",
			},
			[]string{"reason"},
		),
		OutputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vterm_session_output_bytes_total",
				Help: "Total PTY output bytes delivered to the event hub",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vterm_ws_connections",
				Help: "Number of connected WebSocket clients",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vterm_ws_messages_total",
				Help: "Total WebSocket messages by direction and type",
			},
			[]string{"direction", "type"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vterm_uptime_seconds",
			Help: "Backend uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// RecordHTTPRequest records metrics for a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Session lifecycle helpers.
func (m *Metrics) IncSessionsActive()           { m.SessionsActive.Inc() }
func (m *Metrics) DecSessionsActive()           { m.SessionsActive.Dec() }
func (m *Metrics) IncSessionsTotal(kind string) { m.SessionsTotal.WithLabelValues(kind).Inc() }
func (m *Metrics) IncSpawnFailures()            { m.SpawnFailures.Inc() }
func (m *Metrics) IncSessionExits(reason string) {
	m.SessionExits.WithLabelValues(reason).Inc()
}
func (m *Metrics) AddOutputBytes(n int) { m.OutputBytes.Add(float64(n)) }

// WebSocket helpers.
func (m *Metrics) IncWSConnections() { m.WSConnections.Inc() }
func (m *Metrics) DecWSConnections() { m.WSConnections.Dec() }
func (m *Metrics) IncWSMessages(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}
