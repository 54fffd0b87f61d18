package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	evaluations     *prometheus.CounterVec
	ticketsAtRisk   *prometheus.GaugeVec
	notifications   *prometheus.CounterVec
	monitorRuns     *prometheus.CounterVec
	importedRows    *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incident_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "incident_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incident_http_errors_total",
			Help: "Errors rendered by the API by error code",
		}, []string{"path", "method", "code"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incident_sla_evaluations_total",
			Help: "SLA evaluations by resulting risk state",
		}, []string{"risk"}),
		ticketsAtRisk: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "incident_sla_active_tickets",
			Help: "Active tickets per risk state as of the last monitor run",
		}, []string{"risk"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incident_notifications_total",
			Help: "Notifications by event type and outcome",
		}, []string{"event", "outcome"}),
		monitorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incident_sla_monitor_runs_total",
			Help: "SLA monitor runs by outcome",
		}, []string{"outcome"}),
		importedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incident_import_rows_total",
			Help: "CSV rows processed by outcome",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.errors,
		m.evaluations,
		m.ticketsAtRisk,
		m.notifications,
		m.monitorRuns,
		m.importedRows,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordEvaluation counts one SLA evaluation.
func (m *Metrics) RecordEvaluation(risk string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(risk).Inc()
}

// SetActiveRisk replaces the per-risk gauges with counts.
func (m *Metrics) SetActiveRisk(counts map[string]int) {
	if m == nil {
		return
	}
	m.ticketsAtRisk.Reset()
	for risk, n := range counts {
		m.ticketsAtRisk.WithLabelValues(risk).Set(float64(n))
	}
}

// RecordNotification counts a notification attempt.
func (m *Metrics) RecordNotification(event, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(event, outcome).Inc()
}

// RecordMonitorRun counts a monitor pass.
func (m *Metrics) RecordMonitorRun(outcome string) {
	if m == nil {
		return
	}
	m.monitorRuns.WithLabelValues(outcome).Inc()
}

// RecordImport counts imported and rejected CSV rows.
func (m *Metrics) RecordImport(imported, failed int) {
	if m == nil {
		return
	}
	m.importedRows.WithLabelValues("imported").Add(float64(imported))
	m.importedRows.WithLabelValues("failed").Add(float64(failed))
}
