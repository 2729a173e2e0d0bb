// Package metrics exposes Prometheus collectors for journey processing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transitionsTotal     *prometheus.CounterVec
	stepDispatchesTotal  *prometheus.CounterVec
	queueMessagesTotal   *prometheus.CounterVec
	scanDuration         prometheus.Histogram
	scanTransitionsTotal prometheus.Counter
	scanFailuresTotal    prometheus.Counter
	httpRequestsTotal    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "journeys_transitions_total",
				Help: "Committed participant transitions by trigger type",
			},
			[]string{"trigger_type"},
		),
		stepDispatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "journeys_step_dispatches_total",
				Help: "Step handler runs by step type and outcome",
			},
			[]string{"step_type", "outcome"},
		),
		queueMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "journeys_queue_messages_total",
				Help: "Queue messages handled by the event worker by outcome",
			},
			[]string{"outcome"},
		),
		scanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "journeys_scan_duration_seconds",
				Help:    "Timed-connection scan duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
		scanTransitionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "journeys_scan_transitions_total",
				Help: "Participants transitioned by the timed-connection scanner",
			},
		),
		scanFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "journeys_scan_failures_total",
				Help: "Timed-connection scans that returned an error",
			},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "journeys_http_requests_total",
				Help: "Ops API requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (m *Metrics) RecordTransition(triggerType string) {
	if m == nil {
		return
	}

	m.transitionsTotal.WithLabelValues(triggerType).Inc()
}

func (m *Metrics) RecordStepDispatch(stepType, outcome string) {
	if m == nil {
		return
	}

	m.stepDispatchesTotal.WithLabelValues(stepType, outcome).Inc()
}

func (m *Metrics) RecordQueueMessage(outcome string) {
	if m == nil {
		return
	}

	m.queueMessagesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordScan(duration time.Duration, transitioned int, err error) {
	if m == nil {
		return
	}

	m.scanDuration.Observe(duration.Seconds())
	m.scanTransitionsTotal.Add(float64(transitioned))

	if err != nil {
		m.scanFailuresTotal.Inc()
	}
}

func (m *Metrics) RecordHTTPRequest(method, route, status string) {
	if m == nil {
		return
	}

	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer is used by tests to read collected values.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
