package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects workflow execution metrics.
//
// Metrics exposed (namespace "triage", subsystem "graph"):
//
//   - inflight_runs (gauge): runs currently executing.
//   - runs_total (counter): finished runs by outcome
//     (completed, node_failed, cancelled, timeout, step_limit, error).
//   - step_latency_ms (histogram): node execution duration by node_id and
//     status (success, error, timeout).
//   - retries_total (counter): retry attempts by node_id and reason.
//   - routes_total (counter): edge traversals by from and to.
//
// Run IDs are not used as labels.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, _ := graph.New(g, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	inflightRuns prometheus.Gauge
	runs         *prometheus.CounterVec
	stepLatency  *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	routes       *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all graph metrics with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.inflightRuns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "triage",
		Subsystem: "graph",
		Name:      "inflight_runs",
		Help:      "Number of workflow runs currently executing",
	})

	pm.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "graph",
		Name:      "runs_total",
		Help:      "Finished workflow runs by outcome",
	}, []string{"outcome"})

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "triage",
		Subsystem: "graph",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds, retries included",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"node_id", "status"})

	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "graph",
		Name:      "retries_total",
		Help:      "Node retry attempts",
	}, []string{"node_id", "reason"})

	pm.routes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "graph",
		Name:      "routes_total",
		Help:      "Edge traversals between nodes",
	}, []string{"from", "to"})

	return pm
}

func (pm *PrometheusMetrics) isEnabled() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RunStarted increments the inflight gauge.
func (pm *PrometheusMetrics) RunStarted() {
	if !pm.isEnabled() {
		return
	}
	pm.inflightRuns.Inc()
}

// RunFinished decrements the inflight gauge and counts the outcome.
func (pm *PrometheusMetrics) RunFinished(outcome string) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightRuns.Dec()
	pm.runs.WithLabelValues(outcome).Inc()
}

// RecordStepLatency records how long a node took, retries included.
func (pm *PrometheusMetrics) RecordStepLatency(nodeID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries counts one retry of nodeID.
func (pm *PrometheusMetrics) IncrementRetries(nodeID, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.retries.WithLabelValues(nodeID, reason).Inc()
}

// RecordRoute counts one traversal of the edge from -> to.
func (pm *PrometheusMetrics) RecordRoute(from, to string) {
	if !pm.isEnabled() {
		return
	}
	pm.routes.WithLabelValues(from, to).Inc()
}

// Disable stops recording. Registered series keep their last values.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
