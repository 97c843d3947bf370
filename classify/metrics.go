package classify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects classification metrics (namespace "triage", subsystem
// "classify"):
//
//   - requests_total (counter): classifications by schema and outcome
//     (ok, completion_error, invalid_reply, rate_limited).
//   - latency_ms (histogram): completion latency by schema.
//   - tokens_total (counter): tokens by direction (input, output).
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
}

// NewMetrics creates and registers classification metrics with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "classify",
			Name:      "requests_total",
			Help:      "Classification requests by schema and outcome",
		}, []string{"schema", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "triage",
			Subsystem: "classify",
			Name:      "latency_ms",
			Help:      "Completion latency in milliseconds",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000},
		}, []string{"schema"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "classify",
			Name:      "tokens_total",
			Help:      "Tokens consumed by classifications",
		}, []string{"direction"}),
	}
}

func (m *Metrics) observe(schema, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(schema, outcome).Inc()
	if latency > 0 {
		m.latency.WithLabelValues(schema).Observe(float64(latency.Milliseconds()))
	}
}

func (m *Metrics) addTokens(input, output int) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues("input").Add(float64(input))
	m.tokens.WithLabelValues("output").Add(float64(output))
}
