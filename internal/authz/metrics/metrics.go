package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the authorization engine. The evaluate
// histogram buckets bracket the 50 ms p95 target and the 100 ms critical
// threshold.
type Metrics struct {
	// Overall evaluation latency, cache hits included.
	EvaluateLatency prometheus.Histogram

	// Decision outcomes by effect and the stage that decided.
	DecisionOutcome *prometheus.CounterVec

	// Cache lookups by result: "hit", "miss", "error".
	CacheLookups *prometheus.CounterVec

	// Per-stage latency by stage name.
	StageLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all engine metrics registered.
func New() *Metrics {
	return &Metrics{
		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsgate_authz_evaluate_duration_seconds",
			Help:    "Duration of full decision evaluation including cache lookup",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.04, 0.05, 0.1, 0.25},
		}),

		DecisionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "opsgate_authz_decisions_total",
			Help: "Total decisions by effect and deciding stage",
		}, []string{"effect", "stage"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "opsgate_authz_cache_lookups_total",
			Help: "Decision cache lookups by result",
		}, []string{"result"}),

		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsgate_authz_stage_duration_seconds",
			Help:    "Duration of individual evaluation stages",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
		}, []string{"stage"}),
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// IncrementOutcome records a decision outcome.
func (m *Metrics) IncrementOutcome(effect, stage string) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(effect, stage).Inc()
	}
}

// IncrementCacheLookup records a cache lookup result.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// ObserveStageLatency records the duration of one pipeline stage.
func (m *Metrics) ObserveStageLatency(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}
