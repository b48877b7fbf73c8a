package review

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	filesAnalyzed    prometheus.Counter
	analyzerCalls    *prometheus.CounterVec
	analyzerDuration *prometheus.HistogramVec
	runs             *prometheus.CounterVec
}

// NewMetrics creates the engine collectors and registers them with reg.
// A nil reg yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		filesAnalyzed: f.NewCounter(prometheus.CounterOpts{
			Name: "critic_files_analyzed_total",
			Help: "Files dispatched to analyzers",
		}),
		analyzerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "critic_analyzer_calls_total",
			Help: "Analyzer invocations by analyzer and outcome",
		}, []string{"analyzer", "outcome"}),
		analyzerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "critic_analyzer_duration_seconds",
			Help:    "Analyzer call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		}, []string{"analyzer"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "critic_review_runs_total",
			Help: "Review runs by overall status",
		}, []string{"status"}),
	}
}
