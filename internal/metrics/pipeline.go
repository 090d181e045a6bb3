package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline and corpus index metrics.
var (
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of a pipeline stage in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage", "outcome"},
	)

	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome and confidence tier",
		},
		[]string{"outcome", "tier"},
	)

	ExtractionRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "extraction_repairs_total",
			Help:      "Repair calls issued for unparseable model output",
		},
		[]string{"result"}, // "fixed" / "failed"
	)

	IndexTrials = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "index_trials",
			Help:      "Number of historical trials in the corpus index",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline and index metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(ExtractionRepairsTotal)
	prometheus.MustRegister(IndexTrials)
	pipelineMetricsRegistered = true
}
