// Package metrics provides Prometheus metrics collection for the model arena.
// It tracks evaluation runs, per-model outcomes and the headline scores of
// the latest run, exposed via the dashboard's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the arena.
type Metrics struct {
	// Run metrics
	RunsTotal      prometheus.Counter     // Completed evaluation runs
	RunsInProgress prometheus.Gauge       // Runs started but not yet completed or aborted
	FatalErrors    *prometheus.CounterVec // Aborted runs by error kind
	UsableModels   prometheus.Gauge       // Successful models in the latest run

	// Per-model metrics
	ModelsEvaluated    prometheus.Counter     // Models evaluated, successful or not
	ModelFailures      *prometheus.CounterVec // Per-model failures by kind
	EvaluationDuration prometheus.Histogram   // Wall time per model evaluation
	ModelAccuracy      *prometheus.GaugeVec   // Latest accuracy per model
	ModelROCAUC        *prometheus.GaugeVec   // Latest ROC-AUC per model
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		RunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "arena_runs_total",
			Help: "Total number of completed evaluation runs",
		}),
		RunsInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arena_runs_in_progress",
			Help: "Number of evaluation runs currently executing",
		}),
		FatalErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_fatal_errors_total",
			Help: "Total number of evaluation runs aborted by a fatal error",
		}, []string{"kind"}),
		UsableModels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arena_usable_models",
			Help: "Number of models evaluated successfully in the latest run",
		}),
		ModelsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: "arena_models_evaluated_total",
			Help: "Total number of model evaluations attempted",
		}),
		ModelFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_model_failures_total",
			Help: "Total number of per-model evaluation failures",
		}, []string{"kind"}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "arena_model_evaluation_seconds",
			Help:    "Model evaluation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ModelAccuracy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arena_model_accuracy",
			Help: "Test-set accuracy of each model in the latest run",
		}, []string{"model"}),
		ModelROCAUC: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arena_model_roc_auc",
			Help: "Test-set ROC-AUC of each model in the latest run",
		}, []string{"model"}),
	}
}
