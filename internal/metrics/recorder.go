package metrics

import (
	"errors"

	"model-arena/internal/eval"
)

// Recorder adapts Metrics to eval.Recorder. Prometheus collectors are safe
// for concurrent use, so no locking is needed here.
type Recorder struct {
	m *Metrics
}

// NewRecorder wraps m.
func NewRecorder(m *Metrics) *Recorder {
	return &Recorder{m: m}
}

// RunStarted marks a run in progress. Every start is matched by exactly one
// RunCompleted or FatalError.
func (r *Recorder) RunStarted() {
	r.m.RunsInProgress.Inc()
}

// ModelEvaluated records one model outcome.
func (r *Recorder) ModelEvaluated(desc eval.ModelDescriptor, outcome eval.Outcome) {
	r.m.ModelsEvaluated.Inc()
	switch o := outcome.(type) {
	case *eval.Success:
		r.m.EvaluationDuration.Observe(o.Duration.Seconds())
	case *eval.Failure:
		r.m.ModelFailures.WithLabelValues(string(o.Kind)).Inc()
	}
}

// RunCompleted publishes the latest scores. Gauges of models absent from
// this run are reset so the exposition reflects the latest leaderboard.
func (r *Recorder) RunCompleted(report *eval.Report) {
	r.m.RunsInProgress.Dec()
	r.m.RunsTotal.Inc()
	r.m.UsableModels.Set(float64(report.Usable()))

	r.m.ModelAccuracy.Reset()
	r.m.ModelROCAUC.Reset()
	for _, e := range report.Leaderboard {
		r.m.ModelAccuracy.WithLabelValues(e.Model).Set(e.Metrics.Accuracy)
		r.m.ModelROCAUC.WithLabelValues(e.Model).Set(e.Metrics.ROCAUC)
	}
}

// FatalError counts an aborted run.
func (r *Recorder) FatalError(err error) {
	r.m.RunsInProgress.Dec()
	r.m.FatalErrors.WithLabelValues(FatalKind(err)).Inc()
}

// FatalKind classifies a run-aborting error for labelling.
func FatalKind(err error) string {
	var de *eval.DiscoveryError
	var due *eval.DataUnavailableError
	switch {
	case errors.As(err, &de):
		return "discovery"
	case errors.As(err, &due):
		return "dataset"
	default:
		return "other"
	}
}
