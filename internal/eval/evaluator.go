package eval

import (
	"context"
	"fmt"
	"time"

	"model-arena/internal/ml"

	"github.com/rs/zerolog/log"
)

// ModelLoader resolves an artifact location into a loaded model.
type ModelLoader interface {
	Load(ctx context.Context, location string) (ml.Model, error)
}

// EvaluatorConfig tunes the evaluator.
type EvaluatorConfig struct {
	// CalibrationBins is the number of equal-width calibration bins.
	CalibrationBins int
	// Timeout bounds loading plus prediction of a single model. Zero means
	// no bound beyond the caller's context.
	Timeout time.Duration
}

// Evaluator evaluates one model at a time against a shared dataset.
type Evaluator struct {
	loader  ModelLoader
	bins    int
	timeout time.Duration
}

// NewEvaluator creates an evaluator backed by loader.
func NewEvaluator(loader ModelLoader, cfg EvaluatorConfig) *Evaluator {
	bins := cfg.CalibrationBins
	if bins <= 0 {
		bins = DefaultCalibrationBins
	}
	return &Evaluator{loader: loader, bins: bins, timeout: cfg.Timeout}
}

type evaluation struct {
	metrics MetricSet
	curves  CurveData
	err     error
}

// Evaluate loads the model behind desc, predicts the test partition and
// derives its metrics. It never returns an error: every per-model problem,
// including panics and timeouts, becomes a *Failure.
func (e *Evaluator) Evaluate(ctx context.Context, desc ModelDescriptor, ds *Dataset) Outcome {
	start := time.Now()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// The model runs in its own goroutine so that one ignoring its context
	// is abandoned at the deadline instead of stalling the batch.
	done := make(chan evaluation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evaluation{err: &PredictionError{Model: desc.Name, Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		done <- e.evaluate(ctx, desc, ds)
	}()

	var res evaluation
	select {
	case res = <-done:
	case <-ctx.Done():
		res = evaluation{err: fmt.Errorf("model %s abandoned after %v: %w", desc.Name, time.Since(start).Round(time.Millisecond), ctx.Err())}
	}

	if res.err != nil {
		f := failureFrom(desc.Name, res.err)
		log.Warn().
			Str("model", desc.Name).
			Str("location", desc.Location).
			Str("kind", string(f.Kind)).
			Err(res.err).
			Msg("Model evaluation failed")
		return f
	}

	return &Success{
		Model:    desc.Name,
		Metrics:  res.metrics,
		Curves:   res.curves,
		Duration: time.Since(start),
	}
}

func (e *Evaluator) evaluate(ctx context.Context, desc ModelDescriptor, ds *Dataset) evaluation {
	model, err := e.loader.Load(ctx, desc.Location)
	if err != nil {
		return evaluation{err: &ModelLoadError{Model: desc.Name, Err: err}}
	}
	if c, ok := model.(ml.Closer); ok {
		defer c.Close()
	}

	pr, err := predict(ctx, desc.Name, model, ds.TestFeatures)
	if err != nil {
		return evaluation{err: err}
	}
	if err := ValidatePrediction(ds.TestLabels, pr); err != nil {
		return evaluation{err: &PredictionError{Model: desc.Name, Err: err}}
	}

	return e.derive(desc.Name, ds.TestLabels, pr)
}

// predict obtains labels and, when the model has the capability, scores.
func predict(ctx context.Context, name string, model ml.Model, features [][]float64) (PredictionResult, error) {
	pr := PredictionResult{ModelName: name}

	labels, err := model.Predict(ctx, features)
	if err != nil {
		return pr, &PredictionError{Model: name, Err: err}
	}
	pr.Labels = labels

	if scorer, ok := ml.ScorerOf(model); ok {
		scores, err := scorer.PredictScore(ctx, features)
		if err != nil {
			return pr, &PredictionError{Model: name, Err: fmt.Errorf("score: %w", err)}
		}
		if scores == nil {
			scores = []float64{}
		}
		pr.Scores = scores
	}
	return pr, nil
}

func (e *Evaluator) derive(name string, actual []int, pr PredictionResult) evaluation {
	res := evaluation{
		metrics: ComputeMetrics(actual, pr.Labels, pr.Scores),
		curves:  CurveData{Confusion: Confusion(actual, pr.Labels)},
	}
	if pr.Scores == nil {
		return res
	}

	points, _, ok := ROCCurve(actual, pr.Scores)
	if !ok {
		log.Warn().
			Str("model", name).
			Msg("Test labels contain a single class, ROC AUC is undefined")
	}
	res.curves.ROC = points
	res.curves.Calibration = CalibrationCurve(actual, pr.Scores, e.bins)
	return res
}
