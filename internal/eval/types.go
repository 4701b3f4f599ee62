// Package eval implements the model evaluation aggregator: it runs every
// discovered classifier against a fixed held-out test set, derives the
// standard binary classification metrics and curves, and merges the
// per-model outcomes into a ranked report.
//
// Per-model failures are first-class values (see Outcome) and never abort
// the batch. Only dataset and discovery failures are fatal to a run.
package eval

import (
	"time"
)

// DefaultCalibrationBins is the number of equal-width probability bins used
// for calibration curves when none is configured.
const DefaultCalibrationBins = 10

// ModelDescriptor identifies one persisted model artifact. Descriptors are
// created by the registry and never mutated.
type ModelDescriptor struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Kind     string `json:"kind,omitempty"`
}

// Dataset is a fixed train/test partition with binary (0/1) labels.
// It is shared read-only between evaluations.
type Dataset struct {
	FeatureNames  []string    `json:"feature_names"`
	TrainFeatures [][]float64 `json:"-"`
	TrainLabels   []int       `json:"-"`
	TestFeatures  [][]float64 `json:"-"`
	TestLabels    []int       `json:"-"`
}

// TestSize returns the number of held-out rows.
func (d *Dataset) TestSize() int {
	return len(d.TestLabels)
}

// Validate checks the dataset invariants required before any evaluation.
func (d *Dataset) Validate() error {
	if d == nil {
		return &DataUnavailableError{Source: "dataset", Err: errEmptyTestSet}
	}
	if len(d.TestLabels) == 0 || len(d.TestFeatures) == 0 {
		return &DataUnavailableError{Source: "dataset", Err: errEmptyTestSet}
	}
	if len(d.TestFeatures) != len(d.TestLabels) {
		return &DataUnavailableError{
			Source: "dataset",
			Err:    errMismatchedTestSet,
		}
	}
	for i, y := range d.TestLabels {
		if y != 0 && y != 1 {
			return &DataUnavailableError{Source: "dataset", Err: nonBinaryLabelError(i, y)}
		}
	}
	return nil
}

// PredictionResult holds a model's output on the test features.
// Scores is nil when the model exposes no score capability.
type PredictionResult struct {
	ModelName string    `json:"model_name"`
	Labels    []int     `json:"predicted_labels"`
	Scores    []float64 `json:"predicted_scores,omitempty"`
}

// MetricSet holds the derived metrics for one model.
// ROCAUC is 0.5 when HasScores is false.
type MetricSet struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	ROCAUC    float64 `json:"roc_auc"`
	HasScores bool    `json:"has_scores"`
}

// ROCPoint is one (FPR, TPR) pair and the threshold that produced it.
type ROCPoint struct {
	Threshold float64 `json:"threshold"`
	FPR       float64 `json:"fpr"`
	TPR       float64 `json:"tpr"`
}

// CalibrationPoint summarizes one populated probability bin [Lower, Upper).
type CalibrationPoint struct {
	Lower             float64 `json:"lower"`
	Upper             float64 `json:"upper"`
	MeanPredicted     float64 `json:"mean_predicted"`
	ObservedFrequency float64 `json:"observed_frequency"`
	Count             int     `json:"count"`
}

// ConfusionMatrix is indexed [actual][predicted]; index 0 is the negative class.
type ConfusionMatrix [2][2]int

// TN returns the true negatives.
func (c ConfusionMatrix) TN() int { return c[0][0] }

// FP returns the false positives.
func (c ConfusionMatrix) FP() int { return c[0][1] }

// FN returns the false negatives.
func (c ConfusionMatrix) FN() int { return c[1][0] }

// TP returns the true positives.
func (c ConfusionMatrix) TP() int { return c[1][1] }

// CurveData holds the per-model curves for presentation.
// ROC and Calibration are empty when the model produced no scores.
type CurveData struct {
	ROC         []ROCPoint         `json:"roc_points"`
	Calibration []CalibrationPoint `json:"calibration_points"`
	Confusion   ConfusionMatrix    `json:"confusion_matrix"`
}

// Outcome is the result of evaluating one model: either *Success or *Failure.
type Outcome interface {
	ModelName() string
	outcome()
}

// Success carries the metrics and curves of a model that evaluated cleanly.
type Success struct {
	Model    string        `json:"model"`
	Metrics  MetricSet     `json:"metrics"`
	Curves   CurveData     `json:"curves"`
	Duration time.Duration `json:"duration"`
}

func (s *Success) ModelName() string { return s.Model }
func (*Success) outcome()            {}

// FailureKind classifies a per-model failure.
type FailureKind string

const (
	FailureLoad       FailureKind = "load"
	FailurePrediction FailureKind = "prediction"
	FailureTimeout    FailureKind = "timeout"
)

// Failure records why a model could not be evaluated.
type Failure struct {
	Model       string      `json:"model"`
	Kind        FailureKind `json:"kind"`
	Description string      `json:"error"`
}

func (f *Failure) ModelName() string { return f.Model }
func (*Failure) outcome()            {}

// Result pairs a descriptor with its outcome.
type Result struct {
	Descriptor ModelDescriptor
	Outcome    Outcome
}
