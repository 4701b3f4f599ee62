package eval

import (
	"context"
	"errors"
	"fmt"
)

var (
	errEmptyTestSet      = errors.New("test partition is empty")
	errMismatchedTestSet = errors.New("test features and labels differ in length")
)

func nonBinaryLabelError(i, y int) error {
	return fmt.Errorf("test label %d is %d, expected 0 or 1", i, y)
}

// DiscoveryError means the model registry location could not be read.
// It is fatal to a run.
type DiscoveryError struct {
	Location string
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("model discovery failed for %s: %v", e.Location, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// DataUnavailableError means the dataset source is unreadable or empty.
// It is fatal to a run.
type DataUnavailableError struct {
	Source string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("dataset unavailable from %s: %v", e.Source, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// ModelLoadError means one artifact could not be loaded. It is isolated to
// that model.
type ModelLoadError struct {
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// PredictionError means a loaded model failed or returned malformed output.
// It is isolated to that model.
type PredictionError struct {
	Model string
	Err   error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("predict with model %s: %v", e.Model, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// IsFatal reports whether err aborts a whole run.
func IsFatal(err error) bool {
	var de *DiscoveryError
	var due *DataUnavailableError
	return errors.As(err, &de) || errors.As(err, &due)
}

// failureFrom converts a per-model error into a Failure outcome.
func failureFrom(model string, err error) *Failure {
	kind := FailurePrediction
	var le *ModelLoadError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = FailureTimeout
	case errors.As(err, &le):
		kind = FailureLoad
	}
	return &Failure{Model: model, Kind: kind, Description: err.Error()}
}
