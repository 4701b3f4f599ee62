// Package ml provides the artifact store for the arena: it turns a model
// location into a loaded binary classifier. Classifiers come in three
// flavours: in-process models decoded from a JSON envelope, Python-backed
// models invoked as a subprocess, and remote models served over HTTP.
//
// Every model can predict class labels. Producing probability scores is an
// optional capability, discovered through ScorerOf rather than by probing.
package ml

import (
	"context"
)

// Model is a loaded binary classifier.
type Model interface {
	// Name returns the model's self-reported name (may be empty).
	Name() string

	// Predict returns one 0/1 label per feature row.
	Predict(ctx context.Context, features [][]float64) ([]int, error)
}

// Scorer is implemented by models that may expose positive-class scores.
// CanScore reports whether the capability is actually available for this
// instance; a subprocess or remote model only learns that at load time.
type Scorer interface {
	Model

	CanScore() bool

	// PredictScore returns one score in [0,1] per feature row.
	PredictScore(ctx context.Context, features [][]float64) ([]float64, error)
}

// ScorerOf is the explicit capability query for scores.
func ScorerOf(m Model) (Scorer, bool) {
	s, ok := m.(Scorer)
	if !ok || !s.CanScore() {
		return nil, false
	}
	return s, true
}

// Closer is implemented by models holding resources, such as the temp files
// of a bundled inference script. The evaluator closes a model once done.
type Closer interface {
	Close() error
}
