package dataset

import (
	"context"
	"fmt"

	"model-arena/internal/eval"
	"model-arena/internal/storage"

	"github.com/rs/zerolog/log"
)

// SampleReader is the part of the arena store the bbolt source reads.
type SampleReader interface {
	Samples() (storage.SampleSet, []storage.Sample, error)
}

// BoltSource reads samples from an arena store.
type BoltSource struct {
	name  string
	store SampleReader
	opts  Options
}

// NewBoltSource creates a dataset provider over an open store. name is used
// in logs and errors.
func NewBoltSource(name string, store SampleReader, opts Options) *BoltSource {
	return &BoltSource{name: name, store: store, opts: opts.withDefaults()}
}

// Load implements eval.DatasetProvider.
func (s *BoltSource) Load(ctx context.Context) (*eval.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	schema, samples, err := s.store.Samples()
	if err != nil {
		return nil, &eval.DataUnavailableError{Source: s.name, Err: fmt.Errorf("failed to read samples: %w", err)}
	}

	rows := make([]row, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, row{year: sample.Year, features: sample.Features, label: sample.Label})
	}

	ds, err := partition(s.name, schema.FeatureNames, rows, s.opts.TestFromYear)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("store", s.name).
		Int("train", len(ds.TrainLabels)).
		Int("test", ds.TestSize()).
		Int("test_from_year", s.opts.TestFromYear).
		Msg("BoltDB dataset loaded")

	return ds, nil
}
