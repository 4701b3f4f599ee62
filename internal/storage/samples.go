package storage

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

// Sample is one labelled observation. Year drives the temporal split.
type Sample struct {
	Year     int       `json:"year"`
	Features []float64 `json:"features"`
	Label    int       `json:"label"`
}

// SampleSet is the feature schema stored alongside the samples.
type SampleSet struct {
	FeatureNames []string `json:"feature_names"`
}

var schemaKey = []byte("_schema")

// PutSamples appends samples. Keys are year_sequence so iteration returns
// samples grouped by year in insertion order.
func (s *Store) PutSamples(schema SampleSet, samples []Sample) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(samplesBucket))

		data, err := json.Marshal(schema)
		if err != nil {
			return fmt.Errorf("marshal sample schema: %w", err)
		}
		if err := b.Put(schemaKey, data); err != nil {
			return err
		}

		for _, sample := range samples {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(sample)
			if err != nil {
				return fmt.Errorf("marshal sample: %w", err)
			}
			key := fmt.Sprintf("%04d_%010d", sample.Year, seq)
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Samples returns the schema and every stored sample in key order.
// Malformed records are reported as errors rather than skipped, so a
// dataset is never silently truncated.
func (s *Store) Samples() (SampleSet, []Sample, error) {
	var schema SampleSet
	var samples []Sample

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(samplesBucket))
		if raw := b.Get(schemaKey); raw != nil {
			if err := json.Unmarshal(raw, &schema); err != nil {
				return fmt.Errorf("decode sample schema: %w", err)
			}
		}

		return b.ForEach(func(k, v []byte) error {
			if string(k) == string(schemaKey) {
				return nil
			}
			var sample Sample
			if err := json.Unmarshal(v, &sample); err != nil {
				return fmt.Errorf("decode sample %s: %w", k, err)
			}
			samples = append(samples, sample)
			return nil
		})
	})
	return schema, samples, err
}

// ClearSamples removes every stored sample and the schema.
func (s *Store) ClearSamples() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(samplesBucket)); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(samplesBucket))
		return err
	})
}
