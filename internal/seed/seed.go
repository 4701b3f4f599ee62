// Package seed generates a deterministic synthetic match dataset and a set
// of sample model artifacts, so a fresh checkout can run the arena end to
// end without any trained models.
package seed

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"model-arena/internal/ml"
	"model-arena/internal/storage"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FeatureNames are the generated feature columns, in order.
var FeatureNames = []string{"elo_diff", "home_form", "away_form", "rest_days_diff"}

// Options control dataset generation.
type Options struct {
	Seed           uint64
	FirstYear      int
	LastYear       int
	MatchesPerYear int
}

// DefaultOptions covers 2019 to 2024 with 2024 as the natural test season.
func DefaultOptions() Options {
	return Options{Seed: 42, FirstYear: 2019, LastYear: 2024, MatchesPerYear: 150}
}

// true generating coefficients; the logistic artifact is close to these
var (
	trueBias    = 0.2
	trueWeights = []float64{1.2, 0.3, -0.3, 0.05}
)

// Matches generates samples ordered by year. The same options always give
// the same samples.
func Matches(opts Options) []storage.Sample {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	var samples []storage.Sample
	for year := opts.FirstYear; year <= opts.LastYear; year++ {
		for i := 0; i < opts.MatchesPerYear; i++ {
			features := []float64{
				round(rng.NormFloat64(), 3),
				float64(rng.IntN(6)),
				float64(rng.IntN(6)),
				float64(rng.IntN(7) - 3),
			}
			p := 1 / (1 + math.Exp(-(trueBias + dot(trueWeights, features))))
			label := 0
			if rng.Float64() < p {
				label = 1
			}
			samples = append(samples, storage.Sample{Year: year, Features: features, Label: label})
		}
	}
	return samples
}

// WriteCSV writes samples with a header of year, features and label.
func WriteCSV(path string, samples []storage.Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := append(append([]string{"year"}, FeatureNames...), "label")
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, s := range samples {
		record := []string{strconv.Itoa(s.Year)}
		for _, v := range s.Features {
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		record = append(record, strconv.Itoa(s.Label))
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}

	log.Info().Str("file", path).Int("samples", len(samples)).Msg("Synthetic dataset written")
	return nil
}

// WriteStore replaces the samples in store.
func WriteStore(store *storage.Store, samples []storage.Sample) error {
	if err := store.ClearSamples(); err != nil {
		return fmt.Errorf("failed to clear samples: %w", err)
	}
	if err := store.PutSamples(storage.SampleSet{FeatureNames: FeatureNames}, samples); err != nil {
		return fmt.Errorf("failed to store samples: %w", err)
	}
	log.Info().Int("samples", len(samples)).Msg("Synthetic dataset stored")
	return nil
}

// CorruptModel is the file name of the deliberately unreadable artifact.
const CorruptModel = "corrupt.json"

// WriteModels writes the sample artifacts into dir, fitted loosely to the
// training samples (those before testFromYear). It returns the written paths.
func WriteModels(dir string, samples []storage.Sample, testFromYear int) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	var train []storage.Sample
	for _, s := range samples {
		if s.Year < testFromYear {
			train = append(train, s)
		}
	}
	if len(train) == 0 {
		return nil, fmt.Errorf("no training samples before %d", testFromYear)
	}

	envelopes := map[string]*ml.Envelope{
		"logistic.json": {
			Kind: ml.KindLogistic, Name: "logistic", FeatureNames: FeatureNames,
			Bias: 0.15, Weights: []float64{1.1, 0.28, -0.28, 0.04},
		},
		"linear_svm.json": {
			Kind: ml.KindLinearSVM, Name: "linear_svm", FeatureNames: FeatureNames,
			Bias: 0.1, Weights: []float64{0.9, 0.2, -0.2, 0},
		},
		"tree.json": {
			Kind: ml.KindTree, Name: "tree", FeatureNames: FeatureNames,
			Nodes: []ml.TreeNode{
				{Feature: 0, Split: 0, Left: 1, Right: 2},
				{Feature: 1, Split: 2, Left: 3, Right: 4},
				{Feature: 2, Split: 2, Left: 5, Right: 6},
				{Left: -1, Right: -1, Value: 0.22},
				{Left: -1, Right: -1, Value: 0.45},
				{Left: -1, Right: -1, Value: 0.82},
				{Left: -1, Right: -1, Value: 0.61},
			},
		},
		"knn.json": knnEnvelope(train, 9, 300),
		"majority.json": {
			Kind: ml.KindMajority, Name: "majority", FeatureNames: FeatureNames,
			Class: majorityClass(train),
		},
	}

	var paths []string
	for _, file := range []string{"knn.json", "linear_svm.json", "logistic.json", "majority.json", "tree.json"} {
		path := filepath.Join(dir, file)
		if err := ml.WriteEnvelope(path, envelopes[file]); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	corrupt := filepath.Join(dir, CorruptModel)
	if err := os.WriteFile(corrupt, []byte(`{"kind": "logistic", "weights": [0.4, `), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write corrupt artifact: %w", err)
	}
	paths = append(paths, corrupt)

	// The manifest gives the majority model its baseline name.
	manifest := map[string]any{
		"models": []map[string]string{{"name": "lazy_baseline", "location": "majority.json"}},
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(dir, "models.yaml")
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	paths = append(paths, manifestPath)

	log.Info().Str("dir", dir).Int("artifacts", len(paths)).Msg("Sample models written")
	return paths, nil
}

// knnEnvelope keeps up to limit evenly spaced training samples as references.
func knnEnvelope(train []storage.Sample, k, limit int) *ml.Envelope {
	step := 1
	if len(train) > limit {
		step = len(train) / limit
	}
	env := &ml.Envelope{Kind: ml.KindKNN, Name: "knn", FeatureNames: FeatureNames, K: k}
	for i := 0; i < len(train) && len(env.Points) < limit; i += step {
		env.Points = append(env.Points, train[i].Features)
		env.Labels = append(env.Labels, train[i].Label)
	}
	if env.K > len(env.Points) {
		env.K = len(env.Points)
	}
	return env
}

func majorityClass(samples []storage.Sample) int {
	pos := 0
	for _, s := range samples {
		pos += s.Label
	}
	if 2*pos > len(samples) {
		return 1
	}
	return 0
}

func dot(w, x []float64) float64 {
	var sum float64
	for i := range w {
		sum += w[i] * x[i]
	}
	return sum
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
