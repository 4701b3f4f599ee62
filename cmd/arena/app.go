package main

import (
	"fmt"
	"os"
	"path/filepath"

	"model-arena/internal/cfg"
	"model-arena/internal/dataset"
	"model-arena/internal/eval"
	"model-arena/internal/ml"
	"model-arena/internal/registry"
	"model-arena/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app carries the settings and open stores of one command invocation.
// Stores are shared by directory, since bbolt allows a single writer per
// file and the dataset and the run archive may live in the same store.
type app struct {
	settings cfg.Settings
	stores   map[string]*storage.Store
}

// newApp loads configuration, applies the command's flags on top and sets
// up logging.
func newApp(cmd *cobra.Command) (*app, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("CONFIG_FILE", path); err != nil {
			return nil, err
		}
	}

	settings, err := cfg.Load()
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, &settings); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if err := setupLogging(settings.LogLevel); err != nil {
		return nil, err
	}

	log.Debug().
		Str("models_dir", settings.ModelsDir).
		Str("dataset", settings.DatasetPath).
		Str("format", settings.DatasetFormat).
		Int("test_from_year", settings.TestFromYear).
		Int("parallelism", settings.Parallelism).
		Msg("Settings loaded")

	return &app{settings: settings, stores: make(map[string]*storage.Store)}, nil
}

// applyFlags copies explicitly set flags over the loaded settings. Flags a
// command does not define are skipped.
func applyFlags(cmd *cobra.Command, s *cfg.Settings) error {
	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	strs := map[string]*string{
		"log-level": &s.LogLevel,
		"data-path": &s.DataPath,
		"models":    &s.ModelsDir,
		"filter":    &s.ModelFilter,
		"dataset":   &s.DatasetPath,
		"format":    &s.DatasetFormat,
		"output":    &s.OutputDir,
	}
	for name, dst := range strs {
		if changed(name) {
			v, err := flags.GetString(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	ints := map[string]*int{
		"parallel":       &s.Parallelism,
		"bins":           &s.CalibrationBins,
		"test-from-year": &s.TestFromYear,
		"port":           &s.DashboardPort,
	}
	for name, dst := range ints {
		if changed(name) {
			v, err := flags.GetInt(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	if changed("timeout") {
		v, err := flags.GetDuration("timeout")
		if err != nil {
			return err
		}
		s.ModelTimeout = v
	}
	return nil
}

// store opens, or reuses, the arena store in dir.
func (a *app) store(dir string) (*storage.Store, error) {
	key := filepath.Clean(dir)
	if s, ok := a.stores[key]; ok {
		return s, nil
	}
	s, err := storage.New(key)
	if err != nil {
		return nil, err
	}
	a.stores[key] = s
	return s, nil
}

// archive returns the run archive, or nil when archiving is disabled.
func (a *app) archive() (*storage.Store, error) {
	if a.settings.DataPath == "" {
		return nil, nil
	}
	return a.store(a.settings.DataPath)
}

func (a *app) Close() {
	for dir, s := range a.stores {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("Failed to close store")
		}
	}
	a.stores = nil
}

func (a *app) datasetFormat() (string, error) {
	if a.settings.DatasetFormat != dataset.FormatAuto {
		return a.settings.DatasetFormat, nil
	}
	return dataset.DetectFormat(a.settings.DatasetPath)
}

func (a *app) datasetSource() (eval.DatasetProvider, error) {
	opts := dataset.Options{
		LabelColumn:  a.settings.LabelColumn,
		YearColumn:   a.settings.YearColumn,
		TestFromYear: a.settings.TestFromYear,
	}

	format, err := a.datasetFormat()
	if err != nil {
		return nil, err
	}
	switch format {
	case dataset.FormatCSV:
		return dataset.NewCSVSource(a.settings.DatasetPath, opts), nil
	case dataset.FormatBoltDB:
		store, err := a.store(dataset.StoreDir(a.settings.DatasetPath))
		if err != nil {
			return nil, &eval.DataUnavailableError{Source: a.settings.DatasetPath, Err: err}
		}
		return dataset.NewBoltSource(a.settings.DatasetPath, store, opts), nil
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
}

// newArena wires the dataset, registry and loader for one run. recorder may
// be nil.
func (a *app) newArena(recorder eval.Recorder) (*eval.Arena, error) {
	data, err := a.datasetSource()
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(a.settings.ModelsDir, a.settings.ModelFilter)
	if err != nil {
		return nil, err
	}

	loader := ml.NewLoader(ml.LoaderConfig{
		PythonPath:      a.settings.PythonPath,
		InferenceScript: a.settings.InferenceScript,
		RemoteTimeout:   a.settings.RemoteTimeout,
	})
	evaluator := eval.NewEvaluator(loader, eval.EvaluatorConfig{
		CalibrationBins: a.settings.CalibrationBins,
		Timeout:         a.settings.ModelTimeout,
	})

	arena := eval.NewArena(data, reg, evaluator, eval.ArenaConfig{Parallelism: a.settings.Parallelism})
	if recorder != nil {
		arena.WithRecorder(recorder)
	}
	return arena, nil
}
