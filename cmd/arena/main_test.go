package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"model-arena/internal/report"
	"model-arena/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the caller's environment out of configuration loading.
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "MODELS_DIR", "MODEL_FILTER", "DATASET_PATH", "DATASET_FORMAT",
		"LABEL_COLUMN", "YEAR_COLUMN", "TEST_FROM_YEAR", "CALIBRATION_BINS", "MODEL_TIMEOUT",
		"REMOTE_TIMEOUT", "PARALLELISM", "PYTHON_PATH", "INFERENCE_SCRIPT", "OUTPUT_DIR",
		"DATA_PATH", "DASHBOARD_PORT", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSeedEvaluateAndListRuns(t *testing.T) {
	isolate(t)
	tmp := t.TempDir()
	models := filepath.Join(tmp, "models")
	data := filepath.Join(tmp, "data")
	csvPath := filepath.Join(tmp, "matches.csv")
	reports := filepath.Join(tmp, "reports")

	out, err := execute(t, "seed", "--models", models, "--dataset", csvPath, "--data-path", data, "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 900 matches")

	out, err = execute(t, "evaluate",
		"--models", models, "--dataset", csvPath, "--output", reports,
		"--data-path", data, "--parallel", "3", "--log-level", "warn",
		"--metrics-file", filepath.Join(tmp, "arena.prom"))
	require.NoError(t, err)
	assert.Contains(t, out, "lazy_baseline")
	assert.Contains(t, out, "corrupt [load]")

	metricsText, err := os.ReadFile(filepath.Join(tmp, "arena.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), "arena_runs_total 1")
	assert.Contains(t, string(metricsText), "arena_runs_in_progress 0")

	store, err := storage.New(data)
	require.NoError(t, err)
	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].Usable)
	assert.Equal(t, 1, runs[0].Failed)

	_, err = os.Stat(filepath.Join(reports, runs[0].RunID, report.LeaderboardFile))
	assert.NoError(t, err)

	out, err = execute(t, "runs", "--data-path", data, "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].RunID)

	out, err = execute(t, "runs", "show", runs[0].RunID, "--data-path", data, "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "lazy_baseline")

	_, err = execute(t, "runs", "show", "missing", "--data-path", data, "--log-level", "warn")
	assert.Error(t, err)
}

func TestSeedEvaluate_BoltDataset(t *testing.T) {
	isolate(t)
	tmp := t.TempDir()
	models := filepath.Join(tmp, "models")
	data := filepath.Join(tmp, "data")

	_, err := execute(t, "seed", "--models", models, "--dataset", data, "--format", "boltdb",
		"--data-path", data, "--matches", "40", "--log-level", "warn")
	require.NoError(t, err)

	// The dataset and the run archive share one store.
	out, err := execute(t, "evaluate", "--models", models, "--dataset", data, "--format", "boltdb",
		"--output", filepath.Join(tmp, "reports"), "--data-path", data, "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "lazy_baseline")
}

func TestEvaluate_FatalErrors(t *testing.T) {
	isolate(t)
	tmp := t.TempDir()
	models := filepath.Join(tmp, "models")
	require.NoError(t, os.Mkdir(models, 0o755))

	tests := []struct {
		name string
		args []string
	}{
		{"missing dataset", []string{"--models", models, "--dataset", filepath.Join(tmp, "absent.csv")}},
		{"missing models directory", []string{"--models", filepath.Join(tmp, "absent"), "--dataset", writeTinyCSV(t, tmp)}},
		{"invalid filter", []string{"--models", models, "--dataset", writeTinyCSV(t, tmp), "--filter", "name =="}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"evaluate", "--no-archive", "--output", filepath.Join(tmp, "reports"), "--log-level", "error"}, tt.args...)
			_, err := execute(t, args...)
			require.Error(t, err)

			var ce cliError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, exitFatal, ce.code)
		})
	}
}

func TestEvaluate_NoUsableModelsIsNotAnError(t *testing.T) {
	isolate(t)
	tmp := t.TempDir()
	models := filepath.Join(tmp, "models")
	require.NoError(t, os.Mkdir(models, 0o755))

	out, err := execute(t, "evaluate", "--no-archive", "--log-level", "error",
		"--models", models, "--dataset", writeTinyCSV(t, tmp), "--output", filepath.Join(tmp, "reports"))
	require.NoError(t, err)
	assert.Contains(t, out, "No usable models")
}

func TestEvaluate_InvalidSettings(t *testing.T) {
	isolate(t)
	_, err := execute(t, "evaluate", "--parallel", "0", "--no-archive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallelism")
}

func writeTinyCSV(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "tiny.csv")
	content := "year,x,label\n2023,0.1,0\n2023,0.9,1\n2024,0.2,0\n2024,0.8,1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
