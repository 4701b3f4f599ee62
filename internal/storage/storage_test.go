package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"model-arena/internal/eval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	require.NoError(t, err)
	defer store.Close()

	assert.NotNil(t, store.db)
	_, err = os.Stat(filepath.Join(tempDir, DBFile))
	assert.NoError(t, err, "database file should be created")
}

func TestNew_PathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(file)
	assert.Error(t, err)
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close(), "closing twice should be a no-op")
}

func TestSamples_RoundTripOrderedByYear(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	schema := SampleSet{FeatureNames: []string{"elo_diff", "form"}}
	require.NoError(t, store.PutSamples(schema, []Sample{
		{Year: 2023, Features: []float64{0.3, 1}, Label: 1},
		{Year: 2021, Features: []float64{-0.2, 0}, Label: 0},
		{Year: 2023, Features: []float64{0.1, 2}, Label: 0},
	}))

	gotSchema, samples, err := store.Samples()
	require.NoError(t, err)
	assert.Equal(t, schema, gotSchema)
	require.Len(t, samples, 3)

	assert.Equal(t, 2021, samples[0].Year)
	assert.Equal(t, []float64{0.3, 1}, samples[1].Features, "same-year samples keep insertion order")
	assert.Equal(t, []float64{0.1, 2}, samples[2].Features)
}

func TestClearSamples(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutSamples(SampleSet{FeatureNames: []string{"a"}},
		[]Sample{{Year: 2020, Features: []float64{1}, Label: 1}}))
	require.NoError(t, store.ClearSamples())

	schema, samples, err := store.Samples()
	require.NoError(t, err)
	assert.Empty(t, samples)
	assert.Empty(t, schema.FeatureNames)
}

func testReport(id string, at time.Time, leader string, acc float64) *eval.Report {
	return &eval.Report{
		RunID:       id,
		GeneratedAt: at,
		TestSize:    4,
		Leaderboard: []eval.LeaderboardEntry{
			{Rank: 1, Model: leader, Metrics: eval.MetricSet{Accuracy: acc}},
		},
		Failures: []eval.Failure{{Model: "broken", Kind: eval.FailureLoad, Description: "bad file"}},
		Curves:   map[string]eval.CurveData{},
	}
}

func TestReports_SaveGetAndList(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveReport(testReport("run-a", base, "logistic", 0.7)))
	require.NoError(t, store.SaveReport(testReport("run-c", base.Add(2*time.Hour), "tree", 0.8)))
	require.NoError(t, store.SaveReport(testReport("run-b", base.Add(time.Hour), "knn", 0.6)))

	got, err := store.GetReport("run-a")
	require.NoError(t, err)
	assert.Equal(t, "logistic", got.Leaderboard[0].Model)
	assert.Equal(t, eval.FailureLoad, got.Failures[0].Kind)
	assert.True(t, got.GeneratedAt.Equal(base))

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"run-c", "run-b", "run-a"},
		[]string{runs[0].RunID, runs[1].RunID, runs[2].RunID})
	assert.Equal(t, "tree", runs[0].Leader)
	assert.Equal(t, 1, runs[0].Usable)
	assert.Equal(t, 1, runs[0].Failed)

	limited, err := store.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	latest, err := store.LatestReport()
	require.NoError(t, err)
	assert.Equal(t, "run-c", latest.RunID)
}

func TestReports_NotFound(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetReport("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.LatestReport()
	assert.ErrorIs(t, err, ErrNotFound)

	runs, err := store.ListRuns(5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSaveReport_RequiresRunID(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.SaveReport(&eval.Report{}))
	assert.Error(t, store.SaveReport(nil))
}
