package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"model-arena/internal/eval"
	"model-arena/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	return path
}

func names(descs []eval.ModelDescriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.Name
	}
	return out
}

func TestDiscover_ScansKnownArtifacts(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "tree.json")
	touch(t, dir, "forest.pkl")
	touch(t, dir, "boosted.onnx")
	touch(t, dir, "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.json"), 0o755))

	reg, err := New(dir, "")
	require.NoError(t, err)

	descs, err := reg.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"boosted", "forest", "tree"}, names(descs))
	assert.Equal(t, ml.KindSubprocess, descs[0].Kind)
	assert.Equal(t, ml.KindEnvelope, descs[2].Kind)
	assert.Equal(t, filepath.Join(dir, "tree.json"), descs[2].Location)
}

func TestDiscover_DuplicateNamesFirstWins(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "logistic.json")
	touch(t, dir, "logistic.pkl")

	reg, err := New(dir, "")
	require.NoError(t, err)

	descs, err := reg.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, descs, 1, "names are unique")
	assert.Equal(t, "logistic", descs[0].Name)
}

func TestDiscover_Manifest(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "lr_v3.json")
	touch(t, dir, "tree.json")
	manifest := `
models:
  - name: logistic
    location: lr_v3.json
  - name: hosted
    location: http://models.internal:9000/win-prob
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644))

	reg, err := New(dir, "")
	require.NoError(t, err)

	descs, err := reg.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"hosted", "logistic", "tree"}, names(descs),
		"manifest renames lr_v3.json so it is not also scanned")
	assert.Equal(t, ml.KindRemote, descs[0].Kind)
	assert.Equal(t, "http://models.internal:9000/win-prob", descs[0].Location)
	assert.Equal(t, filepath.Join(dir, "lr_v3.json"), descs[1].Location)
}

func TestDiscover_ManifestErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"unparseable", "models: [oops"},
		{"missing location", "models:\n  - name: orphan\n"},
		{"missing name", "models:\n  - location: a.json\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(tt.manifest), 0o644))

			reg, err := New(dir, "")
			require.NoError(t, err)

			_, err = reg.Discover(context.Background())
			var de *eval.DiscoveryError
			assert.True(t, errors.As(err, &de), "expected DiscoveryError, got %v", err)
		})
	}
}

func TestDiscover_MissingDirectory(t *testing.T) {
	reg, err := New(filepath.Join(t.TempDir(), "absent"), "")
	require.NoError(t, err)

	_, err = reg.Discover(context.Background())
	var de *eval.DiscoveryError
	require.True(t, errors.As(err, &de))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDiscover_EmptyDirectory(t *testing.T) {
	reg, err := New(t.TempDir(), "")
	require.NoError(t, err)

	descs, err := reg.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestDiscover_Filter(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "logistic.json")
	touch(t, dir, "tmp_experiment.json")
	touch(t, dir, "forest.pkl")

	reg, err := New(dir, `kind == "envelope" && !name.startsWith("tmp_")`)
	require.NoError(t, err)

	descs, err := reg.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"logistic"}, names(descs))
}

func TestNew_InvalidFilter(t *testing.T) {
	tests := []string{
		`name ==`,         // syntax error
		`unknown == "x"`,  // undeclared variable
		`name + "suffix"`, // not a bool
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := New(t.TempDir(), expr)
			var de *eval.DiscoveryError
			assert.True(t, errors.As(err, &de), "expected DiscoveryError, got %v", err)
		})
	}
}

func TestFilter_Match(t *testing.T) {
	f, err := NewFilter(`name in ["logistic", "tree"] || location.endsWith(".onnx")`)
	require.NoError(t, err)

	ok, err := f.Match(eval.ModelDescriptor{Name: "tree", Location: "/m/tree.json", Kind: "envelope"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Match(eval.ModelDescriptor{Name: "gbm", Location: "/m/gbm.onnx", Kind: "subprocess"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Match(eval.ModelDescriptor{Name: "knn", Location: "/m/knn.json", Kind: "envelope"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWatcher_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var batches [][]string
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, func(paths []string) {
			mu.Lock()
			batches = append(batches, paths)
			mu.Unlock()
		})
	}()

	touch(t, dir, "notes.txt") // ignored
	touch(t, dir, "a.json")
	touch(t, dir, "b.pkl")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) > 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	var all []string
	for _, b := range batches {
		all = append(all, b...)
	}
	assert.Contains(t, all, filepath.Join(dir, "a.json"))
	assert.NotContains(t, all, filepath.Join(dir, "notes.txt"))
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), 0)
	assert.Error(t, err)
}
