// Package registry discovers persisted model artifacts. It reads metadata
// only: artifacts are not opened until the evaluator loads them, so a
// corrupt artifact surfaces as a per-model failure rather than a discovery
// error.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"model-arena/internal/eval"
	"model-arena/internal/ml"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the optional manifest read from the models directory.
const ManifestFile = "models.yaml"

// Manifest lists models that cannot be found by scanning, such as remote
// endpoints, or gives scanned artifacts a different name.
type Manifest struct {
	Models []ManifestEntry `yaml:"models" validate:"dive"`
}

var manifestValidate = validator.New()

// ManifestEntry is one named model location. Relative file locations are
// resolved against the models directory.
type ManifestEntry struct {
	Name     string `yaml:"name" validate:"required"`
	Location string `yaml:"location" validate:"required"`
}

// FileRegistry discovers models in a directory.
type FileRegistry struct {
	dir    string
	filter *Filter
}

// New creates a registry over dir. filterExpr is an optional CEL expression
// over name, location and kind selecting which models to evaluate.
func New(dir, filterExpr string) (*FileRegistry, error) {
	r := &FileRegistry{dir: dir}
	if strings.TrimSpace(filterExpr) != "" {
		f, err := NewFilter(filterExpr)
		if err != nil {
			return nil, &eval.DiscoveryError{Location: dir, Err: err}
		}
		r.filter = f
	}
	return r, nil
}

// Discover returns descriptors sorted by name. Names are unique: manifest
// entries win over scanned files, and later duplicates are skipped.
func (r *FileRegistry) Discover(ctx context.Context) ([]eval.ModelDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, &eval.DiscoveryError{Location: r.dir, Err: err}
	}

	manifest, err := r.readManifest()
	if err != nil {
		return nil, &eval.DiscoveryError{Location: filepath.Join(r.dir, ManifestFile), Err: err}
	}

	seen := make(map[string]bool)
	claimed := make(map[string]bool) // locations already named by the manifest
	var descs []eval.ModelDescriptor

	add := func(d eval.ModelDescriptor, origin string) {
		if d.Name == "" {
			log.Warn().Str("location", d.Location).Msg("Skipping model with empty name")
			return
		}
		if seen[d.Name] {
			log.Warn().
				Str("model", d.Name).
				Str("location", d.Location).
				Str("origin", origin).
				Msg("Duplicate model name, skipping")
			return
		}
		seen[d.Name] = true
		descs = append(descs, d)
	}

	for _, e := range manifest.Models {
		loc := e.Location
		if ml.KindOf(loc) != ml.KindRemote && !filepath.IsAbs(loc) {
			loc = filepath.Join(r.dir, loc)
		}
		claimed[filepath.Clean(loc)] = true
		add(eval.ModelDescriptor{Name: e.Name, Location: loc, Kind: ml.KindOf(loc)}, "manifest")
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == ManifestFile {
			continue
		}
		loc := filepath.Join(r.dir, entry.Name())
		kind := ml.KindOf(loc)
		if kind == "" || claimed[filepath.Clean(loc)] {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		add(eval.ModelDescriptor{Name: name, Location: loc, Kind: kind}, "scan")
	}

	if r.filter != nil {
		kept := descs[:0]
		for _, d := range descs {
			ok, err := r.filter.Match(d)
			if err != nil {
				return nil, &eval.DiscoveryError{Location: r.dir, Err: err}
			}
			if ok {
				kept = append(kept, d)
			}
		}
		descs = kept
	}

	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })

	log.Info().
		Str("dir", r.dir).
		Int("models", len(descs)).
		Int("manifest_entries", len(manifest.Models)).
		Msg("Model discovery completed")

	return descs, nil
}

func (r *FileRegistry) readManifest() (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(r.dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := manifestValidate.Struct(m); err != nil {
		return m, fmt.Errorf("invalid manifest: %w", err)
	}
	return m, nil
}
