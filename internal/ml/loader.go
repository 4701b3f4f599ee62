package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Artifact kinds reported by KindOf.
const (
	KindRemote     = "remote"
	KindSubprocess = "subprocess"
	KindEnvelope   = "envelope"
)

// SubprocessExtensions lists artifact extensions handled by the Python bridge.
var SubprocessExtensions = []string{".pkl", ".joblib", ".onnx"}

// KindOf classifies a location without reading it. It returns "" for
// locations no loader handles.
func KindOf(location string) string {
	lower := strings.ToLower(location)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return KindRemote
	}
	ext := filepath.Ext(lower)
	if ext == ".json" {
		return KindEnvelope
	}
	for _, e := range SubprocessExtensions {
		if ext == e {
			return KindSubprocess
		}
	}
	return ""
}

// LoaderConfig configures the artifact store.
type LoaderConfig struct {
	PythonPath      string
	InferenceScript string
	RemoteTimeout   time.Duration
}

// Loader resolves artifact locations into loaded models.
type Loader struct {
	subprocess SubprocessOptions
	rest       *resty.Client
}

// NewLoader creates an artifact loader.
func NewLoader(cfg LoaderConfig) *Loader {
	return &Loader{
		subprocess: SubprocessOptions{PythonPath: cfg.PythonPath, ScriptPath: cfg.InferenceScript},
		rest:       NewRemoteClient(cfg.RemoteTimeout),
	}
}

// Load resolves location into a Model.
func (l *Loader) Load(ctx context.Context, location string) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch KindOf(location) {
	case KindRemote:
		return LoadRemote(ctx, l.rest, location)
	case KindSubprocess:
		return LoadSubprocess(ctx, location, l.subprocess)
	case KindEnvelope:
		env, err := ReadEnvelope(location)
		if err != nil {
			return nil, err
		}
		return LoadEnvelope(env)
	default:
		return nil, fmt.Errorf("unsupported artifact location %q", location)
	}
}
