package eval

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DatasetProvider supplies the fixed train/test split.
type DatasetProvider interface {
	Load(ctx context.Context) (*Dataset, error)
}

// Registry discovers model descriptors, unique by name.
type Registry interface {
	Discover(ctx context.Context) ([]ModelDescriptor, error)
}

// Recorder receives run instrumentation. Implementations must be safe for
// concurrent use when parallelism is enabled.
type Recorder interface {
	RunStarted()
	ModelEvaluated(desc ModelDescriptor, outcome Outcome)
	RunCompleted(report *Report)
	FatalError(err error)
}

// Progress is emitted after each model finishes.
type Progress struct {
	RunID string `json:"run_id"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
	Model string `json:"model"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ArenaConfig tunes a run.
type ArenaConfig struct {
	// Parallelism is the number of models evaluated at once. Values <= 1
	// evaluate sequentially in discovery order.
	Parallelism int
}

// Arena wires the dataset provider, registry and evaluator into a run.
type Arena struct {
	data        DatasetProvider
	registry    Registry
	evaluator   *Evaluator
	parallelism int
	recorder    Recorder
	progress    func(Progress)
}

// NewArena creates an arena. All collaborators are explicit; nothing is
// loaded until Run.
func NewArena(data DatasetProvider, registry Registry, evaluator *Evaluator, cfg ArenaConfig) *Arena {
	return &Arena{
		data:        data,
		registry:    registry,
		evaluator:   evaluator,
		parallelism: cfg.Parallelism,
	}
}

// WithRecorder attaches run instrumentation.
func (a *Arena) WithRecorder(r Recorder) *Arena {
	a.recorder = r
	return a
}

// OnProgress registers a callback invoked once per finished model. Calls
// are serialized.
func (a *Arena) OnProgress(fn func(Progress)) *Arena {
	a.progress = fn
	return a
}

// Run performs one evaluation batch. Only dataset and discovery failures are
// returned as errors; per-model failures are carried in the report.
func (a *Arena) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	started := time.Now()
	if a.recorder != nil {
		a.recorder.RunStarted()
	}

	ds, err := a.loadDataset(ctx)
	if err != nil {
		a.fatal(err)
		return nil, err
	}

	descs, err := a.discover(ctx)
	if err != nil {
		a.fatal(err)
		return nil, err
	}

	log.Info().
		Str("run_id", runID).
		Int("models", len(descs)).
		Int("test_size", ds.TestSize()).
		Int("parallelism", a.parallelism).
		Msg("Evaluating models")

	results := a.evaluateAll(ctx, runID, descs, ds)

	report := Aggregate(results)
	report.RunID = runID
	report.GeneratedAt = time.Now().UTC()
	report.TestSize = ds.TestSize()
	report.PositiveRate = PositiveRate(ds.TestLabels)
	report.BaselineAccuracy = BaselineAccuracy(ds.TestLabels)

	if a.recorder != nil {
		a.recorder.RunCompleted(report)
	}

	evt := log.Info()
	if report.NoUsableModels {
		evt = log.Warn()
	}
	evt.Str("run_id", runID).
		Int("usable", report.Usable()).
		Int("failed", len(report.Failures)).
		Bool("no_usable_models", report.NoUsableModels).
		Dur("elapsed", time.Since(started)).
		Msg("Evaluation run completed")

	return report, nil
}

func (a *Arena) loadDataset(ctx context.Context) (*Dataset, error) {
	ds, err := a.data.Load(ctx)
	if err != nil {
		var due *DataUnavailableError
		if errors.As(err, &due) {
			return nil, err
		}
		return nil, &DataUnavailableError{Source: "dataset provider", Err: err}
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func (a *Arena) discover(ctx context.Context) ([]ModelDescriptor, error) {
	descs, err := a.registry.Discover(ctx)
	if err != nil {
		var de *DiscoveryError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DiscoveryError{Location: "registry", Err: err}
	}
	return descs, nil
}

// evaluateAll returns one result per descriptor, in discovery order
// regardless of how evaluations were scheduled.
func (a *Arena) evaluateAll(ctx context.Context, runID string, descs []ModelDescriptor, ds *Dataset) []Result {
	results := make([]Result, len(descs))

	var mu sync.Mutex
	done := 0
	finish := func(i int, o Outcome) {
		results[i] = Result{Descriptor: descs[i], Outcome: o}
		if a.recorder != nil {
			a.recorder.ModelEvaluated(descs[i], o)
		}

		mu.Lock()
		defer mu.Unlock()
		done++
		if a.progress != nil {
			p := Progress{RunID: runID, Done: done, Total: len(descs), Model: descs[i].Name, OK: true}
			if f, ok := o.(*Failure); ok {
				p.OK = false
				p.Error = f.Description
			}
			a.progress(p)
		}
	}

	if a.parallelism <= 1 {
		for i, d := range descs {
			finish(i, a.evaluator.Evaluate(ctx, d, ds))
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i, d := range descs {
		g.Go(func() error {
			finish(i, a.evaluator.Evaluate(gctx, d, ds))
			return nil
		})
	}
	_ = g.Wait() // Evaluate never fails; errors live in the outcomes.
	return results
}

func (a *Arena) fatal(err error) {
	log.Error().Err(err).Msg("Evaluation run aborted")
	if a.recorder != nil {
		a.recorder.FatalError(err)
	}
}
