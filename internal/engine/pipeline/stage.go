package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/cache"
	"go.trai.ch/kiln/internal/engine/plugin"
	"go.trai.ch/kiln/internal/engine/report"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// Stage is one step of a target's pipeline. A stage starts only after the
// stage before it finished for every item.
type Stage interface {
	Name() domain.Stage
	Run(ctx context.Context, in *StageInput) (*StageOutput, error)
}

// StageInput is the state the stages of one target work on.
type StageInput struct {
	Root    string
	Target  domain.Target
	Graph   *domain.ModuleGraph
	Exports ExportIndex
	Chunks  []Chunk
	NoCache bool
	// Upstream holds the artifacts of the stages that already ran, by stage
	// and item.
	Upstream map[domain.Stage]map[string]*domain.BuildArtifact
}

// Artifact returns the artifact stage produced for item.
func (in *StageInput) Artifact(stage domain.Stage, item string) (*domain.BuildArtifact, bool) {
	a, ok := in.Upstream[stage][item]
	return a, ok
}

// StageOutput is what one stage produced.
type StageOutput struct {
	Artifacts map[string]*domain.BuildArtifact
	Items     int
	CacheHits int
	// Files lists the paths written, relative to the project root.
	Files []string
}

func newStageOutput() *StageOutput {
	return &StageOutput{Artifacts: make(map[string]*domain.BuildArtifact)}
}

// env is what every stage shares with the builder.
type env struct {
	root        string
	workers     int
	hasher      ports.Hasher
	transformer ports.Transformer
	cache       *cache.Cache
	plugins     *plugin.Runtime
	events      *report.Collector
}

// collector gathers the artifacts of concurrently running items.
type collector struct {
	mu  sync.Mutex
	out *StageOutput
}

func (c *collector) add(item string, a *domain.BuildArtifact, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.Artifacts[item] = a
	if hit {
		c.out.CacheHits++
	}
}

// each runs fn for every item on the worker pool and joins the failures.
// Every item runs even when another fails.
func (e *env) each(ctx context.Context, items []string, fn func(ctx context.Context, item string) error) error {
	jobs := make([]scheduler.Job, 0, len(items))
	for _, item := range items {
		jobs = append(jobs, scheduler.Job{
			ID:  domain.NewInternedString(item),
			Run: func(ctx context.Context) error { return fn(ctx, item) },
		})
	}
	return scheduler.NewScheduler().Run(ctx, jobs, e.workers)
}

// produce returns the artifact for item under the canonical hash of input,
// from the cache when possible. Outputs of producers that are excluded from
// caching, and every output of a no-cache run, bypass the cache.
func (e *env) produce(
	ctx context.Context,
	in *StageInput,
	stage domain.Stage,
	item string,
	input any,
	cacheable bool,
	compute cache.Computation,
) (*domain.BuildArtifact, bool, error) {
	hash, err := e.hasher.CanonicalHash(input)
	if err != nil {
		return nil, false, zerr.With(zerr.With(zerr.Wrap(err, domain.ErrHashFailed.Error()), "stage", string(stage)), "item", item)
	}
	key := cache.Key{ModuleID: item, Stage: stage, Hash: hash}
	if in.NoCache || !cacheable {
		a, err := e.cache.Bypass(ctx, key, compute)
		return a, false, err
	}
	return e.cache.GetOrCompute(ctx, key, compute)
}

// fail records an item failure and passes the error on.
func (e *env) fail(stage domain.Stage, decision, item string, err error) error {
	if !isFatal(err) {
		e.events.Emit(domain.Event{
			Stage:    string(stage),
			Decision: decision,
			Reason:   err.Error(),
			Level:    domain.LogLevelWarn,
			Data:     map[string]any{"item": item},
		})
	}
	return err
}

// isFatal reports whether err must abort the whole build rather than the
// target it happened in.
func isFatal(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
