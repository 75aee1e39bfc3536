// Package pipeline runs the staged build of every target over the shared
// module graph and artifact cache, re-executing only what a change reaches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/cache"
	"go.trai.ch/kiln/internal/engine/graph"
	"go.trai.ch/kiln/internal/engine/plugin"
	"go.trai.ch/kiln/internal/engine/report"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Options are the collaborators of a Builder.
type Options struct {
	Config      domain.Config
	Entries     ports.EntryResolver
	Graphs      *graph.Builder
	Hasher      ports.Hasher
	Transformer ports.Transformer
	Tracer      ports.Tracer
	// Store persists artifacts across processes. It may be nil.
	Store   ports.ArtifactStore
	Logger  ports.Logger
	Verbose bool
}

// BuildRequest describes one run.
type BuildRequest struct {
	// Targets selects targets by name. Empty means every configured target.
	Targets []string
	// Changed is the change batch that triggered the run. An empty batch
	// re-reads the whole graph.
	Changed domain.ChangeBatch
	// NoCache runs every stage without consulting or filling the cache.
	NoCache bool
}

// view is the module graph of every target sharing one condition list.
type view struct {
	conditions []string
	graph      *domain.ModuleGraph
	entries    []string
	pending    domain.ChangeBatch
	resolved   bool
}

// Builder owns the state of one project root: its module graphs, the
// artifact cache, the plugin runtime and the event collector. One run is
// active at a time.
type Builder struct {
	cfg       domain.Config
	entries   ports.EntryResolver
	graphs    *graph.Builder
	tracer    ports.Tracer
	events    *report.Collector
	cache     *cache.Cache
	plugins   *plugin.Runtime
	validator *plugin.Validator
	stages    []Stage

	mu        sync.Mutex
	validated bool
	views     map[string]*view
}

// New creates a Builder.
func New(opts Options) *Builder {
	cfg := opts.Config.WithDefaults()
	events := report.NewCollector(opts.Logger, opts.Verbose)
	c := cache.New(opts.Hasher, opts.Store, events)
	runtime := plugin.NewRuntime(opts.Hasher, events, cfg.HookTimeout)

	e := &env{
		root:        cfg.Root,
		workers:     cfg.Workers,
		hasher:      opts.Hasher,
		transformer: opts.Transformer,
		cache:       c,
		plugins:     runtime,
		events:      events,
	}
	return &Builder{
		cfg:       cfg,
		entries:   opts.Entries,
		graphs:    opts.Graphs,
		tracer:    opts.Tracer,
		events:    events,
		cache:     c,
		plugins:   runtime,
		validator: plugin.NewValidator(runtime, opts.Hasher, events),
		stages: []Stage{
			&transformStage{env: e},
			&bundleStage{env: e},
			&optimizeStage{env: e},
			&cssStage{env: e, policy: cfg.CSS},
			&outputStage{env: e},
		},
		views: make(map[string]*view),
	}
}

// Config returns the configuration the builder runs with, defaults applied.
func (b *Builder) Config() domain.Config {
	return b.cfg
}

// Plugins returns the plugin runtime. Plugins are registered before the
// first build; they are validated once, on that build.
func (b *Builder) Plugins() *plugin.Runtime {
	return b.plugins
}

// Events returns the collector explain records are gathered in.
func (b *Builder) Events() *report.Collector {
	return b.events
}

// Cache returns the artifact cache shared by every target.
func (b *Builder) Cache() *cache.Cache {
	return b.cache
}

// Graph returns the module graph the named target was last built from.
func (b *Builder) Graph(target string) (*domain.ModuleGraph, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.cfg.Targets {
		if t.Name != target {
			continue
		}
		v, ok := b.views[viewKey(t)]
		if !ok || !v.resolved {
			return nil, false
		}
		return v.graph, true
	}
	return nil, false
}

// Build runs the pipeline of every requested target. Target failures are
// reported in the returned report; the error is reserved for failures that
// abort the whole run: a missing entry, an unusable artifact store or
// cancellation.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*domain.BuildReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	runID := uuid.NewString()
	targets, err := b.selectTargets(req.Targets)
	if err != nil {
		return nil, err
	}

	ctx, span := b.tracer.Start(ctx, "build", ports.WithAttribute("run_id", runID))
	defer span.End()
	b.tracer.EmitPlan(ctx, targetNames(targets), stageNames())
	b.cache.ResetStats()

	if err := b.validate(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	resolved, err := b.resolve(ctx, targets, req.Changed)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([]domain.TargetResult, len(targets))
	warnings := make([][]string, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			res, warn, err := b.runTarget(gctx, t, resolved, req.NoCache)
			results[i], warnings[i] = res, warn
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	stats := b.cache.Stats()
	var pruneWarning string
	if !req.NoCache && !slices.ContainsFunc(results, func(t domain.TargetResult) bool { return !t.Success }) {
		if _, err := b.cache.Prune(ctx, b.cfg.CacheMaxBytes); err != nil {
			pruneWarning = err.Error()
		}
	}
	r := report.Assemble(runID, results, stats.Hits, stats.Misses, b.events.Drain(), time.Since(start))
	report.WithDeterminism(r, b.validator.Results())
	r.Cycles = resolved.cycles
	r.DirtyModules = resolved.dirty
	for _, w := range warnings {
		r.Warnings = append(r.Warnings, w...)
	}
	if pruneWarning != "" {
		r.Warnings = append(r.Warnings, pruneWarning)
	}
	span.SetAttribute("hit_ratio", r.HitRatio)
	if !r.Success() {
		span.RecordError(domain.ErrBuildFailed)
	}
	return r, nil
}

func (b *Builder) selectTargets(names []string) ([]domain.Target, error) {
	if len(names) == 0 {
		return slices.Clone(b.cfg.Targets), nil
	}
	out := make([]domain.Target, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(b.cfg.Targets, func(t domain.Target) bool { return t.Name == name })
		if i < 0 {
			return nil, zerr.With(zerr.Wrap(domain.ErrUnknownTarget, name), "target", name)
		}
		out = append(out, b.cfg.Targets[i])
	}
	return out, nil
}

// validate checks every registered plugin for determinism once.
func (b *Builder) validate(ctx context.Context) error {
	if b.validated {
		return nil
	}
	if _, err := b.validator.ValidateAll(ctx, nil); err != nil {
		return err
	}
	b.validated = true
	return nil
}

// resolution is the outcome of the resolve stage of one run.
type resolution struct {
	views    map[string]*view
	duration time.Duration
	cycles   [][]string
	dirty    []string
}

// resolve brings the graph of every requested condition list up to date.
// Views no requested target uses keep the batch for their next run.
func (b *Builder) resolve(ctx context.Context, targets []domain.Target, batch domain.ChangeBatch) (*resolution, error) {
	start := time.Now()
	ctx, span := b.tracer.Start(ctx, string(domain.StageResolve))
	defer span.End()

	entries, err := b.entries.ResolveEntries(b.cfg.Entries, b.cfg.Root, b.cfg.GeneratedDirs())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, v := range b.views {
		v.pending = v.pending.Merge(batch)
	}

	res := &resolution{views: make(map[string]*view)}
	dirty := make(map[string]bool)
	cycles := make(map[string][]string)
	for _, t := range targets {
		key := viewKey(t)
		if _, done := res.views[key]; done {
			continue
		}
		v, ok := b.views[key]
		if !ok {
			v = &view{conditions: slices.Clone(t.Conditions), graph: domain.NewModuleGraph()}
			b.views[key] = v
		}

		req := graph.Request{Entries: entries, Conditions: v.conditions, Hooks: b.plugins}
		var out *graph.Result
		if !v.resolved || v.pending.Empty() || !slices.Equal(v.entries, entries) {
			out, err = b.graphs.Discover(ctx, v.graph, req)
		} else {
			out, err = b.graphs.Update(ctx, v.graph, req, v.pending)
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		v.resolved, v.entries, v.pending = true, entries, domain.ChangeBatch{}
		res.views[key] = v
		b.events.EmitAll(out.Events)

		closure := DirtyClosure(v.graph, out.Changed, out.Previous)
		for _, id := range closure {
			if m, ok := v.graph.Module(id); ok {
				dirty[relID(b.cfg.Root, m)] = true
			}
		}
		for _, cycle := range out.Cycles {
			path := make([]string, 0, len(cycle))
			for _, id := range cycle {
				m, _ := v.graph.Module(id)
				path = append(path, relID(b.cfg.Root, m))
			}
			cycles[strings.Join(path, "\x00")] = path
		}
		b.events.Emit(domain.Event{
			Stage:    string(domain.StageResolve),
			Decision: domain.DecisionDirtySetComputed,
			Reason:   "dirty set computed",
			Level:    domain.LogLevelInfo,
			Data: map[string]any{
				"conditions": strings.Join(v.conditions, ","),
				"changed":    len(out.Changed),
				"dirty":      len(closure),
				"modules":    v.graph.ModuleCount(),
			},
		})
	}

	res.dirty = sortedKeys(dirty)
	for _, k := range sortedKeys(cycles) {
		res.cycles = append(res.cycles, cycles[k])
	}
	res.duration = time.Since(start)
	span.SetAttribute("dirty", len(res.dirty))
	return res, nil
}

// runTarget runs the stages of one target. Only fatal failures are
// returned; anything else fails the target alone.
func (b *Builder) runTarget(ctx context.Context, t domain.Target, resolved *resolution, noCache bool) (domain.TargetResult, []string, error) {
	ctx, span := b.tracer.Start(ctx, "target", ports.WithAttribute("target", t.Name))
	defer span.End()

	v := resolved.views[viewKey(t)]
	result := domain.TargetResult{
		Name:    t.Name,
		Outputs: []string{},
		Stages: []domain.StageResult{{
			Stage:    domain.StageResolve,
			Status:   domain.StageStatusCompleted,
			Items:    v.graph.ModuleCount(),
			Duration: resolved.duration,
		}},
	}
	in := &StageInput{
		Root:     b.cfg.Root,
		Target:   t,
		Graph:    v.graph,
		Exports:  IndexExports(v.graph),
		Chunks:   PlanChunks(v.graph),
		NoCache:  noCache,
		Upstream: make(map[domain.Stage]map[string]*domain.BuildArtifact, len(b.stages)),
	}

	for i, st := range b.stages {
		stageCtx, stageSpan := b.tracer.Start(ctx, string(st.Name()), ports.WithAttribute("target", t.Name))
		start := time.Now()
		out, err := st.Run(stageCtx, in)
		if out == nil {
			out = newStageOutput()
		}
		sr := domain.StageResult{
			Stage:     st.Name(),
			Status:    stageStatus(out, err),
			Items:     out.Items,
			CacheHits: out.CacheHits,
			Duration:  time.Since(start),
		}
		result.Stages = append(result.Stages, sr)
		stageSpan.SetAttribute("items", out.Items)
		stageSpan.SetAttribute("cache_hits", out.CacheHits)
		if err != nil {
			stageSpan.RecordError(err)
		}
		stageSpan.End()

		if err != nil {
			if fatal := firstFatal(err); fatal != nil || ctx.Err() != nil {
				if fatal == nil {
					fatal = ctx.Err()
				}
				return result, nil, fatal
			}
			for _, rest := range b.stages[i+1:] {
				result.Stages = append(result.Stages, domain.StageResult{Stage: rest.Name(), Status: domain.StageStatusSkipped})
			}
			result.Error = zerr.Wrap(err, string(st.Name())).Error()
			span.RecordError(err)
			b.events.Emit(domain.Event{
				Stage:    string(st.Name()),
				Decision: domain.DecisionTargetFailed,
				Reason:   domain.ErrTargetFailed.Error(),
				Level:    domain.LogLevelError,
				Data:     map[string]any{"target": t.Name, "error": err.Error()},
			})
			return result, nil, nil
		}
		in.Upstream[st.Name()] = out.Artifacts
		result.Outputs = append(result.Outputs, out.Files...)
	}

	warnings := b.analyze(ctx, in, result.Outputs)
	for _, w := range warnings {
		_, _ = fmt.Fprintln(span, w)
	}
	result.Success = true
	return result, warnings, nil
}

// analyze runs the analyze-build hooks over the finished target.
func (b *Builder) analyze(ctx context.Context, in *StageInput, outputs []string) []string {
	if b.plugins.Len() == 0 {
		return nil
	}
	sizes := make(map[string]int, len(outputs))
	for _, chunk := range in.Chunks {
		if a, ok := in.Artifact(domain.StageOptimize, chunk.Name); ok {
			sizes[chunk.Name+".js"] = a.Output.Size()
		}
		if a, ok := in.Artifact(domain.StageCSSOptimize, chunk.Name); ok {
			sizes[chunk.Name+".css"] = a.Output.Size()
		}
	}
	modules := make([]string, 0, in.Graph.ModuleCount())
	for m := range in.Graph.Walk() {
		modules = append(modules, relID(b.cfg.Root, m))
	}
	slices.Sort(modules)

	warnings := b.plugins.Analyze(ctx, domain.AnalyzeInput{
		Target:  in.Target.Name,
		Outputs: sizes,
		Modules: modules,
	})
	for _, w := range warnings {
		b.events.Emit(domain.Event{
			Stage:    string(domain.StageOutput),
			Decision: domain.DecisionAnalyzeWarning,
			Reason:   w,
			Level:    domain.LogLevelWarn,
			Data:     map[string]any{"target": in.Target.Name},
		})
	}
	return warnings
}

func stageStatus(out *StageOutput, err error) domain.StageStatus {
	switch {
	case err != nil:
		return domain.StageStatusFailed
	case out.Items == 0:
		return domain.StageStatusSkipped
	case out.CacheHits == out.Items:
		return domain.StageStatusCached
	default:
		return domain.StageStatusCompleted
	}
}

// firstFatal returns the fatal error joined into err, if any.
func firstFatal(err error) error {
	if !isFatal(err) {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			if isFatal(e) {
				return e
			}
		}
	}
	return err
}

func viewKey(t domain.Target) string {
	return strings.Join(t.Conditions, "\x00")
}

func targetNames(targets []domain.Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.Name
	}
	return out
}

func stageNames() []string {
	out := make([]string, len(domain.Stages))
	for i, s := range domain.Stages {
		out[i] = string(s)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
