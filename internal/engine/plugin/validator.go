package plugin

import (
	"context"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Sample returns the synthetic input hook is validated with.
func Sample(hook domain.HookName) domain.HookInput {
	switch hook {
	case domain.HookResolveID:
		return domain.ResolveIDInput{
			Specifier:  "./sample",
			Importer:   "/kiln/sample/index.js",
			Conditions: []string{"browser", "import", "default"},
		}
	case domain.HookLoad:
		return domain.LoadInput{Path: "/kiln/sample/index.js"}
	case domain.HookTransform:
		return domain.TransformInput{
			Path:   "/kiln/sample/index.js",
			Code:   "export const answer = 42;\nexport default function main() { return answer; }\n",
			Target: "client",
		}
	case domain.HookRenderChunk:
		return domain.RenderChunkInput{
			Chunk:   "index",
			Code:    "(function () {\n  var answer = 42;\n})();\n",
			Target:  "client",
			Modules: []string{"/kiln/sample/index.js"},
		}
	case domain.HookAnalyze:
		return domain.AnalyzeInput{
			Target:  "client",
			Outputs: map[string]int{"index.js": 42},
			Modules: []string{"/kiln/sample/index.js"},
		}
	default:
		return nil
	}
}

// Validator checks every hook of every registered plugin for determinism by
// invoking it twice on an identical input and comparing canonical hashes.
type Validator struct {
	runtime *Runtime
	hasher  ports.Hasher
	events  ports.EventSink

	mu      sync.Mutex
	results []domain.DeterminismResult
}

// NewValidator creates a Validator over runtime.
func NewValidator(runtime *Runtime, hasher ports.Hasher, events ports.EventSink) *Validator {
	return &Validator{runtime: runtime, hasher: hasher, events: events}
}

// ValidateAll validates every declared hook. samples overrides the synthetic
// input per hook. Plugins failing any hook are excluded from caching.
func (v *Validator) ValidateAll(ctx context.Context, samples map[domain.HookName]domain.HookInput) ([]domain.DeterminismResult, error) {
	var results []domain.DeterminismResult
	for _, rec := range v.runtime.Plugins() {
		for _, hook := range rec.Manifest.Hooks {
			input, ok := samples[hook]
			if !ok {
				input = Sample(hook)
			}
			res := v.Validate(ctx, rec, hook, input)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results = append(results, res)
		}
	}

	v.mu.Lock()
	v.results = results
	v.mu.Unlock()
	return results, nil
}

// Validate runs one determinism check. A hook that cannot be run at all is
// reported with Error set and treated as non-deterministic.
func (v *Validator) Validate(ctx context.Context, rec domain.PluginRecord, hook domain.HookName, input domain.HookInput) domain.DeterminismResult {
	res := domain.DeterminismResult{
		PluginID:   rec.ID,
		PluginName: rec.Manifest.Name,
		Hook:       hook,
	}

	first, err := v.digest(ctx, rec.ID, hook, input)
	if err == nil {
		var second string
		second, err = v.digest(ctx, rec.ID, hook, input)
		if err == nil {
			res.PassesDeterminism = first == second
		}
	}
	if err != nil {
		res.Error = err.Error()
	}
	if !res.PassesDeterminism {
		res.MutationScore = 1
		v.runtime.Exclude(rec.ID)
	}
	v.report(res)
	return res
}

// Results returns the outcome of the last ValidateAll.
func (v *Validator) Results() []domain.DeterminismResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.DeterminismResult, len(v.results))
	copy(out, v.results)
	return out
}

// Cacheable reports whether outputs produced through hook may be cached.
func (v *Validator) Cacheable(hook domain.HookName) bool {
	return v.runtime.Cacheable(hook)
}

func (v *Validator) digest(ctx context.Context, id string, hook domain.HookName, input domain.HookInput) (string, error) {
	out, err := v.runtime.RunHook(ctx, id, hook, input)
	if err != nil {
		return "", err
	}
	h, err := v.hasher.CanonicalHash(out)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrHashFailed.Error()), "hook", string(hook))
	}
	return h, nil
}

func (v *Validator) report(res domain.DeterminismResult) {
	if v.events == nil {
		return
	}
	level := domain.LogLevelInfo
	reason := "deterministic"
	if !res.PassesDeterminism {
		level = domain.LogLevelWarn
		reason = domain.ErrPluginNonDeterministic.Error()
	}
	if res.Error != "" {
		reason = res.Error
	}
	v.events.Emit(domain.Event{
		Stage:    stage,
		Decision: domain.DecisionPluginValidated,
		Reason:   reason,
		Level:    level,
		Data: map[string]any{
			"plugin":            res.PluginName,
			"hook":              string(res.Hook),
			"passesDeterminism": res.PassesDeterminism,
			"mutationScore":     res.MutationScore,
		},
	})
}
