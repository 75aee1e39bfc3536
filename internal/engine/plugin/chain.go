package plugin

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// ResolveID asks each resolve-identifier plugin in order; the first non-empty
// path wins. Failing plugins are reported and skipped.
func (r *Runtime) ResolveID(ctx context.Context, in domain.ResolveIDInput) (domain.ResolveIDOutput, bool) {
	for _, e := range r.implementing(domain.HookResolveID) {
		out, err := r.invoke(ctx, e, domain.HookResolveID, in)
		if err != nil {
			if !r.failure(ctx, e.record.Manifest, domain.HookResolveID, err) {
				return domain.ResolveIDOutput{}, false
			}
			continue
		}
		if res, ok := out.(domain.ResolveIDOutput); ok && res.Path != "" {
			return res, true
		}
	}
	return domain.ResolveIDOutput{}, false
}

// Load asks each load-content plugin in order; the first handled result wins.
func (r *Runtime) Load(ctx context.Context, in domain.LoadInput) (domain.LoadOutput, bool) {
	for _, e := range r.implementing(domain.HookLoad) {
		out, err := r.invoke(ctx, e, domain.HookLoad, in)
		if err != nil {
			if !r.failure(ctx, e.record.Manifest, domain.HookLoad, err) {
				return domain.LoadOutput{}, false
			}
			continue
		}
		if res, ok := out.(domain.LoadOutput); ok && res.Handled {
			return res, true
		}
	}
	return domain.LoadOutput{}, false
}

// Transform pipes the module through every transform-content plugin. The
// result is cacheable only when every plugin succeeded and none is excluded.
func (r *Runtime) Transform(ctx context.Context, in domain.TransformInput) (domain.TransformOutput, bool, error) {
	cacheable := true
	code := in.Code
	for _, e := range r.implementing(domain.HookTransform) {
		step := in
		step.Code = code
		out, err := r.invoke(ctx, e, domain.HookTransform, step)
		if err != nil {
			if !r.failure(ctx, e.record.Manifest, domain.HookTransform, err) {
				return domain.TransformOutput{}, false, ctx.Err()
			}
			cacheable = false
			continue
		}
		code = out.(domain.TransformOutput).Code
		if r.isExcluded(e.record.ID) {
			cacheable = false
		}
	}
	return domain.TransformOutput{Code: code}, cacheable, nil
}

// RenderChunk pipes a chunk through every render-chunk plugin with the same
// cacheability rule as Transform.
func (r *Runtime) RenderChunk(ctx context.Context, in domain.RenderChunkInput) (domain.RenderChunkOutput, bool, error) {
	cacheable := true
	code := in.Code
	for _, e := range r.implementing(domain.HookRenderChunk) {
		step := in
		step.Code = code
		out, err := r.invoke(ctx, e, domain.HookRenderChunk, step)
		if err != nil {
			if !r.failure(ctx, e.record.Manifest, domain.HookRenderChunk, err) {
				return domain.RenderChunkOutput{}, false, ctx.Err()
			}
			cacheable = false
			continue
		}
		code = out.(domain.RenderChunkOutput).Code
		if r.isExcluded(e.record.ID) {
			cacheable = false
		}
	}
	return domain.RenderChunkOutput{Code: code}, cacheable, nil
}

// Analyze runs every analyze-build plugin and collects their warnings,
// each prefixed with the plugin name.
func (r *Runtime) Analyze(ctx context.Context, in domain.AnalyzeInput) []string {
	var warnings []string
	for _, e := range r.implementing(domain.HookAnalyze) {
		out, err := r.invoke(ctx, e, domain.HookAnalyze, in)
		if err != nil {
			if !r.failure(ctx, e.record.Manifest, domain.HookAnalyze, err) {
				return warnings
			}
			continue
		}
		for _, w := range out.(domain.AnalyzeOutput).Warnings {
			warnings = append(warnings, e.record.Manifest.Name+": "+w)
		}
	}
	return warnings
}

func (r *Runtime) isExcluded(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.excluded[id]
}
