package pipeline

import (
	"context"
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
)

type optimizeInput struct {
	Stage   domain.Stage `json:"stage"`
	Chunk   string       `json:"chunk"`
	Target  string       `json:"target"`
	Bundle  string       `json:"bundle"`
	Minify  bool         `json:"minify"`
	Plugins []string     `json:"plugins"`
}

type optimizeStage struct {
	*env
}

func (s *optimizeStage) Name() domain.Stage { return domain.StageOptimize }

// Run passes every bundled chunk through the render-chunk plugins and, when
// the target asks for it, the minifier.
func (s *optimizeStage) Run(ctx context.Context, in *StageInput) (*StageOutput, error) {
	bundles := in.Upstream[domain.StageBundle]
	modules := make(map[string][]string, len(in.Chunks))
	items := make([]string, 0, len(bundles))
	for _, c := range in.Chunks {
		if _, ok := bundles[c.Name]; !ok {
			continue
		}
		items = append(items, c.Name)
		for _, id := range c.Modules {
			m, _ := in.Graph.Module(id)
			modules[c.Name] = append(modules[c.Name], relID(s.root, m))
		}
	}
	slices.Sort(items)

	out := newStageOutput()
	out.Items = len(items)
	col := &collector{out: out}
	cacheable := s.plugins.Cacheable(domain.HookRenderChunk)
	plugins := s.plugins.Fingerprint(domain.HookRenderChunk)

	err := s.each(ctx, items, func(ctx context.Context, item string) error {
		bundle := bundles[item]
		input := optimizeInput{
			Stage:   domain.StageOptimize,
			Chunk:   item,
			Target:  in.Target.Name,
			Bundle:  bundle.OutputHash,
			Minify:  in.Target.Minify,
			Plugins: plugins,
		}
		a, hit, err := s.produce(ctx, in, domain.StageOptimize, item, input, cacheable, func(ctx context.Context) (domain.Output, bool, error) {
			res, ok, err := s.plugins.RenderChunk(ctx, domain.RenderChunkInput{
				Chunk:   item,
				Code:    string(bundle.Output.Code),
				Target:  in.Target.Name,
				Modules: modules[item],
			})
			if err != nil {
				return domain.Output{}, false, err
			}
			code := res.Code
			if in.Target.Minify {
				code = s.minifyOrKeep(domain.StageOptimize, item, mediaJS, code)
			}
			return domain.Output{Code: []byte(code)}, ok, nil
		})
		if err != nil {
			return s.fail(domain.StageOptimize, domain.DecisionTargetFailed, item, err)
		}
		col.add(item, a, hit)
		return nil
	})
	return out, err
}
