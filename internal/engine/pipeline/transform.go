package pipeline

import (
	"context"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// recordFormat is the version of the record layout transform artifacts are
// written in. Changing the layout must change it.
const recordFormat = "kiln-registry/1"

// targetInput is the part of a target every stage output depends on.
type targetInput struct {
	Name       string              `json:"name"`
	Platform   domain.Platform     `json:"platform"`
	Format     domain.ModuleFormat `json:"format"`
	Conditions []string            `json:"conditions"`
	Define     map[string]string   `json:"define,omitempty"`
}

func targetOf(t domain.Target) targetInput {
	return targetInput{
		Name:       t.Name,
		Platform:   t.Platform,
		Format:     t.Format,
		Conditions: t.Conditions,
		Define:     t.Define,
	}
}

// transformInput is everything a transformed module depends on: its own
// content and format, the target, the transform plugins, and the surface
// of every module it imports.
type transformInput struct {
	Stage   domain.Stage        `json:"stage"`
	Format  string              `json:"recordFormat"`
	Module  string              `json:"module"`
	Kind    domain.ModuleKind   `json:"kind"`
	Source  domain.ModuleFormat `json:"source"`
	Content string              `json:"content"`
	Target  targetInput         `json:"target"`
	Plugins []string            `json:"plugins"`
	Links   []linkSurface       `json:"links"`
}

type transformStage struct {
	*env
}

func (s *transformStage) Name() domain.Stage { return domain.StageTransform }

// Run transforms every script and data module of the target's chunks.
func (s *transformStage) Run(ctx context.Context, in *StageInput) (*StageOutput, error) {
	var ids []domain.InternedString
	seen := make(map[domain.InternedString]bool)
	for _, c := range in.Chunks {
		for _, id := range c.Modules {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	items := make([]string, 0, len(ids))
	byItem := make(map[string]*domain.ModuleNode, len(ids))
	for _, id := range domain.SortIDs(ids) {
		m, _ := in.Graph.Module(id)
		item := relID(s.root, m)
		items = append(items, item)
		byItem[item] = m
	}

	out := newStageOutput()
	out.Items = len(items)
	col := &collector{out: out}
	cacheable := s.plugins.Cacheable(domain.HookTransform)
	plugins := s.plugins.Fingerprint(domain.HookTransform)

	err := s.each(ctx, items, func(ctx context.Context, item string) error {
		m := byItem[item]
		links, err := s.surfaces(in, m)
		if err != nil {
			return s.fail(domain.StageTransform, domain.DecisionResolveFailed, item, err)
		}
		input := transformInput{
			Stage:   domain.StageTransform,
			Format:  recordFormat,
			Module:  item,
			Kind:    m.Kind,
			Source:  m.Format,
			Content: string(m.Content),
			Target:  targetOf(in.Target),
			Plugins: plugins,
			Links:   links,
		}
		a, hit, err := s.produce(ctx, in, domain.StageTransform, item, input, cacheable, func(ctx context.Context) (domain.Output, bool, error) {
			return s.compile(ctx, in, m, item, links)
		})
		if err != nil {
			return s.fail(domain.StageTransform, domain.DecisionTransformFailed, item, err)
		}
		col.add(item, a, hit)
		return nil
	})
	return out, err
}

// surfaces returns the link surfaces of m in import order. An import that
// did not resolve fails the module.
func (s *transformStage) surfaces(in *StageInput, m *domain.ModuleNode) ([]linkSurface, error) {
	edges := m.Dependencies()
	for _, ref := range m.Imports {
		if !slices.ContainsFunc(edges, func(e domain.GraphEdge) bool { return e.Ref.Specifier == ref.Specifier }) {
			return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrResolveFailed, ref.Specifier), "module", m.Path), "specifier", ref.Specifier)
		}
	}
	out := make([]linkSurface, 0, len(edges))
	for _, e := range edges {
		dep, ok := in.Graph.Module(e.To)
		if !ok {
			continue
		}
		out = append(out, surfaceOf(s.root, e, m, dep, in.Exports[e.To]))
	}
	return out, nil
}

// compile turns one module into a registry record.
func (s *transformStage) compile(ctx context.Context, in *StageInput, m *domain.ModuleNode, item string, links []linkSurface) (domain.Output, bool, error) {
	cacheable := true
	var code string
	switch {
	case m.Kind == domain.KindData || m.Format == domain.FormatJSON:
		code = "module.exports = " + strings.TrimSpace(string(m.Content)) + ";\n"
	case m.Format == domain.FormatUnknown:
		return domain.Output{}, false, zerr.With(zerr.Wrap(domain.ErrTransformFailed, "module format is unknown"), "module", item)
	default:
		compiled, err := s.transformer.Transform(ctx, m.Content, m.Path, in.Target)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Output{}, false, ctx.Err()
			}
			return domain.Output{}, false, zerr.With(zerr.Wrap(domain.ErrTransformFailed, err.Error()), "module", item)
		}
		res, ok, err := s.plugins.Transform(ctx, domain.TransformInput{
			Path:   item,
			Code:   string(compiled),
			Target: in.Target.Name,
		})
		if err != nil {
			return domain.Output{}, false, err
		}
		code, cacheable = res.Code, ok
	}

	var b strings.Builder
	writeRecord(&b, item, linksOf(links), code)
	return domain.Output{Code: []byte(b.String())}, cacheable, nil
}
