package pipeline

import (
	"context"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/css"
)

const anonymousLayerPrefix = "@anonymous:"

type sheetInput struct {
	Module string `json:"module"`
	// Wrap is the layer the importing statement puts the sheet in.
	Wrap    string `json:"wrap,omitempty"`
	Content string `json:"content"`
}

type cssInput struct {
	Stage  domain.Stage `json:"stage"`
	Chunk  string       `json:"chunk"`
	Layers []string     `json:"layers"`
	Sheets []sheetInput `json:"sheets"`
	Minify bool         `json:"minify"`
}

type cssStage struct {
	*env
	policy domain.LayerPolicy
}

func (s *cssStage) Name() domain.Stage { return domain.StageCSSOptimize }

// Run orders the stylesheets every chunk reaches by cascade precedence and
// concatenates them into one stylesheet per chunk, minified when the target
// asks for it.
func (s *cssStage) Run(ctx context.Context, in *StageInput) (*StageOutput, error) {
	chunks := make(map[string]Chunk, len(in.Chunks))
	items := make([]string, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		if len(c.Styles) == 0 {
			continue
		}
		chunks[c.Name] = c
		items = append(items, c.Name)
	}
	slices.Sort(items)

	out := newStageOutput()
	out.Items = len(items)
	col := &collector{out: out}

	err := s.each(ctx, items, func(ctx context.Context, item string) error {
		input := s.input(in, chunks[item])
		s.events.Emit(domain.Event{
			Stage:    string(domain.StageCSSOptimize),
			Decision: domain.DecisionCSSOrdered,
			Reason:   "stylesheets ordered by cascade precedence",
			Level:    domain.LogLevelInfo,
			Data:     map[string]any{"chunk": item, "sheets": sheetNames(input.Sheets), "layers": input.Layers},
		})
		a, hit, err := s.produce(ctx, in, domain.StageCSSOptimize, item, input, true, func(context.Context) (domain.Output, bool, error) {
			code := concat(input)
			if input.Minify {
				code = s.minifyOrKeep(domain.StageCSSOptimize, item, mediaCSS, code)
			}
			return domain.Output{Code: []byte(code)}, true, nil
		})
		if err != nil {
			return s.fail(domain.StageCSSOptimize, domain.DecisionTargetFailed, item, err)
		}
		col.add(item, a, hit)
		return nil
	})
	return out, err
}

// input orders the chunk's stylesheet edges. Edge metadata is refreshed
// from the current stylesheets and numbered in the chunk's own walk order.
func (s *cssStage) input(in *StageInput, c Chunk) cssInput {
	edges := make([]domain.GraphEdge, 0, len(c.Styles))
	for i, e := range c.Styles {
		meta := domain.CSSEdgeMeta{SourceOrder: i + 1, CascadeLayer: e.Ref.Layer}
		if m, ok := in.Graph.Module(e.To); ok && m.Style != nil {
			meta.Specificity = m.Style.Specificity
			if meta.CascadeLayer == "" {
				meta.CascadeLayer = m.Style.Layer
			}
		}
		e.CSS = &meta
		edges = append(edges, e)
	}

	policy := s.policy
	if len(policy.Order) == 0 {
		policy.Order = css.DeclaredOrder(edges, func(id domain.InternedString) []string {
			if m, ok := in.Graph.Module(id); ok && m.Style != nil {
				return m.Style.Layers
			}
			return nil
		})
	}
	ordered := css.Order(edges, policy)

	input := cssInput{
		Stage:  domain.StageCSSOptimize,
		Chunk:  c.Name,
		Layers: layerStatement(policy.Order, ordered),
		Sheets: make([]sheetInput, 0, len(ordered)),
		Minify: in.Target.Minify,
	}
	for _, id := range css.Stylesheets(ordered) {
		m, _ := in.Graph.Module(id)
		sheet := sheetInput{Module: relID(s.root, m), Content: css.StripImports(m.Content)}
		for _, e := range ordered {
			if e.To == id {
				sheet.Wrap = e.Ref.Layer
				break
			}
		}
		input.Sheets = append(input.Sheets, sheet)
	}
	return input
}

// layerStatement lists the named layers in rank order: the policy order,
// then the layers it misses by name.
func layerStatement(order []string, ordered []domain.GraphEdge) []string {
	names := slices.Clone(order)
	var extra []string
	for _, e := range ordered {
		if l := e.CSS.CascadeLayer; l != "" && !slices.Contains(names, l) {
			extra = append(extra, l)
		}
	}
	names = append(names, slices.Compact(slices.Sorted(slices.Values(extra)))...)
	return slices.DeleteFunc(names, func(l string) bool {
		return strings.HasPrefix(l, anonymousLayerPrefix) || strings.Contains(l, "."+anonymousLayerPrefix)
	})
}

// concat renders the ordered stylesheet.
func concat(input cssInput) string {
	var b strings.Builder
	if len(input.Layers) > 0 {
		b.WriteString("@layer " + strings.Join(input.Layers, ", ") + ";\n")
	}
	for _, sheet := range input.Sheets {
		body := strings.TrimSpace(sheet.Content)
		switch {
		case sheet.Wrap == "":
			b.WriteString(body)
		case strings.HasPrefix(sheet.Wrap, anonymousLayerPrefix):
			b.WriteString("@layer {\n" + body + "\n}")
		default:
			b.WriteString("@layer " + sheet.Wrap + " {\n" + body + "\n}")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func sheetNames(sheets []sheetInput) []string {
	out := make([]string, len(sheets))
	for i, s := range sheets {
		out[i] = s.Module
	}
	return out
}
