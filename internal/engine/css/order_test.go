package css_test

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/css"
)

func edge(from, to, layer string, specificity, order int) domain.GraphEdge {
	return domain.GraphEdge{
		From: domain.NewInternedString(from),
		To:   domain.NewInternedString(to),
		Kind: domain.EdgeCSSImport,
		CSS: &domain.CSSEdgeMeta{
			Specificity:  specificity,
			SourceOrder:  order,
			CascadeLayer: layer,
		},
	}
}

func targets(edges []domain.GraphEdge) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.To.String())
	}
	return out
}

func TestOrder_LayerRankDominatesSpecificity(t *testing.T) {
	base := edge("/src/main.js", "base.css", "base", 0, 1)
	button := edge("/src/main.js", "button.css", "components", 10, 2)
	utilities := edge("/src/main.js", "utilities.css", "utilities", 0, 3)
	want := []string{"base.css", "button.css", "utilities.css"}

	permutations := [][]domain.GraphEdge{
		{base, button, utilities},
		{utilities, button, base},
		{button, utilities, base},
		{utilities, base, button},
	}
	for _, edges := range permutations {
		got := css.Order(edges, domain.LayerPolicy{Order: []string{"base", "components", "utilities"}})
		assert.Equal(t, want, targets(got))

		declared := css.Order(edges, domain.LayerPolicy{})
		assert.Equal(t, want, targets(declared))
	}
}

func TestOrder_Unlayered(t *testing.T) {
	edges := []domain.GraphEdge{
		edge("/a.js", "plain.css", "", 0, 1),
		edge("/a.js", "reset.css", "reset", 50, 2),
	}

	last := css.Order(edges, domain.LayerPolicy{Unlayered: domain.UnlayeredLast})
	assert.Equal(t, []string{"reset.css", "plain.css"}, targets(last))

	first := css.Order(edges, domain.LayerPolicy{Unlayered: domain.UnlayeredFirst})
	assert.Equal(t, []string{"plain.css", "reset.css"}, targets(first))
}

func TestOrder_TieBreaks(t *testing.T) {
	edges := []domain.GraphEdge{
		edge("/a.js", "late.css", "", 5, 9),
		edge("/a.js", "loud.css", "", 20, 1),
		edge("/a.js", "early.css", "", 5, 2),
		{From: domain.NewInternedString("/a.js"), To: domain.NewInternedString("/b.js"), Kind: domain.EdgeImport},
	}

	got := css.Order(edges, domain.LayerPolicy{})
	assert.Equal(t, []string{"early.css", "late.css", "loud.css"}, targets(got))
}

func TestOrder_UnlistedLayersFollowListedOnes(t *testing.T) {
	edges := []domain.GraphEdge{
		edge("/a.js", "z.css", "zeta", 0, 1),
		edge("/a.js", "y.css", "alpha", 0, 2),
		edge("/a.js", "x.css", "base", 0, 3),
	}

	got := css.Order(edges, domain.LayerPolicy{Order: []string{"base"}})
	assert.Equal(t, []string{"x.css", "y.css", "z.css"}, targets(got))
}

func TestDeclaredOrder(t *testing.T) {
	edges := []domain.GraphEdge{
		edge("/a.js", "theme.css", "theme", 0, 2),
		edge("/a.js", "layers.css", "", 0, 1),
	}
	declared := func(id domain.InternedString) []string {
		if id.String() == "layers.css" {
			return []string{"reset", "theme", "components"}
		}
		return nil
	}

	assert.Equal(t, []string{"reset", "theme", "components"}, css.DeclaredOrder(edges, declared))
	assert.Equal(t, []string{"theme"}, css.DeclaredOrder(edges, nil))
}

func TestStylesheets_FirstPositionWins(t *testing.T) {
	ordered := []domain.GraphEdge{
		edge("/a.js", "a.css", "", 0, 1),
		edge("/b.js", "b.css", "", 0, 2),
		edge("/c.js", "a.css", "", 0, 3),
	}
	got := css.Stylesheets(ordered)
	assert.Equal(t, []string{"a.css", "b.css"}, []string{got[0].String(), got[1].String()})
	assert.Len(t, got, 2)
}

func TestOrderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4321)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	layers := []string{"", "base", "components", "utilities"}

	build := func(layerIdx, specificity, order []int) []domain.GraphEdge {
		n := min(len(layerIdx), len(specificity), len(order))
		edges := make([]domain.GraphEdge, 0, n)
		for i := range n {
			edges = append(edges, edge("/src/main.js", fmt.Sprintf("/src/%d.css", i), layers[layerIdx[i]], specificity[i], order[i]))
		}
		return edges
	}

	properties.Property("input order never changes the output", prop.ForAll(
		func(layerIdx, specificity, order []int, seed int64) bool {
			edges := build(layerIdx, specificity, order)
			shuffled := slices.Clone(edges)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			for _, policy := range []domain.LayerPolicy{
				{Unlayered: domain.UnlayeredLast},
				{Unlayered: domain.UnlayeredFirst},
				{Order: []string{"utilities", "base"}},
			} {
				if !slices.Equal(targets(css.Order(edges, policy)), targets(css.Order(shuffled, policy))) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(layers)-1)),
		gen.SliceOf(gen.IntRange(0, 200)),
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.Int64(),
	))

	properties.Property("layer rank is monotone in the output", prop.ForAll(
		func(layerIdx, specificity, order []int) bool {
			policy := domain.LayerPolicy{Order: []string{"base", "components", "utilities"}}
			rank := map[string]int{"base": 0, "components": 1, "utilities": 2, "": 3}
			got := css.Order(build(layerIdx, specificity, order), policy)
			for i := 1; i < len(got); i++ {
				if rank[got[i-1].CSS.CascadeLayer] > rank[got[i].CSS.CascadeLayer] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(layers)-1)),
		gen.SliceOf(gen.IntRange(0, 200)),
		gen.SliceOf(gen.IntRange(0, 20)),
	))

	properties.TestingRun(t)
}
