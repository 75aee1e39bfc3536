// Package css orders stylesheet edges by cascade precedence and scans
// stylesheets for the inputs of that ordering.
package css

import (
	"cmp"
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
)

// Order returns the css-import edges of edges in emission order. The order
// is a pure function of the edge set: layer rank first, then specificity,
// then source order, with the edge endpoints as a last resort so that no two
// distinct edges ever compare equal.
//
// When policy.Order is empty, layers rank in the order DeclaredOrder finds
// them. Layers missing from an explicit order rank after the listed ones,
// by name. Unlayered edges rank according to policy.Unlayered.
func Order(edges []domain.GraphEdge, policy domain.LayerPolicy) []domain.GraphEdge {
	out := make([]domain.GraphEdge, 0, len(edges))
	for _, e := range edges {
		if e.Kind == domain.EdgeCSSImport && e.CSS != nil {
			out = append(out, e)
		}
	}

	order := policy.Order
	if len(order) == 0 {
		order = DeclaredOrder(out, nil)
	}
	r := newRanking(order, out, policy.Unlayered)

	slices.SortStableFunc(out, func(a, b domain.GraphEdge) int {
		return cmp.Or(
			cmp.Compare(r.rank(a.CSS.CascadeLayer), r.rank(b.CSS.CascadeLayer)),
			cmp.Compare(a.CSS.Specificity, b.CSS.Specificity),
			cmp.Compare(a.CSS.SourceOrder, b.CSS.SourceOrder),
			cmp.Compare(a.To.String(), b.To.String()),
			cmp.Compare(a.From.String(), b.From.String()),
		)
	})
	return out
}

// Stylesheets returns the distinct targets of ordered edges, keeping the
// first position of each.
func Stylesheets(ordered []domain.GraphEdge) []domain.InternedString {
	seen := make(map[domain.InternedString]bool, len(ordered))
	out := make([]domain.InternedString, 0, len(ordered))
	for _, e := range ordered {
		if seen[e.To] {
			continue
		}
		seen[e.To] = true
		out = append(out, e.To)
	}
	return out
}

// DeclaredOrder lists layers in the order they are first declared: edges
// are visited by source order and each contributes its own layer after the
// layers its stylesheet declares. declared may be nil.
func DeclaredOrder(edges []domain.GraphEdge, declared func(domain.InternedString) []string) []string {
	visit := slices.Clone(edges)
	slices.SortFunc(visit, func(a, b domain.GraphEdge) int {
		return cmp.Or(
			cmp.Compare(sourceOrder(a), sourceOrder(b)),
			cmp.Compare(a.To.String(), b.To.String()),
			cmp.Compare(a.From.String(), b.From.String()),
		)
	})

	var order []string
	seen := make(map[string]bool)
	add := func(layer string) {
		if layer == "" || seen[layer] {
			return
		}
		seen[layer] = true
		order = append(order, layer)
	}
	for _, e := range visit {
		if declared != nil {
			for _, l := range declared(e.To) {
				add(l)
			}
		}
		if e.CSS != nil {
			add(e.CSS.CascadeLayer)
		}
	}
	return order
}

func sourceOrder(e domain.GraphEdge) int {
	if e.CSS == nil {
		return 0
	}
	return e.CSS.SourceOrder
}

type ranking struct {
	ranks     map[string]int
	unlayered int
}

func newRanking(order []string, edges []domain.GraphEdge, placement domain.UnlayeredPlacement) ranking {
	r := ranking{ranks: make(map[string]int, len(order))}
	for _, l := range order {
		if _, ok := r.ranks[l]; !ok {
			r.ranks[l] = len(r.ranks)
		}
	}

	var extra []string
	for _, e := range edges {
		l := e.CSS.CascadeLayer
		if _, ok := r.ranks[l]; !ok && l != "" {
			extra = append(extra, l)
		}
	}
	for _, l := range slices.Compact(slices.Sorted(slices.Values(extra))) {
		r.ranks[l] = len(r.ranks)
	}

	if placement == domain.UnlayeredFirst {
		r.unlayered = -1
	} else {
		r.unlayered = len(r.ranks)
	}
	return r
}

func (r ranking) rank(layer string) int {
	if layer == "" {
		return r.unlayered
	}
	return r.ranks[layer]
}
