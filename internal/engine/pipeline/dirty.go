package pipeline

import (
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
)

// DirtyClosure returns the modules a graph pass re-enters, sorted: every
// changed module, plus each dependent whose imports of a re-entered module
// now see a different surface. A dependent is only walked through when its
// own effective exports changed too, so propagation stops at the first
// module whose surface held; star re-exports carry changes upwards.
//
// previous holds the own exports changed modules had before the pass; a
// changed module without an entry is new.
func DirtyClosure(g *domain.ModuleGraph, changed []domain.InternedString, previous map[domain.InternedString]domain.ExportMap) []domain.InternedString {
	if len(changed) == 0 {
		return []domain.InternedString{}
	}
	now := IndexExports(g)
	before := indexExports(g, previous)

	dirty := make(map[domain.InternedString]bool, len(changed))
	queue := make([]domain.InternedString, 0, len(changed))
	for _, id := range changed {
		if _, ok := g.Module(id); !ok || dirty[id] {
			continue
		}
		dirty[id] = true
		queue = append(queue, id)
	}

	expanded := make(map[domain.InternedString]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if expanded[id] {
			continue
		}
		expanded[id] = true
		importee, _ := g.Module(id)

		for _, dep := range g.Dependents(id) {
			importer, _ := g.Module(dep)
			if !dirty[dep] && !referencesChanged(importer, importee, before[id], now[id]) {
				continue
			}
			dirty[dep] = true
			if !sameSurface(before[dep], now[dep]) {
				queue = append(queue, dep)
			}
		}
	}

	out := make([]domain.InternedString, 0, len(dirty))
	for id := range dirty {
		out = append(out, id)
	}
	return domain.SortIDs(out)
}

// referencesChanged reports whether any import of importee by importer
// resolves to a different surface under the old and new exports.
func referencesChanged(importer, importee *domain.ModuleNode, before, now domain.ExportMap) bool {
	for _, e := range importer.Dependencies() {
		if e.To != importee.ID {
			continue
		}
		if surfaceOf("", e, importer, importee, before).differs(surfaceOf("", e, importer, importee, now)) {
			return true
		}
	}
	return false
}

func (s linkSurface) differs(o linkSurface) bool {
	return s.Interop != o.Interop ||
		s.Default != o.Default ||
		s.Dynamic != o.Dynamic ||
		s.Live != o.Live ||
		!slices.Equal(s.Names, o.Names) ||
		!slices.Equal(s.Exports, o.Exports)
}
