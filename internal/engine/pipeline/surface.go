package pipeline

import (
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/interop"
)

// Interop kinds recorded in a link table.
const (
	linkDirect   = ""
	linkESM      = "esm"
	linkCJS      = "cjs"
	linkExternal = "external"
)

// ExportIndex resolves the effective export surface of every module: its
// own exports plus whatever it re-exports through `export * from`.
type ExportIndex map[domain.InternedString]domain.ExportMap

// IndexExports computes the effective exports of every module of g. Star
// re-export chains, cycles included, are followed to a fixed point.
func IndexExports(g *domain.ModuleGraph) ExportIndex {
	return indexExports(g, nil)
}

// indexExports is IndexExports with the own exports of some modules
// replaced, used to rebuild the surface a graph had before a pass.
func indexExports(g *domain.ModuleGraph, override map[domain.InternedString]domain.ExportMap) ExportIndex {
	idx := make(ExportIndex, g.ModuleCount())
	var stars []*domain.ModuleNode
	for m := range g.Walk() {
		own := m.Exports
		if prev, ok := override[m.ID]; ok {
			own = prev
		}
		idx[m.ID] = own.Normalize()
		if len(own.StarReexports) > 0 {
			stars = append(stars, m)
		}
	}
	slices.SortFunc(stars, func(a, b *domain.ModuleNode) int {
		return compareIDs(a.ID, b.ID)
	})

	for changed := true; changed; {
		changed = false
		for _, m := range stars {
			cur := idx[m.ID]
			next := cur
			next.Named = slices.Clone(cur.Named)
			for _, e := range m.Dependencies() {
				if !isStarEdge(e, idx[m.ID]) {
					continue
				}
				dep := idx[e.To]
				for _, name := range dep.Named {
					if name != "default" {
						next.Named = append(next.Named, name)
					}
				}
				next.IsDynamic = next.IsDynamic || dep.IsDynamic
				next.LiveBindings = next.LiveBindings || dep.LiveBindings
			}
			next = next.Normalize()
			if !sameSurface(cur, next) {
				idx[m.ID] = next
				changed = true
			}
		}
	}
	return idx
}

// isStarEdge reports whether e is an `export * from` of its importer.
func isStarEdge(e domain.GraphEdge, exports domain.ExportMap) bool {
	if e.Kind != domain.EdgeImport || e.Ref.Kind != domain.ImportStatic || !e.Ref.Namespace {
		return false
	}
	return slices.Contains(exports.StarReexports, e.Ref.Specifier)
}

func sameSurface(a, b domain.ExportMap) bool {
	return a.HasDefault == b.HasDefault &&
		a.IsDynamic == b.IsDynamic &&
		a.LiveBindings == b.LiveBindings &&
		slices.Equal(a.Named, b.Named)
}

// linkSurface is what an importer depends on of one import: the module it
// resolved to, the shape it is linked with and the part of the exports it
// references. Two surfaces that compare equal produce identical output for
// the importer.
type linkSurface struct {
	Specifier string              `json:"specifier"`
	Kind      domain.EdgeKind     `json:"kind"`
	Module    string              `json:"module"`
	Format    domain.ModuleFormat `json:"format"`
	Interop   string              `json:"interop"`
	// Names are the referenced named exports the importee provides.
	Names   []string `json:"names"`
	Default bool     `json:"default"`
	Dynamic bool     `json:"dynamic"`
	Live    bool     `json:"live"`
	// Exports is the whole surface, for imports that see all of it.
	Exports []string `json:"exports,omitempty"`
}

// surfaceOf computes the surface of edge e from importer to importee.
func surfaceOf(root string, e domain.GraphEdge, importer, importee *domain.ModuleNode, exports domain.ExportMap) linkSurface {
	s := linkSurface{
		Specifier: e.Ref.Specifier,
		Kind:      e.Kind,
		Module:    relID(root, importee),
		Format:    importee.Format,
		Names:     []string{},
	}
	if importee.Kind == domain.KindStyle {
		return s
	}
	s.Interop = linkKind(e, importer, importee, exports)
	s.Dynamic = exports.IsDynamic
	s.Live = exports.LiveBindings

	for _, name := range e.Ref.Names {
		if exports.HasNamed(name) {
			s.Names = append(s.Names, name)
		}
	}
	slices.Sort(s.Names)
	s.Default = e.Ref.Default && exports.HasDefault

	if seesWholeSurface(e, importer) {
		s.Exports = slices.Clone(exports.Named)
		s.Default = exports.HasDefault
	}
	return s
}

// seesWholeSurface reports whether the importer can observe every export:
// namespace and dynamic imports, and require calls.
func seesWholeSurface(e domain.GraphEdge, importer *domain.ModuleNode) bool {
	return e.Ref.Namespace ||
		e.Kind == domain.EdgeDynamicImport ||
		e.Ref.Kind == domain.ImportRequire ||
		importer.Format == domain.FormatCJS
}

// linkKind says how the importee is presented to the importer.
func linkKind(e domain.GraphEdge, importer, importee *domain.ModuleNode, exports domain.ExportMap) string {
	if importee.External {
		return linkExternal
	}
	if !interop.RequiresInterop(e.Ref, exports, importee.Format, importer.Format) {
		return linkDirect
	}
	target, kind := domain.FormatESM, linkESM
	if e.Ref.Kind == domain.ImportRequire || importer.Format == domain.FormatCJS {
		target, kind = domain.FormatCJS, linkCJS
	}
	if _, ok := interop.GenerateInteropWrapper(exports, target); !ok {
		return linkDirect
	}
	return kind
}

// relID is the root-relative, slash-separated id a module is known by in
// artifacts. External modules keep their specifier.
func relID(root string, m *domain.ModuleNode) string {
	if m.External || root == "" {
		return m.Path
	}
	rel, err := filepath.Rel(root, m.Path)
	if err != nil {
		return filepath.ToSlash(m.Path)
	}
	return filepath.ToSlash(rel)
}

func compareIDs(a, b domain.InternedString) int {
	return strings.Compare(a.String(), b.String())
}
