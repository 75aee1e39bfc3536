package pipeline

import (
	"path/filepath"
	"strconv"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
)

// Chunk is one output bundle: an entry and everything it reaches.
type Chunk struct {
	Name  string
	Entry domain.InternedString
	// Modules are the scripts and data modules of the chunk, dependencies first.
	Modules []domain.InternedString
	// Styles are the css-import edges reachable from the entry, in the
	// order a depth-first walk meets them.
	Styles []domain.GraphEdge
}

// PlanChunks splits g into one chunk per entry. Dynamic imports are linked
// into the chunk of the entry that reaches them.
func PlanChunks(g *domain.ModuleGraph) []Chunk {
	taken := make(map[string]int)
	chunks := make([]Chunk, 0, len(g.Entries()))
	for _, entry := range g.Entries() {
		m, ok := g.Module(entry)
		if !ok {
			continue
		}
		c := Chunk{Name: chunkName(m.Path, taken), Entry: entry}

		var scripts []domain.InternedString
		seen := make(map[domain.InternedString]bool)
		var walk func(id domain.InternedString)
		walk = func(id domain.InternedString) {
			if seen[id] {
				return
			}
			seen[id] = true
			node, _ := g.Module(id)
			if node.Kind != domain.KindStyle && !node.External {
				scripts = append(scripts, id)
			}
			for _, e := range g.Dependencies(id) {
				if e.Kind == domain.EdgeCSSImport {
					c.Styles = append(c.Styles, e)
				}
				walk(e.To)
			}
		}
		walk(entry)

		if m.Kind == domain.KindStyle {
			c.Styles = append([]domain.GraphEdge{entryEdge(m)}, c.Styles...)
		}
		c.Modules = g.TopoOrder(scripts)
		chunks = append(chunks, c)
	}
	return chunks
}

func chunkName(path string, taken map[string]int) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	taken[base]++
	if n := taken[base]; n > 1 {
		return base + "-" + strconv.Itoa(n)
	}
	return base
}

// entryEdge stands in for the import of a stylesheet that is itself an entry.
func entryEdge(m *domain.ModuleNode) domain.GraphEdge {
	meta := &domain.CSSEdgeMeta{}
	if m.Style != nil {
		meta.Specificity = m.Style.Specificity
		meta.CascadeLayer = m.Style.Layer
	}
	return domain.GraphEdge{From: m.ID, To: m.ID, Kind: domain.EdgeCSSImport, CSS: meta}
}
