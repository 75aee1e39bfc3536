// Package domain contains the core domain models of the kiln build graph.
package domain

import (
	"cmp"
	"iter"
	"maps"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// ModuleGraph is the dependency graph of a project.
// It is not safe for concurrent mutation; the builder serializes writers.
type ModuleGraph struct {
	modules  map[InternedString]*ModuleNode
	entries  []InternedString
	revision uint64
}

// NewModuleGraph creates a new empty ModuleGraph.
func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{
		modules: make(map[InternedString]*ModuleNode),
	}
}

// Revision returns a counter that changes on every mutation.
func (g *ModuleGraph) Revision() uint64 {
	return g.revision
}

// ModuleCount returns the number of modules in the graph.
func (g *ModuleGraph) ModuleCount() int {
	return len(g.modules)
}

// Module returns the module with the given id.
func (g *ModuleGraph) Module(id InternedString) (*ModuleNode, bool) {
	m, ok := g.modules[id]
	return m, ok
}

// ModuleByPath returns the module loaded from path.
func (g *ModuleGraph) ModuleByPath(path string) (*ModuleNode, bool) {
	return g.Module(NewInternedString(path))
}

// Entries returns the entry modules.
func (g *ModuleGraph) Entries() []InternedString {
	return slices.Clone(g.entries)
}

// SetEntries replaces the list of entry modules.
func (g *ModuleGraph) SetEntries(ids []InternedString) {
	for _, id := range g.entries {
		if m, ok := g.modules[id]; ok {
			m.Entry = false
		}
	}
	g.entries = slices.Clone(ids)
	for _, id := range ids {
		if m, ok := g.modules[id]; ok {
			m.Entry = true
		}
	}
	g.revision++
}

// PutModule inserts a module or replaces the analysis of an existing one.
// Edges and back-references of an existing module are preserved.
func (g *ModuleGraph) PutModule(m *ModuleNode) {
	if existing, ok := g.modules[m.ID]; ok {
		m.dependencies = existing.dependencies
		m.dependents = existing.dependents
	}
	if m.dependents == nil {
		m.dependents = make(map[InternedString]struct{})
	}
	if slices.Contains(g.entries, m.ID) {
		m.Entry = true
	}
	g.modules[m.ID] = m
	g.revision++
}

// SetEdges replaces all outgoing edges of a module and recomputes the
// dependents back-references of the affected targets.
func (g *ModuleGraph) SetEdges(from InternedString, edges []GraphEdge) error {
	m, ok := g.modules[from]
	if !ok {
		return zerr.With(zerr.Wrap(ErrModuleNotFound, from.String()), "module", from.String())
	}
	for _, e := range edges {
		if _, ok := g.modules[e.To]; !ok {
			return zerr.With(zerr.Wrap(ErrModuleNotFound, e.To.String()), "importer", from.String())
		}
	}

	for _, old := range m.dependencies {
		if target, ok := g.modules[old.To]; ok {
			delete(target.dependents, from)
		}
	}

	m.dependencies = slices.Clone(edges)
	for _, e := range edges {
		g.modules[e.To].dependents[from] = struct{}{}
	}
	g.revision++
	return nil
}

// RemoveModule deletes a module and every edge touching it.
func (g *ModuleGraph) RemoveModule(id InternedString) {
	m, ok := g.modules[id]
	if !ok {
		return
	}
	for _, e := range m.dependencies {
		if target, ok := g.modules[e.To]; ok {
			delete(target.dependents, id)
		}
	}
	for dep := range m.dependents {
		if importer, ok := g.modules[dep]; ok {
			importer.dependencies = slices.DeleteFunc(importer.dependencies, func(e GraphEdge) bool {
				return e.To == id
			})
		}
	}
	delete(g.modules, id)
	g.revision++
}

// Dependencies returns the outgoing edges of id.
func (g *ModuleGraph) Dependencies(id InternedString) []GraphEdge {
	if m, ok := g.modules[id]; ok {
		return m.dependencies
	}
	return nil
}

// Dependents returns the ids of modules importing id, sorted.
func (g *ModuleGraph) Dependents(id InternedString) []InternedString {
	m, ok := g.modules[id]
	if !ok {
		return nil
	}
	return SortIDs(slices.Collect(maps.Keys(m.dependents)))
}

// IDs returns all module ids, sorted.
func (g *ModuleGraph) IDs() []InternedString {
	return SortIDs(slices.Collect(maps.Keys(g.modules)))
}

// Walk yields every module in id order.
func (g *ModuleGraph) Walk() iter.Seq[*ModuleNode] {
	return func(yield func(*ModuleNode) bool) {
		for _, id := range g.IDs() {
			if !yield(g.modules[id]) {
				return
			}
		}
	}
}

// Edges yields every edge of the graph, grouped by importer in id order.
func (g *ModuleGraph) Edges() iter.Seq[GraphEdge] {
	return func(yield func(GraphEdge) bool) {
		for _, id := range g.IDs() {
			for _, e := range g.modules[id].dependencies {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// Reachable returns the set of modules reachable from the entries over any edge.
func (g *ModuleGraph) Reachable() map[InternedString]bool {
	seen := make(map[InternedString]bool, len(g.modules))
	queue := slices.Clone(g.entries)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		m, ok := g.modules[id]
		if !ok {
			continue
		}
		seen[id] = true
		for _, e := range m.dependencies {
			queue = append(queue, e.To)
		}
	}
	return seen
}

// Prune removes every module that no entry point references and returns the
// removed ids.
func (g *ModuleGraph) Prune() []InternedString {
	reachable := g.Reachable()
	var removed []InternedString
	for _, id := range g.IDs() {
		if !reachable[id] {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		g.RemoveModule(id)
	}
	return removed
}

// TransitiveDependents returns every module that reaches one of ids over
// reverse edges, excluding ids themselves, sorted.
func (g *ModuleGraph) TransitiveDependents(ids ...InternedString) []InternedString {
	seen := make(map[InternedString]bool)
	for _, id := range ids {
		seen[id] = true
	}
	queue := slices.Clone(ids)
	var out []InternedString
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.Dependents(id) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	return SortIDs(out)
}

// StaticCycles returns the cycles of the static edge subgraph. Each cycle is
// a strongly connected component with more than one module, or a module
// importing itself. Members are sorted and cycles are ordered by first member.
func (g *ModuleGraph) StaticCycles() [][]InternedString {
	t := &tarjan{
		g:       g,
		index:   make(map[InternedString]int),
		lowlink: make(map[InternedString]int),
		onStack: make(map[InternedString]bool),
	}
	for _, id := range g.IDs() {
		if _, visited := t.index[id]; !visited {
			t.strongConnect(id)
		}
	}

	var cycles [][]InternedString
	for _, scc := range t.components {
		if len(scc) == 1 && !g.importsItself(scc[0]) {
			continue
		}
		cycles = append(cycles, SortIDs(scc))
	}
	slices.SortFunc(cycles, func(a, b []InternedString) int {
		return strings.Compare(a[0].String(), b[0].String())
	})
	return cycles
}

func (g *ModuleGraph) importsItself(id InternedString) bool {
	for _, e := range g.modules[id].dependencies {
		if e.Kind.IsStatic() && e.To == id {
			return true
		}
	}
	return false
}

// CycleError builds a cycle-detected error carrying the cycle path.
func CycleError(cycle []InternedString) error {
	parts := make([]string, 0, len(cycle)+1)
	for _, id := range cycle {
		parts = append(parts, id.String())
	}
	if len(cycle) > 0 {
		parts = append(parts, cycle[0].String())
	}
	path := strings.Join(parts, " -> ")
	return zerr.With(zerr.Wrap(ErrGraphCycle, path), "cycle", path)
}

// TopoOrder orders ids dependency-first: a module appears after every module
// it statically imports within the set. Ties, and members of a cycle, are
// broken by id so the order is a pure function of the graph.
func (g *ModuleGraph) TopoOrder(ids []InternedString) []InternedString {
	set := make(map[InternedString]bool, len(ids))
	for _, id := range ids {
		if _, ok := g.modules[id]; ok {
			set[id] = true
		}
	}

	order := make([]InternedString, 0, len(set))
	state := make(map[InternedString]int, len(set)) // 0: unvisited, 1: visiting, 2: visited

	var visit func(id InternedString)
	visit = func(id InternedString) {
		state[id] = 1
		deps := make([]InternedString, 0)
		for _, e := range g.modules[id].dependencies {
			if e.Kind.IsStatic() && set[e.To] {
				deps = append(deps, e.To)
			}
		}
		for _, dep := range SortIDs(deps) {
			if state[dep] == 0 {
				visit(dep)
			}
		}
		state[id] = 2
		order = append(order, id)
	}

	for _, id := range SortIDs(slices.Collect(maps.Keys(set))) {
		if state[id] == 0 {
			visit(id)
		}
	}
	return order
}

// SortIDs sorts ids lexicographically in place and returns them.
func SortIDs(ids []InternedString) []InternedString {
	slices.SortFunc(ids, func(a, b InternedString) int {
		return cmp.Compare(a.String(), b.String())
	})
	return slices.Compact(ids)
}

type tarjan struct {
	g          *ModuleGraph
	counter    int
	index      map[InternedString]int
	lowlink    map[InternedString]int
	stack      []InternedString
	onStack    map[InternedString]bool
	components [][]InternedString
}

func (t *tarjan) strongConnect(v InternedString) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	targets := make([]InternedString, 0)
	for _, e := range t.g.modules[v].dependencies {
		if e.Kind.IsStatic() {
			targets = append(targets, e.To)
		}
	}
	for _, w := range SortIDs(targets) {
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		} else if t.onStack[w] {
			t.lowlink[v] = min(t.lowlink[v], t.index[w])
		}
	}

	if t.lowlink[v] == t.index[v] {
		var scc []InternedString
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.components = append(t.components, scc)
	}
}
