// Package hmr decides whether a change batch can be applied as a hot update
// or needs a full reload.
package hmr

import (
	"maps"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
)

// stage is the event stage classification decisions are reported under.
const stage = "hmr"

// Reasons attached to boundaries.
const (
	ReasonUnmapped   = "path is not part of the module graph"
	ReasonRemoved    = "module was removed"
	ReasonStylesheet = "stylesheet can be swapped in place"
	ReasonDisposes   = "module accepts updates and hands over its state"
	ReasonAccepts    = "module accepts updates without disposing its state"
	ReasonCJSPath    = "update passes through a CommonJS module"
	ReasonExternal   = "module lives outside the build"
	ReasonEntry      = "update reached an entry point without an accept boundary"
	ReasonOrphan     = "update reached a module with no importers"
)

// reach is one way propagation arrived at a boundary.
type reach struct {
	class  domain.BoundaryClass
	reason string
}

// Classify maps a change batch onto the graph and decides how it can be
// applied. It does not mutate the graph; calling it twice with the same graph
// and batch returns equal traces.
func Classify(g *domain.ModuleGraph, batch domain.ChangeBatch) domain.HMRDecisionTrace {
	changes := slices.Compact(slices.Sorted(slices.Values(batch.Paths)))
	trace := domain.HMRDecisionTrace{
		ChangeSet:       changes,
		AffectedModules: []string{},
		Boundaries:      []domain.Boundary{},
	}

	reached := make(map[string][]reach)
	affected := make(map[domain.InternedString]bool)
	var roots []domain.InternedString
	for _, path := range changes {
		m, ok := g.ModuleByPath(path)
		switch {
		case batch.IsRemoved(path) && ok:
			reached[path] = append(reached[path], reach{domain.BoundaryReload, ReasonRemoved})
		case !ok:
			reached[path] = append(reached[path], reach{domain.BoundaryReload, ReasonUnmapped})
		default:
			roots = append(roots, m.ID)
		}
	}

	p := &propagation{g: g, reached: reached, affected: affected, visited: make(map[visit]bool)}
	for _, id := range roots {
		p.walk(id, false)
	}

	for _, module := range slices.Sorted(maps.Keys(reached)) {
		b, ambiguous := resolve(module, reached[module])
		trace.Boundaries = append(trace.Boundaries, b)
		if ambiguous {
			trace.Ambiguous = append(trace.Ambiguous, module)
		}
		if b.Class == domain.BoundaryUnsafe {
			trace.Unsafe = append(trace.Unsafe, module)
		}
	}

	for _, id := range g.TopoOrder(slices.Collect(maps.Keys(affected))) {
		trace.AffectedModules = append(trace.AffectedModules, id.String())
	}

	trace.Decision = domain.DecisionHotUpdate
	for _, b := range trace.Boundaries {
		if b.Class == domain.BoundaryReload {
			trace.Decision = domain.DecisionReload
			trace.Reason = b.Module + ": " + b.Reason
			break
		}
	}
	return trace
}

type visit struct {
	id      domain.InternedString
	tainted bool
}

type propagation struct {
	g        *domain.ModuleGraph
	reached  map[string][]reach
	affected map[domain.InternedString]bool
	visited  map[visit]bool
}

// walk follows reverse edges from id until every path ends at a boundary.
// tainted records that the path so far crossed a CommonJS module, whose
// exports object is replaced when it is re-evaluated.
func (p *propagation) walk(id domain.InternedString, tainted bool) {
	if p.visited[visit{id, tainted}] {
		return
	}
	p.visited[visit{id, tainted}] = true
	m, ok := p.g.Module(id)
	if !ok {
		return
	}
	p.affected[id] = true
	key := id.String()

	if class, reason, stop := boundary(m); stop {
		if tainted && class == domain.BoundarySafe {
			class, reason = domain.BoundaryUnsafe, ReasonCJSPath
		}
		p.reached[key] = append(p.reached[key], reach{class, reason})
		return
	}

	dependents := p.g.Dependents(id)
	if m.Entry || len(dependents) == 0 {
		reason := ReasonOrphan
		if m.Entry {
			reason = ReasonEntry
		}
		p.reached[key] = append(p.reached[key], reach{domain.BoundaryReload, reason})
		return
	}

	next := tainted || m.Format == domain.FormatCJS
	for _, dep := range dependents {
		p.walk(dep, next)
	}
}

// boundary reports whether propagation stops at m and how m is classified.
func boundary(m *domain.ModuleNode) (domain.BoundaryClass, string, bool) {
	switch {
	case m.External:
		return domain.BoundaryReload, ReasonExternal, true
	case m.Kind == domain.KindStyle:
		return domain.BoundarySafe, ReasonStylesheet, true
	case m.Hot.Accepts && m.Hot.Disposes:
		return domain.BoundarySafe, ReasonDisposes, true
	case m.Hot.Accepts:
		return domain.BoundaryUnsafe, ReasonAccepts, true
	default:
		return "", "", false
	}
}

// resolve merges every way module was reached. The most conservative class
// wins; differing classes make the boundary ambiguous.
func resolve(module string, reaches []reach) (domain.Boundary, bool) {
	slices.SortFunc(reaches, func(a, b reach) int {
		if d := b.class.Severity() - a.class.Severity(); d != 0 {
			return d
		}
		return strings.Compare(a.reason, b.reason)
	})
	worst := reaches[0]
	ambiguous := slices.ContainsFunc(reaches, func(r reach) bool {
		return r.class != worst.class
	})
	return domain.Boundary{Module: module, Class: worst.class, Reason: worst.reason}, ambiguous
}

// Events returns the explain records of a classification.
func Events(trace domain.HMRDecisionTrace) []domain.Event {
	events := make([]domain.Event, 0, len(trace.Ambiguous)+1)
	for _, module := range trace.Ambiguous {
		events = append(events, domain.Event{
			Stage:    stage,
			Decision: domain.DecisionAmbiguousBoundary,
			Reason:   domain.ErrAmbiguousBoundary.Error(),
			Level:    domain.LogLevelWarn,
			Data:     map[string]any{"module": module},
		})
	}
	reason := trace.Reason
	if reason == "" {
		reason = string(trace.Decision)
	}
	events = append(events, domain.Event{
		Stage:    stage,
		Decision: domain.DecisionHMRClassified,
		Reason:   reason,
		Level:    domain.LogLevelInfo,
		Data: map[string]any{
			"decision":   string(trace.Decision),
			"changes":    len(trace.ChangeSet),
			"affected":   len(trace.AffectedModules),
			"boundaries": len(trace.Boundaries),
			"unsafe":     len(trace.Unsafe),
		},
	})
	return events
}
