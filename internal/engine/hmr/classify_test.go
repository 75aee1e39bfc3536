package hmr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/hmr"
)

type node struct {
	path    string
	kind    domain.ModuleKind
	format  domain.ModuleFormat
	hot     domain.HotFlags
	ext     bool
	imports []string
}

func buildGraph(t *testing.T, entries []string, nodes ...node) *domain.ModuleGraph {
	t.Helper()
	g := domain.NewModuleGraph()
	for _, n := range nodes {
		kind := n.kind
		if kind == "" {
			kind = domain.KindScript
		}
		format := n.format
		if format == "" {
			format = domain.FormatESM
		}
		g.PutModule(&domain.ModuleNode{
			ID:       domain.NewInternedString(n.path),
			Path:     n.path,
			Kind:     kind,
			Format:   format,
			Hot:      n.hot,
			External: n.ext,
		})
	}
	for _, n := range nodes {
		from := domain.NewInternedString(n.path)
		var edges []domain.GraphEdge
		for _, to := range n.imports {
			edges = append(edges, domain.GraphEdge{From: from, To: domain.NewInternedString(to), Kind: domain.EdgeImport})
		}
		require.NoError(t, g.SetEdges(from, edges))
	}
	ids := make([]domain.InternedString, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, domain.NewInternedString(e))
	}
	g.SetEntries(ids)
	return g
}

// appGraph:
//
//	main.js (entry) -> app.js, widget.js
//	app.js (accepts, disposes) -> util.js, helper.js, legacy.cjs, theme.css
//	widget.js (accepts) -> util.js
//	legacy.cjs -> helper.js
func appGraph(t *testing.T) *domain.ModuleGraph {
	t.Helper()
	return buildGraph(t, []string{"/app/main.js"},
		node{path: "/app/main.js", imports: []string{"/app/app.js", "/app/widget.js"}},
		node{
			path:    "/app/app.js",
			hot:     domain.HotFlags{Accepts: true, Disposes: true},
			imports: []string{"/app/util.js", "/app/helper.js", "/app/legacy.cjs", "/app/theme.css"},
		},
		node{path: "/app/widget.js", hot: domain.HotFlags{Accepts: true}, imports: []string{"/app/util.js"}},
		node{path: "/app/legacy.cjs", format: domain.FormatCJS, imports: []string{"/app/helper.js"}},
		node{path: "/app/util.js"},
		node{path: "/app/helper.js"},
		node{path: "/app/theme.css", kind: domain.KindStyle, format: domain.FormatUnknown},
		node{path: "/app/orphan.js"},
	)
}

func batch(paths ...string) domain.ChangeBatch {
	return domain.NewChangeBatch(paths, nil)
}

func TestClassify_HotUpdateOrdersDependenciesFirst(t *testing.T) {
	trace := hmr.Classify(appGraph(t), batch("/app/util.js"))

	assert.Equal(t, domain.DecisionHotUpdate, trace.Decision)
	assert.Equal(t, []string{"/app/util.js", "/app/app.js", "/app/widget.js"}, trace.AffectedModules)
	assert.Equal(t, []domain.Boundary{
		{Module: "/app/app.js", Class: domain.BoundarySafe, Reason: hmr.ReasonDisposes},
		{Module: "/app/widget.js", Class: domain.BoundaryUnsafe, Reason: hmr.ReasonAccepts},
	}, trace.Boundaries)
	assert.Equal(t, []string{"/app/widget.js"}, trace.Unsafe)
	assert.Empty(t, trace.Ambiguous)
}

func TestClassify_Stylesheet(t *testing.T) {
	trace := hmr.Classify(appGraph(t), batch("/app/theme.css"))

	assert.Equal(t, domain.DecisionHotUpdate, trace.Decision)
	assert.Equal(t, []string{"/app/theme.css"}, trace.AffectedModules)
	require.Len(t, trace.Boundaries, 1)
	assert.Equal(t, domain.BoundarySafe, trace.Boundaries[0].Class)
}

func TestClassify_AmbiguousBoundaryIsConservative(t *testing.T) {
	trace := hmr.Classify(appGraph(t), batch("/app/helper.js"))

	assert.Equal(t, domain.DecisionHotUpdate, trace.Decision)
	assert.Equal(t, []string{"/app/app.js"}, trace.Ambiguous)
	assert.Equal(t, []domain.Boundary{
		{Module: "/app/app.js", Class: domain.BoundaryUnsafe, Reason: hmr.ReasonCJSPath},
	}, trace.Boundaries)
	assert.Equal(t, []string{"/app/helper.js", "/app/legacy.cjs", "/app/app.js"}, trace.AffectedModules)

	events := hmr.Events(trace)
	require.Len(t, events, 2)
	assert.Equal(t, domain.DecisionAmbiguousBoundary, events[0].Decision)
	assert.Equal(t, domain.DecisionHMRClassified, events[1].Decision)
}

func TestClassify_ReloadCases(t *testing.T) {
	tests := []struct {
		name   string
		batch  domain.ChangeBatch
		module string
		reason string
	}{
		{"entry without accept", batch("/app/main.js"), "/app/main.js", hmr.ReasonEntry},
		{"unknown file", batch("/app/new.js"), "/app/new.js", hmr.ReasonUnmapped},
		{"orphan", batch("/app/orphan.js"), "/app/orphan.js", hmr.ReasonOrphan},
		{"removed", domain.NewChangeBatch(nil, []string{"/app/util.js"}), "/app/util.js", hmr.ReasonRemoved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace := hmr.Classify(appGraph(t), tt.batch)
			assert.Equal(t, domain.DecisionReload, trace.Decision)
			assert.Contains(t, trace.Boundaries, domain.Boundary{
				Module: tt.module, Class: domain.BoundaryReload, Reason: tt.reason,
			})
			assert.Equal(t, tt.module+": "+tt.reason, trace.Reason)
		})
	}
}

func TestClassify_ReloadDominates(t *testing.T) {
	trace := hmr.Classify(appGraph(t), batch("/app/util.js", "/app/theme.css", "/app/kiln.yaml"))

	assert.Equal(t, domain.DecisionReload, trace.Decision)
	var safe int
	for _, b := range trace.Boundaries {
		if b.Class == domain.BoundarySafe {
			safe++
		}
	}
	assert.Equal(t, 2, safe)
}

func TestClassify_ExternalDependentForcesReload(t *testing.T) {
	g := buildGraph(t, []string{"/app/main.js"},
		node{path: "/app/main.js", hot: domain.HotFlags{Accepts: true, Disposes: true}, imports: []string{"/app/shared.js"}},
		node{path: "remote:cart/entry.js", ext: true, imports: []string{"/app/shared.js"}},
		node{path: "/app/shared.js"},
	)
	trace := hmr.Classify(g, batch("/app/shared.js"))

	assert.Equal(t, domain.DecisionReload, trace.Decision)
	assert.Contains(t, trace.Boundaries, domain.Boundary{
		Module: "remote:cart/entry.js", Class: domain.BoundaryReload, Reason: hmr.ReasonExternal,
	})
}

func TestClassify_Cycle(t *testing.T) {
	g := buildGraph(t, []string{"/app/main.js"},
		node{path: "/app/main.js", imports: []string{"/app/view.js"}},
		node{path: "/app/view.js", hot: domain.HotFlags{Accepts: true, Disposes: true}, imports: []string{"/app/a.js"}},
		node{path: "/app/a.js", imports: []string{"/app/b.js"}},
		node{path: "/app/b.js", imports: []string{"/app/a.js"}},
	)
	trace := hmr.Classify(g, batch("/app/b.js"))

	assert.Equal(t, domain.DecisionHotUpdate, trace.Decision)
	assert.ElementsMatch(t, []string{"/app/a.js", "/app/b.js", "/app/view.js"}, trace.AffectedModules)
	assert.Equal(t, "/app/view.js", trace.AffectedModules[2])
}

func TestClassify_Idempotent(t *testing.T) {
	g := appGraph(t)
	revision := g.Revision()

	first := hmr.Classify(g, batch("/app/helper.js", "/app/util.js", "/app/theme.css"))
	second := hmr.Classify(g, batch("/app/theme.css", "/app/util.js", "/app/helper.js", "/app/util.js"))

	assert.Equal(t, first, second)
	assert.Equal(t, revision, g.Revision())
}

func TestClassify_EmptyBatch(t *testing.T) {
	trace := hmr.Classify(appGraph(t), domain.ChangeBatch{})
	assert.Equal(t, domain.DecisionHotUpdate, trace.Decision)
	assert.Empty(t, trace.AffectedModules)
	assert.Empty(t, trace.Boundaries)
}

func TestMessageFor(t *testing.T) {
	g := appGraph(t)

	update := hmr.MessageFor(hmr.Classify(g, batch("/app/util.js")), 42)
	assert.Equal(t, domain.MessageUpdate, update.Type)
	payload, ok := update.Payload.(domain.UpdatePayload)
	require.True(t, ok)
	assert.Equal(t, int64(42), payload.Timestamp)
	assert.Equal(t, []string{"/app/widget.js"}, payload.Unsafe)

	reload := hmr.MessageFor(hmr.Classify(g, batch("/app/main.js")), 42)
	assert.Equal(t, domain.MessageReload, reload.Type)
	assert.Equal(t, []string{"/app/main.js"}, reload.Payload.(domain.ReloadPayload).Paths)
}
