// Package graph discovers the module graph from the entry points and keeps
// it current as files change.
package graph

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/css"
	"go.trai.ch/kiln/internal/engine/interop"
	"go.trai.ch/zerr"
)

// Hooks are the plugin extension points consulted during discovery.
// ok is false when no plugin handled the call.
type Hooks interface {
	ResolveID(ctx context.Context, in domain.ResolveIDInput) (out domain.ResolveIDOutput, ok bool)
	Load(ctx context.Context, in domain.LoadInput) (out domain.LoadOutput, ok bool)
}

// Request describes one discovery pass.
type Request struct {
	// Entries are absolute paths of the entry modules.
	Entries []string
	// Conditions are the package export conditions to match.
	Conditions []string
	// Hooks may be nil.
	Hooks Hooks
}

// Result describes how a pass changed the graph.
type Result struct {
	// Changed lists the modules that are new or whose content changed, sorted.
	Changed []domain.InternedString
	// Previous holds the export surface a changed module had before the pass.
	Previous map[domain.InternedString]domain.ExportMap
	// Removed lists the modules that are no longer referenced.
	Removed []domain.InternedString
	// Cycles are the cycles of the static subgraph after the pass.
	Cycles [][]domain.InternedString
	Events []domain.Event
}

// Builder discovers modules and maintains a ModuleGraph.
type Builder struct {
	fs       ports.FileSystem
	resolver *Resolver
	analyzer *interop.Analyzer
	hasher   ports.ContentHasher
}

// NewBuilder creates a Builder.
func NewBuilder(fs ports.FileSystem, analyzer *interop.Analyzer, hasher ports.ContentHasher) *Builder {
	return &Builder{
		fs:       fs,
		resolver: NewResolver(fs),
		analyzer: analyzer,
		hasher:   hasher,
	}
}

// Resolver returns the resolver used for imports.
func (b *Builder) Resolver() *Resolver {
	return b.resolver
}

// Discover walks the graph from the entries, re-reading every module.
// Modules whose content is unchanged keep their analysis. Modules no entry
// reaches anymore are removed.
func (b *Builder) Discover(ctx context.Context, g *domain.ModuleGraph, req Request) (*Result, error) {
	for _, entry := range req.Entries {
		if !b.fs.IsFile(entry) {
			return nil, zerr.With(zerr.Wrap(domain.ErrEntryMissing, entry), "path", entry)
		}
	}

	w := b.newWalk(ctx, g, req, func(string) bool { return true })
	ids := make([]domain.InternedString, 0, len(req.Entries))
	for _, entry := range req.Entries {
		id, err := w.visit(domain.Resolution{Path: entry, Package: b.resolver.PackageOf(entry)})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if !slices.Equal(g.Entries(), ids) {
		g.SetEntries(ids)
	}
	return w.finish(), nil
}

// Update applies a change batch. Changed modules already in the graph are
// re-read and re-linked in place; anything that can change resolution
// elsewhere (removed modules, new files, package.json edits) falls back to a
// full Discover.
func (b *Builder) Update(ctx context.Context, g *domain.ModuleGraph, req Request, batch domain.ChangeBatch) (*Result, error) {
	changed := make(map[string]bool)
	full := false
	for _, p := range batch.Paths {
		if filepath.Base(p) == packageFile {
			b.resolver.Invalidate()
			full = true
			continue
		}
		_, known := g.ModuleByPath(p)
		switch {
		case batch.IsRemoved(p):
			full = full || known
		case !known:
			full = full || isModuleFile(p)
		default:
			changed[p] = true
		}
	}
	if full {
		return b.Discover(ctx, g, req)
	}

	w := b.newWalk(ctx, g, req, func(p string) bool { return changed[p] })
	for _, p := range slices.Sorted(maps.Keys(changed)) {
		m, _ := g.ModuleByPath(p)
		if _, err := w.visit(domain.Resolution{Path: p, Package: m.Package, Condition: m.Condition}); err != nil {
			return nil, err
		}
	}
	if err := w.relinkStyleImporters(); err != nil {
		return nil, err
	}
	return w.finish(), nil
}

// relinkStyleImporters re-links the importers of every re-scanned
// stylesheet, since their edges carry its layer and specificity.
func (w *walk) relinkStyleImporters() error {
	for _, id := range slices.Clone(w.res.Changed) {
		m, ok := w.g.Module(id)
		if !ok || m.Kind != domain.KindStyle {
			continue
		}
		for _, from := range w.g.Dependents(id) {
			importer, ok := w.g.Module(from)
			if !ok || w.refresh(importer.Path) {
				continue
			}
			if err := w.link(importer); err != nil {
				return err
			}
		}
	}
	return nil
}

type walk struct {
	b       *Builder
	ctx     context.Context
	g       *domain.ModuleGraph
	req     Request
	refresh func(path string) bool
	visited map[string]bool
	res     *Result
}

func (b *Builder) newWalk(ctx context.Context, g *domain.ModuleGraph, req Request, refresh func(string) bool) *walk {
	return &walk{
		b:       b,
		ctx:     ctx,
		g:       g,
		req:     req,
		refresh: refresh,
		visited: make(map[string]bool),
		res:     &Result{Previous: make(map[domain.InternedString]domain.ExportMap)},
	}
}

// visit loads the module at res and links its imports. Known modules that
// need no refresh are not descended into.
func (w *walk) visit(res domain.Resolution) (domain.InternedString, error) {
	id := domain.NewInternedString(res.Path)
	if w.visited[res.Path] {
		return id, nil
	}
	w.visited[res.Path] = true
	if err := w.ctx.Err(); err != nil {
		return id, err
	}

	existing, known := w.g.Module(id)
	if known && !w.refresh(res.Path) {
		return id, nil
	}

	if res.External {
		if !known {
			w.g.PutModule(&domain.ModuleNode{
				ID:       id,
				Path:     res.Path,
				Kind:     domain.KindScript,
				Format:   domain.FormatESM,
				Exports:  domain.ConservativeExportMap(),
				External: true,
			})
			w.res.Changed = append(w.res.Changed, id)
		}
		return id, nil
	}

	content, readErr := w.load(res.Path)
	hash := w.b.hasher.HashBytes(content)
	node := existing
	if !known || existing.ContentHash != hash || existing.Condition != res.Condition {
		node = w.analyze(id, res, content, hash, readErr)
		if known {
			w.res.Previous[id] = existing.Exports
		}
		w.g.PutModule(node)
		w.res.Changed = append(w.res.Changed, id)
	}

	return id, w.link(node)
}

func (w *walk) load(path string) ([]byte, error) {
	if w.req.Hooks != nil {
		if out, ok := w.req.Hooks.Load(w.ctx, domain.LoadInput{Path: path}); ok && out.Handled {
			return []byte(out.Code), nil
		}
	}
	return w.b.fs.ReadFile(path)
}

func (w *walk) analyze(id domain.InternedString, res domain.Resolution, content []byte, hash string, readErr error) *domain.ModuleNode {
	node := &domain.ModuleNode{
		ID:          id,
		Path:        res.Path,
		Kind:        KindOf(res.Path),
		ContentHash: hash,
		Content:     content,
		Package:     res.Package,
		Condition:   res.Condition,
	}

	if node.Kind == domain.KindStyle {
		sheet := css.Scan(content)
		node.Format = domain.FormatUnknown
		node.Imports = sheet.Imports
		node.Style = &sheet.Meta
		node.Exports = domain.ExportMap{Named: []string{}}
		return node
	}

	a := w.b.analyzer.Analyze(res.Path, content, res.Package, res.Condition)
	node.Format = a.Format
	node.Exports = a.Exports
	node.Imports = a.Imports
	node.Hot = a.Hot
	w.res.Events = append(w.res.Events, a.Events...)

	if readErr != nil && node.Format != domain.FormatJSON {
		node.Exports = domain.ConservativeExportMap()
		node.Imports = nil
		w.res.Events = append(w.res.Events, domain.Event{
			Stage:    string(domain.StageResolve),
			Decision: domain.DecisionAnalysisFallback,
			Reason:   domain.ErrAnalysisFallback.Error(),
			Level:    domain.LogLevelWarn,
			Data:     map[string]any{"module": res.Path, "error": readErr.Error()},
		})
	}
	return node
}

func (w *walk) link(node *domain.ModuleNode) error {
	edges := make([]domain.GraphEdge, 0, len(node.Imports))
	for _, ref := range node.Imports {
		res, err := w.resolve(ref.Specifier, node.Path)
		if err != nil {
			w.res.Events = append(w.res.Events, domain.Event{
				Stage:    string(domain.StageResolve),
				Decision: domain.DecisionResolveFailed,
				Reason:   domain.ErrResolveFailed.Error(),
				Level:    domain.LogLevelWarn,
				Data:     map[string]any{"module": node.Path, "specifier": ref.Specifier},
			})
			continue
		}
		to, err := w.visit(res)
		if err != nil {
			return err
		}
		target, _ := w.g.Module(to)
		edges = append(edges, newEdge(node.ID, target, ref))
	}

	if edgesEqual(w.g.Dependencies(node.ID), edges) {
		return nil
	}
	return w.g.SetEdges(node.ID, edges)
}

func (w *walk) resolve(specifier, importer string) (domain.Resolution, error) {
	if w.req.Hooks != nil {
		out, ok := w.req.Hooks.ResolveID(w.ctx, domain.ResolveIDInput{
			Specifier:  specifier,
			Importer:   importer,
			Conditions: w.req.Conditions,
		})
		if ok && out.Path != "" {
			if out.External {
				return domain.Resolution{Path: out.Path, External: true}, nil
			}
			p := filepath.FromSlash(out.Path)
			if !filepath.IsAbs(p) {
				p = filepath.Join(filepath.Dir(importer), p)
			}
			return domain.Resolution{Path: p, Package: w.b.resolver.PackageOf(p)}, nil
		}
	}
	return w.b.resolver.Resolve(specifier, importer, w.req.Conditions)
}

// finish prunes unreachable modules, renumbers stylesheet edges and
// reports cycles.
func (w *walk) finish() *Result {
	for _, id := range w.g.Prune() {
		w.res.Removed = append(w.res.Removed, id)
		w.res.Events = append(w.res.Events, domain.Event{
			Stage:    string(domain.StageResolve),
			Decision: domain.DecisionModulePruned,
			Reason:   "module no longer referenced",
			Level:    domain.LogLevelDebug,
			Data:     map[string]any{"module": id.String()},
		})
	}
	assignSourceOrder(w.g)

	w.res.Cycles = w.g.StaticCycles()
	for _, cycle := range w.res.Cycles {
		w.res.Events = append(w.res.Events, domain.Event{
			Stage:    string(domain.StageResolve),
			Decision: domain.DecisionCycleDetected,
			Reason:   domain.ErrGraphCycle.Error(),
			Level:    domain.LogLevelWarn,
			Data:     map[string]any{"cycle": joinIDs(cycle)},
		})
	}

	w.res.Changed = slices.DeleteFunc(domain.SortIDs(w.res.Changed), func(id domain.InternedString) bool {
		_, ok := w.g.Module(id)
		return !ok
	})
	return w.res
}

func newEdge(from domain.InternedString, target *domain.ModuleNode, ref domain.ImportRef) domain.GraphEdge {
	e := domain.GraphEdge{From: from, To: target.ID, Ref: ref}
	switch {
	case target.Kind == domain.KindStyle:
		e.Kind = domain.EdgeCSSImport
		layer := ref.Layer
		meta := domain.CSSEdgeMeta{}
		if target.Style != nil {
			meta.Specificity = target.Style.Specificity
			if layer == "" {
				layer = target.Style.Layer
			}
		}
		meta.CascadeLayer = layer
		e.CSS = &meta
	case ref.Kind == domain.ImportDynamic:
		e.Kind = domain.EdgeDynamicImport
	default:
		e.Kind = domain.EdgeImport
	}
	return e
}

// assignSourceOrder numbers stylesheet edges in the order a depth-first walk
// from the entries reaches them, following imports in source order.
func assignSourceOrder(g *domain.ModuleGraph) {
	order := make(map[domain.InternedString][]int)
	seen := make(map[domain.InternedString]bool)
	counter := 0

	var walk func(id domain.InternedString)
	walk = func(id domain.InternedString) {
		if seen[id] {
			return
		}
		seen[id] = true
		deps := g.Dependencies(id)
		numbers := make([]int, len(deps))
		for i, e := range deps {
			if e.Kind == domain.EdgeCSSImport {
				counter++
				numbers[i] = counter
			}
			walk(e.To)
		}
		order[id] = numbers
	}
	for _, id := range g.Entries() {
		walk(id)
	}

	for _, id := range g.IDs() {
		numbers, ok := order[id]
		if !ok {
			continue
		}
		deps := g.Dependencies(id)
		updated := slices.Clone(deps)
		dirty := false
		for i := range updated {
			if updated[i].CSS == nil || updated[i].CSS.SourceOrder == numbers[i] {
				continue
			}
			meta := *updated[i].CSS
			meta.SourceOrder = numbers[i]
			updated[i].CSS = &meta
			dirty = true
		}
		if dirty {
			_ = g.SetEdges(id, updated)
		}
	}
}

// KindOf classifies a module by its file extension.
func KindOf(path string) domain.ModuleKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".css":
		return domain.KindStyle
	case ".json":
		return domain.KindData
	default:
		return domain.KindScript
	}
}

func isModuleFile(path string) bool {
	return slices.Contains(ProbeExtensions, strings.ToLower(filepath.Ext(path)))
}

func edgesEqual(a, b []domain.GraphEdge) bool {
	return slices.EqualFunc(a, b, func(x, y domain.GraphEdge) bool {
		if x.From != y.From || x.To != y.To || x.Kind != y.Kind {
			return false
		}
		if x.Ref.Specifier != y.Ref.Specifier || x.Ref.Kind != y.Ref.Kind ||
			x.Ref.Default != y.Ref.Default || x.Ref.Namespace != y.Ref.Namespace ||
			x.Ref.Layer != y.Ref.Layer || !slices.Equal(x.Ref.Names, y.Ref.Names) {
			return false
		}
		if (x.CSS == nil) != (y.CSS == nil) {
			return false
		}
		// Source order is renumbered after every pass.
		return x.CSS == nil ||
			(x.CSS.Specificity == y.CSS.Specificity && x.CSS.CascadeLayer == y.CSS.CascadeLayer)
	})
}

func joinIDs(ids []domain.InternedString) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}
