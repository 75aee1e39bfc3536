package domain

// EdgeKind classifies a dependency edge.
type EdgeKind string

const (
	// EdgeImport is a static JavaScript import (including require calls).
	EdgeImport EdgeKind = "js-import"
	// EdgeDynamicImport is an import() expression.
	EdgeDynamicImport EdgeKind = "dynamic-import"
	// EdgeCSSImport is a stylesheet import, from a script or another stylesheet.
	EdgeCSSImport EdgeKind = "css-import"
)

// IsStatic reports whether the edge is part of the static subgraph.
func (k EdgeKind) IsStatic() bool {
	return k != EdgeDynamicImport
}

// CSSEdgeMeta carries the precedence inputs of a css-import edge.
type CSSEdgeMeta struct {
	Specificity  int    `json:"specificity"`
	SourceOrder  int    `json:"sourceOrder"`
	CascadeLayer string `json:"cascadeLayer,omitempty"`
}

// GraphEdge is a dependency from one module to another.
// Edges are immutable for a graph revision; they are replaced wholesale when
// the importing module is re-analyzed.
type GraphEdge struct {
	From InternedString `json:"from"`
	To   InternedString `json:"to"`
	Kind EdgeKind       `json:"kind"`
	// Ref is the import as written in the importer.
	Ref ImportRef    `json:"ref"`
	CSS *CSSEdgeMeta `json:"css,omitempty"`
}
