package domain

import (
	"maps"
	"slices"
)

// ModuleFormat is the module system a source file is written in.
type ModuleFormat string

const (
	// FormatESM is an ECMAScript module.
	FormatESM ModuleFormat = "esm"
	// FormatCJS is a CommonJS module.
	FormatCJS ModuleFormat = "cjs"
	// FormatJSON is a JSON document imported as a module.
	FormatJSON ModuleFormat = "json"
	// FormatUnknown means no signal was found yet.
	// Modules never enter the transform stage with this format.
	FormatUnknown ModuleFormat = "unknown"
)

// ModuleKind separates scripts from stylesheets and data files.
type ModuleKind string

const (
	// KindScript is a JavaScript or TypeScript module.
	KindScript ModuleKind = "script"
	// KindStyle is a stylesheet.
	KindStyle ModuleKind = "style"
	// KindData is a JSON document.
	KindData ModuleKind = "data"
)

// ExportMap describes the export surface of a module.
type ExportMap struct {
	Named        []string          `json:"named"`
	HasDefault   bool              `json:"hasDefault"`
	IsDynamic    bool              `json:"isDynamic"`
	LiveBindings bool              `json:"liveBindings"`
	Reexports    map[string]string `json:"reexports,omitempty"`
	// StarReexports lists the specifiers of `export * from` statements.
	StarReexports []string `json:"starReexports,omitempty"`
}

// ConservativeExportMap is the export surface assumed when analysis fails.
func ConservativeExportMap() ExportMap {
	return ExportMap{
		Named:        []string{},
		HasDefault:   true,
		IsDynamic:    true,
		LiveBindings: false,
	}
}

// HasNamed reports whether name is a statically known named export.
func (e ExportMap) HasNamed(name string) bool {
	_, found := slices.BinarySearch(e.Named, name)
	return found
}

// Normalize sorts and deduplicates the named exports so that two export maps
// with the same content compare and hash equal.
func (e ExportMap) Normalize() ExportMap {
	out := e
	out.Named = slices.Compact(slices.Sorted(slices.Values(e.Named)))
	if out.Named == nil {
		out.Named = []string{}
	}
	out.StarReexports = slices.Compact(slices.Sorted(slices.Values(e.StarReexports)))
	if len(e.Reexports) > 0 {
		out.Reexports = maps.Clone(e.Reexports)
	}
	return out
}

// HotFlags records the hot-module-replacement API usage of a module.
type HotFlags struct {
	// Accepts is set when the module self-accepts updates.
	Accepts bool `json:"accepts,omitempty"`
	// Disposes is set when the module hands its state over on dispose.
	Disposes bool `json:"disposes,omitempty"`
}

// ModuleNode is a vertex of the module graph.
type ModuleNode struct {
	ID          InternedString
	Path        string
	Kind        ModuleKind
	Format      ModuleFormat
	Exports     ExportMap
	ContentHash string
	Hot         HotFlags
	// External marks a module that lives outside this build (for example a
	// federated remote); updates can never be applied to it in place.
	External bool
	// Entry marks a configured entry point.
	Entry bool
	// Content is the loaded source.
	Content []byte
	// Imports are the raw import references found by the scanner, in source order.
	Imports []ImportRef
	// Style is set for stylesheets.
	Style *StyleMeta
	// Package is the package the module belongs to, if any.
	Package *PackageMeta
	// Condition is the export condition chain that selected the module.
	Condition string

	dependencies []GraphEdge
	dependents   map[InternedString]struct{}
}

// Dependencies returns the outgoing edges of the module in source order.
func (m *ModuleNode) Dependencies() []GraphEdge {
	return m.dependencies
}

// StyleMeta is what the stylesheet scanner records about a stylesheet.
type StyleMeta struct {
	// Layers lists the cascade layers the stylesheet declares, in order.
	Layers []string `json:"layers,omitempty"`
	// Layer is the layer wrapping every rule of the stylesheet, if any.
	Layer string `json:"layer,omitempty"`
	// Specificity is the highest selector specificity in the stylesheet.
	Specificity int `json:"specificity"`
}

// ImportKind classifies an import reference found in source.
type ImportKind string

const (
	// ImportStatic is an `import ... from` or `export ... from` statement.
	ImportStatic ImportKind = "static"
	// ImportDynamic is an `import()` expression.
	ImportDynamic ImportKind = "dynamic"
	// ImportRequire is a `require()` call.
	ImportRequire ImportKind = "require"
	// ImportStyle is a stylesheet import.
	ImportStyle ImportKind = "style"
)

// ImportRef is a single import of another module, as written in source.
type ImportRef struct {
	Specifier string     `json:"specifier"`
	Kind      ImportKind `json:"kind"`
	Names     []string   `json:"names,omitempty"`
	Default   bool       `json:"default,omitempty"`
	Namespace bool       `json:"namespace,omitempty"`
	// Layer is the cascade layer of a stylesheet import.
	Layer string `json:"layer,omitempty"`
}

// ScanResult is what a scanner extracts from a single source file.
type ScanResult struct {
	Imports []ImportRef
	Exports ExportMap
	HasESM  bool
	HasCJS  bool
	Hot     HotFlags
}
