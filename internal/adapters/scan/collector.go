package scan

import (
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
)

// collector assembles a ScanResult. Both scanners feed it the same facts so
// that they agree on the shape of the result.
type collector struct {
	imports []domain.ImportRef
	exports domain.ExportMap
	esm     bool
	cjs     bool
	hot     domain.HotFlags
}

func (c *collector) addImport(ref domain.ImportRef) {
	if len(ref.Names) > 0 {
		ref.Names = slices.Compact(slices.Sorted(slices.Values(ref.Names)))
	} else {
		ref.Names = nil
	}
	c.imports = append(c.imports, ref)
}

// importName records one imported binding name on ref.
func importName(ref *domain.ImportRef, name string) {
	if name == "default" {
		ref.Default = true
		return
	}
	ref.Names = append(ref.Names, name)
}

func (c *collector) exportName(name string) {
	if name == "default" {
		c.exports.HasDefault = true
		return
	}
	c.exports.Named = append(c.exports.Named, name)
}

func (c *collector) reexport(name, specifier string) {
	c.exportName(name)
	if c.exports.Reexports == nil {
		c.exports.Reexports = make(map[string]string)
	}
	c.exports.Reexports[name] = specifier
}

func (c *collector) star(specifier string) {
	c.exports.StarReexports = append(c.exports.StarReexports, specifier)
	c.addImport(domain.ImportRef{Specifier: specifier, Kind: domain.ImportStatic, Namespace: true})
}

// call records a call through a dotted member chain such as
// import.meta.hot.accept.
func (c *collector) call(chain string) {
	switch chain {
	case "import.meta.hot.accept", "module.hot.accept":
		c.hot.Accepts = true
	case "import.meta.hot.dispose", "module.hot.dispose":
		c.hot.Disposes = true
	}
}

// assign records an assignment to a dotted member chain.
func (c *collector) assign(chain string) {
	if chain == "module.exports" {
		c.cjs = true
		c.exports.HasDefault = true
		return
	}
	for _, prefix := range []string{"module.exports.", "exports."} {
		if name, ok := strings.CutPrefix(chain, prefix); ok && !strings.Contains(name, ".") {
			c.cjs = true
			c.exportName(name)
			return
		}
	}
}

// assignComputed records an assignment through a computed member of object.
func (c *collector) assignComputed(object string) {
	if object == "exports" || object == "module.exports" {
		c.cjs = true
		c.exports.IsDynamic = true
	}
}

func (c *collector) result() *domain.ScanResult {
	return &domain.ScanResult{
		Imports: c.imports,
		Exports: c.exports.Normalize(),
		HasESM:  c.esm,
		HasCJS:  c.cjs,
		Hot:     c.hot,
	}
}

// chainOf normalizes member expression text: whitespace and optional
// chaining markers are dropped.
func chainOf(expr string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '?':
			return -1
		}
		return r
	}, expr)
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
