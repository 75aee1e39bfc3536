package pipeline

import (
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
)

// prelude is the module registry every chunk starts with. Records register
// a factory with their link table; require resolves a specifier through the
// table, applies the interop shim the link names and falls back to the host
// require for externals.
const prelude = `var __kiln_registry = {};
var __kiln_cache = {};
var __kiln_shims = {};
function __kiln_define(id, links, factory) {
  __kiln_registry[id] = { links: links, factory: factory };
}
function __kiln_shim(id, kind, wrap) {
  __kiln_shims[id + "|" + kind] = wrap;
}
function __kiln_require(id) {
  var cached = __kiln_cache[id];
  if (cached) return cached.exports;
  var module = { exports: {} };
  __kiln_cache[id] = module;
  var record = __kiln_registry[id];
  if (!record) return module.exports;
  record.factory.call(module.exports, module, module.exports, function (spec) {
    var link = record.links[spec];
    if (!link) throw new Error("kiln: cannot find module '" + spec + "' from " + id);
    if (link[1] === "external") return typeof require === "function" ? require(link[0]) : {};
    var exports = __kiln_require(link[0]);
    return link[1] ? __kiln_shims[link[0] + "|" + link[1]](exports) : exports;
  });
  return module.exports;
}
`

// link is one row of a module's link table.
type link struct {
	Specifier string
	Module    string
	Interop   string
}

// writeRecord wraps transformed module code into a registry record.
func writeRecord(b *strings.Builder, id string, links []link, code string) {
	b.WriteString("__kiln_define(")
	b.WriteString(strconv.Quote(id))
	b.WriteString(", {")
	for i, l := range links {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n  ")
		b.WriteString(strconv.Quote(l.Specifier))
		b.WriteString(": [")
		b.WriteString(strconv.Quote(l.Module))
		b.WriteString(", ")
		if l.Interop == linkDirect {
			b.WriteString("null")
		} else {
			b.WriteString(strconv.Quote(l.Interop))
		}
		b.WriteString("]")
	}
	if len(links) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("}, function (module, exports, require) {\n")
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("});\n")
}

// linksOf builds the link table of a module from its surfaces. The first
// import of a specifier wins.
func linksOf(surfaces []linkSurface) []link {
	out := make([]link, 0, len(surfaces))
	seen := make(map[string]bool, len(surfaces))
	for _, s := range surfaces {
		if seen[s.Specifier] {
			continue
		}
		seen[s.Specifier] = true
		out = append(out, link{Specifier: s.Specifier, Module: s.Module, Interop: s.Interop})
	}
	slices.SortFunc(out, func(a, b link) int {
		return strings.Compare(a.Specifier, b.Specifier)
	})
	return out
}

// writeBootstrap ends a chunk by requiring its entry and exposing the
// entry's exports in the target format.
func writeBootstrap(b *strings.Builder, entry string, format domain.ModuleFormat) {
	call := "__kiln_require(" + strconv.Quote(entry) + ")"
	switch format {
	case domain.FormatCJS:
		b.WriteString("module.exports = " + call + ";\n")
	default:
		b.WriteString("export default " + call + ";\n")
	}
}
