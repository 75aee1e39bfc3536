package interop

import (
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
)

// RequiresInterop reports whether the shape an importer expects differs from
// the shape the importee provides: a CommonJS module consumed through ESM
// bindings it does not statically declare, or an ES module consumed through
// require.
func RequiresInterop(ref domain.ImportRef, importee domain.ExportMap, importeeFormat, importerFormat domain.ModuleFormat) bool {
	if importeeFormat == domain.FormatJSON {
		return false
	}
	viaRequire := ref.Kind == domain.ImportRequire || importerFormat == domain.FormatCJS

	switch {
	case importeeFormat == domain.FormatCJS && !viaRequire:
		if importee.IsDynamic || ref.Namespace {
			return true
		}
		if ref.Default && !importee.HasNamed("default") {
			return true
		}
		return slices.ContainsFunc(ref.Names, func(name string) bool {
			return !importee.HasNamed(name)
		})
	case importeeFormat == domain.FormatESM && viaRequire:
		if importee.LiveBindings || importee.IsDynamic {
			return true
		}
		return importee.HasDefault && len(importee.Named) == 0 && len(importee.StarReexports) == 0
	default:
		return false
	}
}

// GenerateInteropWrapper returns a shim that presents a module with the
// given export surface to a consumer of targetFormat. A shim is only needed
// when exports are dynamic or live: static surfaces, re-exports included,
// are linked directly so unused exports stay removable.
func GenerateInteropWrapper(exports domain.ExportMap, targetFormat domain.ModuleFormat) (string, bool) {
	if !exports.IsDynamic && !exports.LiveBindings {
		return "", false
	}

	var b strings.Builder
	switch targetFormat {
	case domain.FormatCJS:
		writeRequireShim(&b, exports)
	default:
		writeImportShim(&b, exports)
	}
	return b.String(), true
}

// writeImportShim presents module.exports as an ES namespace whose bindings
// read through to the live exports object.
func writeImportShim(b *strings.Builder, exports domain.ExportMap) {
	b.WriteString("function (m) {\n")
	b.WriteString("  if (m && m.__esModule) return m;\n")
	b.WriteString("  var ns = Object.create(null);\n")
	if exports.IsDynamic {
		b.WriteString("  if (m != null && (typeof m === \"object\" || typeof m === \"function\")) {\n")
		b.WriteString("    Object.keys(m).forEach(function (k) {\n")
		b.WriteString("      if (k !== \"default\") Object.defineProperty(ns, k, { enumerable: true, get: function () { return m[k]; } });\n")
		b.WriteString("    });\n")
		b.WriteString("  }\n")
	} else {
		named := slices.DeleteFunc(slices.Clone(exports.Named), func(name string) bool { return name == "default" })
		writeGetters(b, "ns", "m", named)
	}
	b.WriteString("  Object.defineProperty(ns, \"default\", { enumerable: true, get: function () { return m; } });\n")
	b.WriteString("  return Object.freeze(ns);\n")
	b.WriteString("}")
}

// writeRequireShim presents an ES namespace to require() callers, keeping
// live bindings live instead of copying values once. A default-only module
// is returned as an object too, so its default stays live.
func writeRequireShim(b *strings.Builder, exports domain.ExportMap) {
	b.WriteString("function (ns) {\n")
	b.WriteString("  var out = {};\n")
	b.WriteString("  Object.defineProperty(out, \"__esModule\", { value: true });\n")
	if exports.IsDynamic || len(exports.StarReexports) > 0 {
		b.WriteString("  Object.keys(ns).forEach(function (k) {\n")
		b.WriteString("    Object.defineProperty(out, k, { enumerable: true, get: function () { return ns[k]; } });\n")
		b.WriteString("  });\n")
	} else {
		names := slices.Clone(exports.Named)
		if exports.HasDefault {
			names = append(names, "default")
		}
		writeGetters(b, "out", "ns", names)
	}
	b.WriteString("  return out;\n")
	b.WriteString("}")
}

func writeGetters(b *strings.Builder, dst, src string, names []string) {
	for _, name := range slices.Compact(slices.Sorted(slices.Values(names))) {
		key := strconv.Quote(name)
		b.WriteString("  Object.defineProperty(" + dst + ", " + key + ", { enumerable: true, get: function () { return " + src + "[" + key + "]; } });\n")
	}
}
