package interop_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/interop"
)

func TestGenerateInteropWrapper_Golden(t *testing.T) {
	tests := []struct {
		name    string
		exports domain.ExportMap
		target  domain.ModuleFormat
	}{
		{
			name:    "wrapper_esm_dynamic",
			exports: domain.ConservativeExportMap(),
			target:  domain.FormatESM,
		},
		{
			name:    "wrapper_esm_live",
			exports: domain.ExportMap{Named: []string{"b", "a", "default"}, LiveBindings: true},
			target:  domain.FormatESM,
		},
		{
			name:    "wrapper_cjs_live",
			exports: domain.ExportMap{Named: []string{"increment", "count"}, HasDefault: true, LiveBindings: true},
			target:  domain.FormatCJS,
		},
		{
			name:    "wrapper_cjs_star",
			exports: domain.ExportMap{Named: []string{"a"}, LiveBindings: true, StarReexports: []string{"./b.js"}},
			target:  domain.FormatCJS,
		},
		{
			name:    "wrapper_cjs_default_only",
			exports: domain.ExportMap{HasDefault: true, LiveBindings: true},
			target:  domain.FormatCJS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := interop.GenerateInteropWrapper(tt.exports, tt.target)
			assert.True(t, ok)

			g := goldie.New(t)
			g.Assert(t, tt.name, []byte(code))
		})
	}
}

func TestGenerateInteropWrapper_StaticSurfaceNeedsNoShim(t *testing.T) {
	static := domain.ExportMap{
		Named:         []string{"a", "b"},
		HasDefault:    true,
		Reexports:     map[string]string{"b": "./b.js"},
		StarReexports: []string{"./c.js"},
	}

	for _, target := range []domain.ModuleFormat{domain.FormatESM, domain.FormatCJS} {
		code, ok := interop.GenerateInteropWrapper(static, target)
		assert.False(t, ok)
		assert.Empty(t, code)
	}
}

func TestGenerateInteropWrapper_DefaultOnlyRequireStaysLive(t *testing.T) {
	code, ok := interop.GenerateInteropWrapper(domain.ExportMap{HasDefault: true, LiveBindings: true}, domain.FormatCJS)
	assert.True(t, ok)
	assert.NotContains(t, code, "return ns.default;")
	assert.Contains(t, code, `Object.defineProperty(out, "default", { enumerable: true, get: function () { return ns["default"]; } });`)
}

func TestGenerateInteropWrapper_Deterministic(t *testing.T) {
	a := domain.ExportMap{Named: []string{"x", "y", "x"}, LiveBindings: true}
	b := domain.ExportMap{Named: []string{"y", "x"}, LiveBindings: true}

	codeA, _ := interop.GenerateInteropWrapper(a, domain.FormatCJS)
	codeB, _ := interop.GenerateInteropWrapper(b, domain.FormatCJS)
	assert.Equal(t, codeA, codeB)
}

func TestRequiresInterop(t *testing.T) {
	cjsStatic := domain.ExportMap{Named: []string{"parse", "stringify"}}
	esmDefaultOnly := domain.ExportMap{Named: []string{}, HasDefault: true}
	esmNamed := domain.ExportMap{Named: []string{"a"}, HasDefault: true}
	esmLive := domain.ExportMap{Named: []string{"count"}, LiveBindings: true}

	tests := []struct {
		name     string
		ref      domain.ImportRef
		exports  domain.ExportMap
		importee domain.ModuleFormat
		importer domain.ModuleFormat
		want     bool
	}{
		{
			name:     "esm named import of declared cjs export",
			ref:      domain.ImportRef{Kind: domain.ImportStatic, Names: []string{"parse"}},
			exports:  cjsStatic,
			importee: domain.FormatCJS,
			importer: domain.FormatESM,
		},
		{
			name:     "esm named import missing from cjs surface",
			ref:      domain.ImportRef{Kind: domain.ImportStatic, Names: []string{"missing"}},
			exports:  cjsStatic,
			importee: domain.FormatCJS,
			importer: domain.FormatESM,
			want:     true,
		},
		{
			name:     "esm default import of cjs without default",
			ref:      domain.ImportRef{Kind: domain.ImportStatic, Default: true},
			exports:  cjsStatic,
			importee: domain.FormatCJS,
			importer: domain.FormatESM,
			want:     true,
		},
		{
			name:     "esm namespace import of cjs",
			ref:      domain.ImportRef{Kind: domain.ImportStatic, Namespace: true},
			exports:  cjsStatic,
			importee: domain.FormatCJS,
			importer: domain.FormatESM,
			want:     true,
		},
		{
			name:     "esm import of dynamic cjs",
			ref:      domain.ImportRef{Kind: domain.ImportStatic, Names: []string{"parse"}},
			exports:  domain.ConservativeExportMap(),
			importee: domain.FormatCJS,
			importer: domain.FormatESM,
			want:     true,
		},
		{
			name:     "require of default-only esm",
			ref:      domain.ImportRef{Kind: domain.ImportRequire},
			exports:  esmDefaultOnly,
			importee: domain.FormatESM,
			importer: domain.FormatCJS,
			want:     true,
		},
		{
			name:     "require of esm with live bindings",
			ref:      domain.ImportRef{Kind: domain.ImportRequire},
			exports:  esmLive,
			importee: domain.FormatESM,
			importer: domain.FormatCJS,
			want:     true,
		},
		{
			name:     "require of static esm",
			ref:      domain.ImportRef{Kind: domain.ImportRequire},
			exports:  esmNamed,
			importee: domain.FormatESM,
			importer: domain.FormatCJS,
		},
		{
			name:     "esm to esm",
			ref:      domain.ImportRef{Kind: domain.ImportStatic, Names: []string{"missing"}},
			exports:  esmLive,
			importee: domain.FormatESM,
			importer: domain.FormatESM,
		},
		{
			name:     "cjs to cjs",
			ref:      domain.ImportRef{Kind: domain.ImportRequire},
			exports:  domain.ConservativeExportMap(),
			importee: domain.FormatCJS,
			importer: domain.FormatCJS,
		},
		{
			name:     "json never needs a shim",
			ref:      domain.ImportRef{Kind: domain.ImportStatic, Names: []string{"name"}},
			exports:  domain.ExportMap{HasDefault: true},
			importee: domain.FormatJSON,
			importer: domain.FormatESM,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := interop.RequiresInterop(tt.ref, tt.exports, tt.importee, tt.importer)
			assert.Equal(t, tt.want, got)
		})
	}
}
