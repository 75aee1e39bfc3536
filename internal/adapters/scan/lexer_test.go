package scan_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/scan"
	"go.trai.ch/kiln/internal/core/domain"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestLexer_Fixtures(t *testing.T) {
	tests := []struct {
		file string
		want domain.ScanResult
	}{
		{
			file: "fixtures/esm_imports.js",
			want: domain.ScanResult{
				Imports: []domain.ImportRef{
					{Specifier: "react", Kind: domain.ImportStatic, Default: true},
					{Specifier: "node:path", Kind: domain.ImportStatic, Namespace: true},
					{Specifier: "./io.js", Kind: domain.ImportStatic, Names: []string{"readFile", "writeFile"}},
					{Specifier: "./mixed.js", Kind: domain.ImportStatic, Default: true, Names: []string{"a"}},
					{Specifier: "./side-effect.css", Kind: domain.ImportStatic},
					{Specifier: "./lazy.js", Kind: domain.ImportDynamic},
				},
				Exports: domain.ExportMap{Named: []string{}},
				HasESM:  true,
			},
		},
		{
			file: "fixtures/esm_exports.js",
			want: domain.ScanResult{
				Imports: []domain.ImportRef{
					{Specifier: "./data.js", Kind: domain.ImportDynamic},
				},
				Exports: domain.ExportMap{
					Named:        []string{"Widget", "answer", "counter", "increment", "load", "question", "visible"},
					HasDefault:   true,
					LiveBindings: true,
				},
				HasESM: true,
			},
		},
		{
			file: "fixtures/reexports.js",
			want: domain.ScanResult{
				Imports: []domain.ImportRef{
					{Specifier: "./all.js", Kind: domain.ImportStatic, Namespace: true},
					{Specifier: "./some.js", Kind: domain.ImportStatic, Names: []string{"a", "b"}},
				},
				Exports: domain.ExportMap{
					Named:         []string{"a", "c"},
					Reexports:     map[string]string{"a": "./some.js", "c": "./some.js"},
					StarReexports: []string{"./all.js"},
				},
				HasESM: true,
			},
		},
		{
			file: "fixtures/commonjs.js",
			want: domain.ScanResult{
				Imports: []domain.ImportRef{
					{Specifier: "fs", Kind: domain.ImportRequire},
					{Specifier: "path", Kind: domain.ImportRequire},
				},
				Exports: domain.ExportMap{Named: []string{"helper", "version"}},
				HasCJS:  true,
			},
		},
		{
			file: "fixtures/commonjs_default.js",
			want: domain.ScanResult{
				Imports: []domain.ImportRef{{Specifier: "./lib", Kind: domain.ImportRequire}},
				Exports: domain.ExportMap{Named: []string{}, HasDefault: true},
				HasCJS:  true,
			},
		},
		{
			file: "fixtures/commonjs_dynamic.js",
			want: domain.ScanResult{
				Exports: domain.ExportMap{Named: []string{}, IsDynamic: true},
				HasCJS:  true,
			},
		},
		{
			file: "fixtures/hot.js",
			want: domain.ScanResult{
				Imports: []domain.ImportRef{{Specifier: "./render.js", Kind: domain.ImportStatic, Names: []string{"render"}}},
				Exports: domain.ExportMap{Named: []string{}},
				HasESM:  true,
				Hot:     domain.HotFlags{Accepts: true, Disposes: true},
			},
		},
		{
			file: "fixtures/templates.js",
			want: domain.ScanResult{
				Imports: []domain.ImportRef{{Specifier: "./inner.js", Kind: domain.ImportRequire}},
				Exports: domain.ExportMap{Named: []string{"base", "nested", "ratio"}},
				HasESM:  true,
				HasCJS:  true,
			},
		},
		{
			file: "fixtures/comments.js",
			want: domain.ScanResult{
				Exports: domain.ExportMap{Named: []string{"real"}},
				HasESM:  true,
			},
		},
	}

	lexer := scan.NewLexer()
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got, err := lexer.Scan(readFixture(t, tt.file))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestLexer_Snippets(t *testing.T) {
	lexer := scan.NewLexer()

	t.Run("export star as namespace", func(t *testing.T) {
		got, err := lexer.Scan([]byte(`export * as utils from './utils.js';`))
		require.NoError(t, err)
		assert.Equal(t, []string{"utils"}, got.Exports.Named)
		assert.Equal(t, map[string]string{"utils": "./utils.js"}, got.Exports.Reexports)
		require.Len(t, got.Imports, 1)
		assert.True(t, got.Imports[0].Namespace)
	})

	t.Run("default through clause", func(t *testing.T) {
		got, err := lexer.Scan([]byte("const a = 1;\nexport { a as default };"))
		require.NoError(t, err)
		assert.True(t, got.Exports.HasDefault)
		assert.Empty(t, got.Exports.Named)
	})

	t.Run("property keys are not statements", func(t *testing.T) {
		got, err := lexer.Scan([]byte(`const o = { import: 1, export: 2, require: 3 }; o.require('x');`))
		require.NoError(t, err)
		assert.Empty(t, got.Imports)
		assert.False(t, got.HasESM)
		assert.False(t, got.HasCJS)
	})

	t.Run("webpack hot api", func(t *testing.T) {
		got, err := lexer.Scan([]byte(`if (module.hot) { module.hot.accept(); }`))
		require.NoError(t, err)
		assert.True(t, got.Hot.Accepts)
		assert.False(t, got.Hot.Disposes)
	})

	t.Run("optional chaining on hot api", func(t *testing.T) {
		got, err := lexer.Scan([]byte(`import.meta.hot?.accept();`))
		require.NoError(t, err)
		assert.True(t, got.Hot.Accepts)
		assert.True(t, got.HasESM)
	})

	t.Run("regex after keyword", func(t *testing.T) {
		got, err := lexer.Scan([]byte("function f(s) {\n  return /'/.test(s);\n}\nexport { f };"))
		require.NoError(t, err)
		assert.Equal(t, []string{"f"}, got.Exports.Named)
	})

	t.Run("shebang", func(t *testing.T) {
		got, err := lexer.Scan([]byte("#!/usr/bin/env node\nrequire('./cli.js');"))
		require.NoError(t, err)
		require.Len(t, got.Imports, 1)
		assert.Equal(t, "./cli.js", got.Imports[0].Specifier)
	})

	t.Run("comparison is not assignment", func(t *testing.T) {
		got, err := lexer.Scan([]byte(`if (exports.a === 1) {}`))
		require.NoError(t, err)
		assert.Empty(t, got.Exports.Named)
		assert.False(t, got.HasCJS)
	})
}

func TestLexer_Broken(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "unbalanced brackets", src: "export function f( {\n}"},
		{name: "stray closer", src: "const a = 1; }"},
		{name: "unterminated string", src: "const s = 'abc;\n"},
		{name: "unterminated comment", src: "/* never closed"},
		{name: "unterminated template", src: "const t = `abc ${x}"},
		{name: "unterminated regex", src: "const r = /abc\n"},
	}

	lexer := scan.NewLexer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lexer.Scan([]byte(tt.src))
			require.ErrorContains(t, err, domain.ErrScanFailed.Error())
		})
	}
}
