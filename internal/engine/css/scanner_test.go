package css_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/css"
)

func TestScan_ImportsAndLayers(t *testing.T) {
	src := `
/* @import "commented.css"; */
@layer reset, base;
@import "./reset.css" layer(reset);
@import url('./theme.css');
@import url(./anon.css) layer;

@layer components {
  .btn { color: red; }
  @media (min-width: 40em) {
    #app .btn:hover { color: blue; }
  }
}
`
	got := css.Scan([]byte(src))

	assert.Equal(t, []domain.ImportRef{
		{Specifier: "./reset.css", Kind: domain.ImportStyle, Layer: "reset"},
		{Specifier: "./theme.css", Kind: domain.ImportStyle},
		{Specifier: "./anon.css", Kind: domain.ImportStyle, Layer: "@anonymous:./anon.css"},
	}, got.Imports)
	assert.Equal(t, []string{"reset", "base", "components"}, got.Meta.Layers)
	assert.Equal(t, "components", got.Meta.Layer)
	assert.Equal(t, 120, got.Meta.Specificity)
}

func TestScan_UnlayeredRulesHaveNoWrappingLayer(t *testing.T) {
	got := css.Scan([]byte(`@layer a { p { margin: 0 } } body { content: "}"; }`))
	assert.Equal(t, []string{"a"}, got.Meta.Layers)
	assert.Empty(t, got.Meta.Layer)
	assert.Equal(t, 1, got.Meta.Specificity)
}

func TestScan_NestedLayers(t *testing.T) {
	got := css.Scan([]byte(`@layer outer { @layer inner { a {} } @layer x, y; }`))
	assert.Equal(t, []string{"outer", "outer.inner", "outer.x", "outer.y"}, got.Meta.Layers)
}

func TestScan_Unbalanced(t *testing.T) {
	got := css.Scan([]byte(`.a { color: red; .b {`))
	assert.Equal(t, 10, got.Meta.Specificity)
	assert.Empty(t, got.Imports)
}

func TestScan_ImportsInsideBlocksAreIgnored(t *testing.T) {
	got := css.Scan([]byte(`@media print { @import "print.css"; }`))
	assert.Empty(t, got.Imports)
}

func TestSelectorSpecificity(t *testing.T) {
	tests := []struct {
		selector string
		want     int
	}{
		{"*", 0},
		{"p", 1},
		{"ul li", 2},
		{".btn", 10},
		{"a:hover", 11},
		{"p::before", 2},
		{"p:before", 2},
		{"input[type=\"text\"]", 11},
		{"#nav .item > a", 111},
		{":where(#x) a", 1},
		{":not(#x)", 100},
		{":is(.a, #b) span", 101},
		{"h1, .title, #main", 100},
		{"li:nth-child(2n+1)", 11},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, css.SelectorSpecificity(tt.selector), tt.selector)
	}
}

func TestStripImports(t *testing.T) {
	src := "@charset \"utf-8\";\n@import url(\"a;b.css\") layer(x);\n@IMPORT './c.css';\n" +
		"/* @import \"kept-comment.css\"; */\n@media print {\n  @import \"nested.css\";\n}\n.a { content: \"@import\"; }\n"

	got := css.StripImports([]byte(src))

	assert.Equal(t, "/* @import \"kept-comment.css\"; */\n@media print {\n  @import \"nested.css\";\n}\n.a { content: \"@import\"; }\n", got)
}
