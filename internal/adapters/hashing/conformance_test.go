package hashing_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/hashing"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

type namedHasher struct {
	name   string
	hasher ports.Hasher
}

func implementations() []namedHasher {
	return []namedHasher{
		{name: "portable", hasher: hashing.NewPortable()},
		{name: "streaming", hasher: hashing.NewStreaming()},
	}
}

func conformanceCorpus() map[string]any {
	return map[string]any{
		"nil":          nil,
		"bool":         true,
		"int":          -42,
		"uint64 max":   uint64(1<<64 - 1),
		"int64 min":    int64(-1 << 63),
		"float32":      float32(0.1),
		"float64":      0.1,
		"float 1e19":   1e19,
		"float 1e20":   1e20,
		"tiny float":   1e-9,
		"json number":  json.Number("3.0"),
		"string":       "héllo\t\"world\"",
		"invalid utf8": "a\xffb",
		"empty slice":  []any{},
		"nil slice":    []any(nil),
		"strings":      []string{"b", "a"},
		"nested": map[string]any{
			"z":     []any{map[string]any{"b": 1, "a": nil}},
			"a":     map[string]string{"y": "1", "x": "2"},
			"empty": map[string]any{},
			"nil":   map[string]any(nil),
		},
		"bad keys": map[string]any{"a\xff": 1, "a\xfe": 2},
		"struct": manifest{
			Name:   "plugin",
			Hooks:  []string{"transform-content"},
			Extra:  map[string]string{"k": "v"},
			Parent: &manifest{Name: "base"},
		},
		"export map": domain.ExportMap{
			Named:      []string{"a", "b"},
			HasDefault: true,
			Reexports:  map[string]string{"./x": "x"},
		},
		"hook output": domain.TransformOutput{Code: "export default 1"},
		"bytes":       []byte{0, 1, 2},
		"mixed":       []any{1, "1", 1.0, []string(nil), map[string]any{"k": []byte("v")}},
	}
}

func TestHashers_Conformance(t *testing.T) {
	portable := hashing.NewPortable()
	streaming := hashing.NewStreaming()

	for name, value := range conformanceCorpus() {
		t.Run(name, func(t *testing.T) {
			want, err := portable.CanonicalHash(value)
			require.NoError(t, err)

			got, err := streaming.CanonicalHash(value)
			require.NoError(t, err)

			assert.Equal(t, want, got)
		})
	}
}

func TestStreaming_Reuse(t *testing.T) {
	s := hashing.NewStreaming()
	first, err := s.CanonicalHash(map[string]any{"a": 1})
	require.NoError(t, err)

	_, err = s.CanonicalHash([]any{"something", "else"})
	require.NoError(t, err)

	again, err := s.CanonicalHash(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, first, again)
}
