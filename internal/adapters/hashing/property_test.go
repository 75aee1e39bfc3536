package hashing_test

import (
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.trai.ch/kiln/internal/adapters/hashing"
)

func TestCanonicalHashProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	portable := hashing.NewPortable()
	streaming := hashing.NewStreaming()

	properties.Property("insertion order never changes the hash", prop.ForAll(
		func(keys []string, values []int) bool {
			forward := make(map[string]any)
			backward := make(map[string]any)
			n := min(len(keys), len(values))
			for i := range n {
				forward[keys[i]] = values[i]
			}
			for i := n - 1; i >= 0; i-- {
				if _, ok := backward[keys[i]]; !ok {
					backward[keys[i]] = forward[keys[i]]
				}
			}
			h1, err1 := portable.CanonicalHash(forward)
			h2, err2 := portable.CanonicalHash(backward)
			return err1 == nil && err2 == nil && h1 == h2
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Int()),
	))

	properties.Property("array order changes the hash", prop.ForAll(
		func(values []int) bool {
			reversed := slices.Clone(values)
			slices.Reverse(reversed)
			if slices.Equal(values, reversed) {
				return true
			}
			h1, err1 := portable.CanonicalHash(values)
			h2, err2 := portable.CanonicalHash(reversed)
			return err1 == nil && err2 == nil && h1 != h2
		},
		gen.SliceOf(gen.IntRange(-1000, 1000)),
	))

	properties.Property("portable and streaming agree", prop.ForAll(
		func(m map[string]string, xs []float64, s string) bool {
			value := map[string]any{"m": m, "xs": xs, "s": s, "list": []any{s, len(xs)}}
			h1, err1 := portable.CanonicalHash(value)
			h2, err2 := streaming.CanonicalHash(value)
			return err1 == nil && err2 == nil && h1 == h2
		},
		gen.MapOf(gen.AnyString(), gen.AnyString()),
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
