// Package transform provides the default module transformer and the native
// plugins compiled into kiln.
package transform

import (
	"context"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

var _ ports.Transformer = (*Passthrough)(nil)

// Passthrough leaves module code as written apart from the target's
// compile-time defines. Real compilers plug in behind ports.Transformer.
type Passthrough struct{}

// NewPassthrough creates a new Passthrough transformer.
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

// Transform applies target.Define to code.
func (Passthrough) Transform(ctx context.Context, code []byte, _ string, target domain.Target) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(target.Define) == 0 {
		return code, nil
	}
	return []byte(ReplaceDefines(string(code), target.Define)), nil
}

// ReplaceDefines substitutes every whole-identifier occurrence of a define
// key. Longer keys win over their prefixes ("process.env.NODE_ENV" before
// "process.env"), and a key is never matched inside a longer member chain.
func ReplaceDefines(code string, defines map[string]string) string {
	if len(defines) == 0 {
		return code
	}
	keys := make([]string, 0, len(defines))
	for k := range defines {
		if k != "" {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})

	var b strings.Builder
	b.Grow(len(code))
	for i := 0; i < len(code); {
		matched := false
		if i == 0 || !isChainByte(code[i-1]) {
			for _, k := range keys {
				end := i + len(k)
				if strings.HasPrefix(code[i:], k) && (end == len(code) || !isChainByte(code[end])) {
					b.WriteString(defines[k])
					i = end
					matched = true
					break
				}
			}
		}
		if !matched {
			b.WriteByte(code[i])
			i++
		}
	}
	return b.String()
}

func isChainByte(c byte) bool {
	return c == '.' || c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
