//go:build !cgo

package scan

import "go.trai.ch/kiln/internal/core/ports"

// Without cgo the tree-sitter grammar is unavailable and the portable lexer
// takes its place.
func accelerated() ports.Scanner {
	return NewLexer()
}
