//go:build cgo

package scan

import "go.trai.ch/kiln/internal/core/ports"

func accelerated() ports.Scanner {
	return NewTreeSitter()
}
