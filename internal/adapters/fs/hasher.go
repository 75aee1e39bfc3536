package fs

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kiln/internal/core/ports"
)

var _ ports.ContentHasher = (*Hasher)(nil)

// Hasher fingerprints file content with XXHash.
type Hasher struct{}

// NewHasher creates a new Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// HashBytes returns the XXHash of content as 16 hex digits.
func (h *Hasher) HashBytes(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}
