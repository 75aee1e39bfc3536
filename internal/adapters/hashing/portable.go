package hashing

import (
	"bytes"
	"encoding/hex"

	"go.trai.ch/kiln/internal/core/ports"
	"lukechampine.com/blake3"
)

var _ ports.Hasher = (*Portable)(nil)

// Portable is the reference hasher: it renders the canonical text into a
// buffer and digests the buffer in one call.
type Portable struct{}

// NewPortable creates a new Portable hasher.
func NewPortable() *Portable {
	return &Portable{}
}

// Canonical returns the canonical serialization of v.
func (Portable) Canonical(v any) ([]byte, error) {
	tree, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	cw := &writer{w: &buf}
	if err := cw.value(tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalHash returns the BLAKE3-256 digest of the canonical serialization of v.
func (p Portable) CanonicalHash(v any) (string, error) {
	data, err := p.Canonical(v)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
