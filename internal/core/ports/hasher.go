// Package ports defines the core interfaces for the application.
package ports

// Hasher computes canonical hashes of structured values.
// Two values hash equal exactly when their canonical serializations are equal.
//
//go:generate mockgen -destination=mocks/hasher_mock.go -package=mocks -source=hasher.go
type Hasher interface {
	// CanonicalHash returns the hex digest of the canonical serialization of v.
	CanonicalHash(v any) (string, error)
}

// ContentHasher fingerprints raw file content.
type ContentHasher interface {
	// HashBytes returns a short fingerprint of content.
	HashBytes(content []byte) string
}
