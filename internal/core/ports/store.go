package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// ArtifactStore persists build artifacts keyed by their input hash.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type ArtifactStore interface {
	// Get returns the artifact stored under key, or domain.ErrCacheMiss.
	Get(ctx context.Context, key string) (*domain.BuildArtifact, error)

	// Put stores the artifact under its input hash. Writes are atomic and an
	// existing entry is never overwritten.
	Put(ctx context.Context, artifact *domain.BuildArtifact) error

	// Delete evicts the entry stored under key.
	Delete(ctx context.Context, key string) error

	// Prune evicts the least recently used entries until the store holds at
	// most maxBytes, returning the number of evicted entries.
	Prune(ctx context.Context, maxBytes int64) (int, error)

	// Close releases the store.
	Close() error
}

// StoreOpener opens the artifact store that belongs to a project root.
type StoreOpener interface {
	// Open fails with domain.ErrStoreUnavailable when the store cannot be
	// created or opened.
	Open(root string) (ArtifactStore, error)
}
