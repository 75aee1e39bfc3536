package cas

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the artifact store opener Graft node.
const NodeID graft.ID = "adapter.artifact_store"

// Opener opens the artifact store of a project root.
type Opener struct{}

// Open implements ports.StoreOpener.
func (Opener) Open(root string) (ports.ArtifactStore, error) {
	return Open(root)
}

func init() {
	graft.Register(graft.Node[ports.StoreOpener]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.StoreOpener, error) {
			return Opener{}, nil
		},
	})
}
