package interop

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/scan"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the interop analyzer Graft node.
const NodeID graft.ID = "engine.interop"

func init() {
	graft.Register(graft.Node[*Analyzer]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{scan.NodeID},
		Run: func(ctx context.Context) (*Analyzer, error) {
			scanner, err := graft.Dep[ports.Scanner](ctx)
			if err != nil {
				return nil, err
			}
			return NewAnalyzer(scanner), nil
		},
	})
}
