package transform

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

const (
	// TransformerNodeID is the unique identifier for the transformer Graft node.
	TransformerNodeID graft.ID = "adapter.transformer"
	// BuiltinsNodeID is the unique identifier for the native plugin loader Graft node.
	BuiltinsNodeID graft.ID = "adapter.native_plugins"
)

func init() {
	graft.Register(graft.Node[ports.Transformer]{
		ID:        TransformerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Transformer, error) {
			return NewPassthrough(), nil
		},
	})

	graft.Register(graft.Node[ports.NativeLoader]{
		ID:        BuiltinsNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.NativeLoader, error) {
			return NewBuiltins(), nil
		},
	})
}
