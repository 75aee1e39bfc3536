package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// Transformer compiles a single module. It must be a pure function of its inputs.
//
//go:generate mockgen -source=transformer.go -destination=mocks/mock_transformer.go -package=mocks
type Transformer interface {
	Transform(ctx context.Context, code []byte, path string, target domain.Target) ([]byte, error)
}
