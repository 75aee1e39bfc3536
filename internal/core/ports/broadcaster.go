package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// Broadcaster pushes HMR messages to connected dev clients.
//
//go:generate mockgen -source=broadcaster.go -destination=mocks/mock_broadcaster.go -package=mocks
type Broadcaster interface {
	Broadcast(ctx context.Context, msg domain.HMRMessage) error
	// Clients returns the number of connected clients.
	Clients() int
}
