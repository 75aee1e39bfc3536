package ports

import "go.trai.ch/kiln/internal/core/domain"

// EventSink receives explain records.
type EventSink interface {
	Emit(e domain.Event)
}
