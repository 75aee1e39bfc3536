package domain

import "slices"

// ChangeBatch is a deduplicated, sorted set of changed files.
type ChangeBatch struct {
	Paths []string `json:"paths"`
	// Removed lists the paths of Paths that no longer exist.
	Removed []string `json:"removed,omitempty"`
}

// NewChangeBatch builds a normalized batch from raw paths.
func NewChangeBatch(paths []string, removed []string) ChangeBatch {
	all := slices.Concat(paths, removed)
	return ChangeBatch{
		Paths:   slices.Compact(slices.Sorted(slices.Values(all))),
		Removed: slices.Compact(slices.Sorted(slices.Values(removed))),
	}
}

// Merge returns the superset of b and other.
// A path removed in one batch and rewritten in the later one counts as present.
func (b ChangeBatch) Merge(later ChangeBatch) ChangeBatch {
	removed := slices.DeleteFunc(slices.Clone(b.Removed), func(p string) bool {
		return slices.Contains(later.Paths, p) && !slices.Contains(later.Removed, p)
	})
	return NewChangeBatch(slices.Concat(b.Paths, later.Paths), slices.Concat(removed, later.Removed))
}

// Empty reports whether the batch has no paths.
func (b ChangeBatch) Empty() bool {
	return len(b.Paths) == 0
}

// IsRemoved reports whether path was deleted.
func (b ChangeBatch) IsRemoved(path string) bool {
	_, found := slices.BinarySearch(b.Removed, path)
	return found
}

// BoundaryClass is the classification of one update boundary.
type BoundaryClass string

const (
	// BoundarySafe can be hot-swapped in place.
	BoundarySafe BoundaryClass = "safe"
	// BoundaryUnsafe can be hot-swapped but loses its in-memory state.
	BoundaryUnsafe BoundaryClass = "unsafe"
	// BoundaryReload cannot be updated without a full reload.
	BoundaryReload BoundaryClass = "reload-required"
)

// Severity orders classes from least to most conservative.
func (c BoundaryClass) Severity() int {
	switch c {
	case BoundarySafe:
		return 0
	case BoundaryUnsafe:
		return 1
	default:
		return 2
	}
}

// Boundary is a module where update propagation stopped.
type Boundary struct {
	Module string        `json:"module"`
	Class  BoundaryClass `json:"class"`
	Reason string        `json:"reason"`
}

// Decision is the overall outcome of classifying a change batch.
type Decision string

const (
	// DecisionHotUpdate applies the affected modules in place.
	DecisionHotUpdate Decision = "hot-update"
	// DecisionReload reloads the whole application.
	DecisionReload Decision = "reload"
)

// HMRDecisionTrace records how a change batch was classified.
type HMRDecisionTrace struct {
	ChangeSet []string `json:"changeSet"`
	// AffectedModules is ordered dependency-first.
	AffectedModules []string   `json:"affectedModules"`
	Boundaries      []Boundary `json:"boundaries"`
	Decision        Decision   `json:"decision"`
	// Unsafe lists the boundaries that will lose state under a hot update.
	Unsafe []string `json:"unsafe,omitempty"`
	// Ambiguous lists modules reached through paths with differing classifications.
	Ambiguous []string `json:"ambiguous,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// MessageType is the type of an HMR wire message.
type MessageType string

const (
	// MessageConnected greets a new client.
	MessageConnected MessageType = "connected"
	// MessageUpdate carries modules to hot-swap.
	MessageUpdate MessageType = "update"
	// MessageReload asks the client to reload.
	MessageReload MessageType = "reload"
	// MessageError reports a failed rebuild.
	MessageError MessageType = "error"
	// MessageStatus reports build progress.
	MessageStatus MessageType = "status"
)

// HMRMessage is pushed to connected dev clients.
type HMRMessage struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// ConnectedPayload is the payload of a connected message.
type ConnectedPayload struct {
	Version string `json:"version"`
}

// UpdatePayload is the payload of an update message.
type UpdatePayload struct {
	Modules    []string   `json:"modules"`
	Boundaries []Boundary `json:"boundaries"`
	Unsafe     []string   `json:"unsafe,omitempty"`
	Timestamp  int64      `json:"timestamp"`
}

// ReloadPayload is the payload of a reload message.
type ReloadPayload struct {
	Reason string   `json:"reason"`
	Paths  []string `json:"paths,omitempty"`
}

// ErrorPayload is the payload of an error message.
type ErrorPayload struct {
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// StatusPayload is the payload of a status message.
type StatusPayload struct {
	State    string  `json:"state"`
	RunID    string  `json:"runId,omitempty"`
	HitRatio float64 `json:"hitRatio,omitempty"`
}
