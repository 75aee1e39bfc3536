package hmr

import (
	"context"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
)

// RunFunc handles one merged change batch.
type RunFunc func(ctx context.Context, batch domain.ChangeBatch)

// Batcher serializes runs: batches submitted while no run has picked them up
// merge into one superset, and at most one run is active at a time.
type Batcher struct {
	run  RunFunc
	wake chan struct{}

	mu      sync.Mutex
	pending domain.ChangeBatch
	runs    int
}

// NewBatcher creates a Batcher handing merged batches to run.
func NewBatcher(run RunFunc) *Batcher {
	return &Batcher{
		run:  run,
		wake: make(chan struct{}, 1),
	}
}

// Submit queues batch, merging it with any batch not yet picked up.
func (b *Batcher) Submit(batch domain.ChangeBatch) {
	if batch.Empty() {
		return
	}
	b.mu.Lock()
	b.pending = b.pending.Merge(batch)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Pending returns the batch waiting for the next run.
func (b *Batcher) Pending() domain.ChangeBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Runs returns how many runs have started.
func (b *Batcher) Runs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runs
}

// Run processes batches until ctx is cancelled.
func (b *Batcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.wake:
		}

		b.mu.Lock()
		batch := b.pending
		b.pending = domain.ChangeBatch{}
		if !batch.Empty() {
			b.runs++
		}
		b.mu.Unlock()

		if batch.Empty() {
			continue
		}
		b.run(ctx, batch)
	}
}
