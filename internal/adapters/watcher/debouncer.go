// Package watcher implements file system watching and change batching for
// the dev loop.
package watcher

import (
	"sync"
	"time"
	"unique"

	"go.trai.ch/kiln/internal/core/domain"
)

// Debouncer coalesces rapid file system events into one sorted change batch.
type Debouncer struct {
	mu sync.Mutex
	// pending maps each path to whether its latest event removed it.
	pending  map[unique.Handle[string]]bool
	timer    *time.Timer
	window   time.Duration
	callback func(batch domain.ChangeBatch)
}

// NewDebouncer creates a new debouncer with the given time window and callback.
func NewDebouncer(window time.Duration, callback func(batch domain.ChangeBatch)) *Debouncer {
	return &Debouncer{
		pending:  make(map[unique.Handle[string]]bool),
		window:   window,
		callback: callback,
	}
}

// Add records a change to path. The latest event for a path wins.
func (d *Debouncer) Add(path string, removed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[unique.Make(path)] = removed

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// drain returns the pending set as a batch and clears it. Callers hold d.mu.
func (d *Debouncer) drain() domain.ChangeBatch {
	var changed, removed []string
	for handle, gone := range d.pending {
		if gone {
			removed = append(removed, handle.Value())
		} else {
			changed = append(changed, handle.Value())
		}
	}
	d.pending = make(map[unique.Handle[string]]bool)
	return domain.NewChangeBatch(changed, removed)
}

// fire is called when the debounce window expires.
func (d *Debouncer) fire() {
	d.mu.Lock()

	// Flush may have drained the set already.
	if len(d.pending) == 0 {
		d.timer = nil
		d.mu.Unlock()
		return
	}

	batch := d.drain()
	d.timer = nil
	d.mu.Unlock()

	if d.callback != nil {
		go d.callback(batch)
	}
}

// Flush immediately hands all pending paths to the callback and blocks until
// the callback returns.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		if !d.timer.Stop() {
			// Timer already fired, let it complete rather than processing twice.
			d.mu.Unlock()
			return
		}
		d.timer = nil
	}

	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := d.drain()
	d.mu.Unlock()

	if d.callback != nil {
		d.callback(batch)
	}
}
