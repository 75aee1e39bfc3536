// Package report collects the explain records of one builder and assembles
// build reports from them.
package report

import (
	"sync"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

// Collector gathers the events of one builder. Every builder owns its own
// collector so independent builds in one process never share records.
type Collector struct {
	logger  ports.Logger
	verbose bool
	now     func() time.Time

	mu     sync.Mutex
	events []domain.Event
}

// NewCollector creates a Collector. Warnings are always logged; info and
// debug records only when verbose is set.
func NewCollector(logger ports.Logger, verbose bool) *Collector {
	return &Collector{
		logger:  logger,
		verbose: verbose,
		now:     time.Now,
	}
}

// SetClock overrides the timestamp source.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Emit records an event.
func (c *Collector) Emit(e domain.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = c.now()
	}

	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()

	c.log(e)
}

// EmitAll records events in order.
func (c *Collector) EmitAll(events []domain.Event) {
	for _, e := range events {
		c.Emit(e)
	}
}

// Events returns a copy of the recorded events.
func (c *Collector) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Drain returns the recorded events and clears the collector.
func (c *Collector) Drain() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

func (c *Collector) log(e domain.Event) {
	if c.logger == nil {
		return
	}
	if e.Level < domain.LogLevelWarn && !c.verbose {
		return
	}

	args := make([]any, 0, 4+2*len(e.Data))
	args = append(args, "stage", e.Stage, "decision", e.Decision)
	for _, k := range sortedKeys(e.Data) {
		args = append(args, k, e.Data[k])
	}
	if e.Level >= domain.LogLevelWarn {
		c.logger.Warn(e.Reason, args...)
		return
	}
	c.logger.Info(e.Reason, args...)
}
