// Package cache implements the content-addressed artifact cache shared by
// every target of a builder.
package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

// Key identifies a stage result.
type Key struct {
	ModuleID string
	Stage    domain.Stage
	// Hash is the input hash, the only part the cache is keyed by.
	Hash string
}

// Computation produces the output for a missing key. Returning cacheable
// false hands the output back without committing it.
type Computation func(ctx context.Context) (out domain.Output, cacheable bool, err error)

// Stats are the lookup counters since the last reset.
type Stats struct {
	Hits     int
	Misses   int
	Bypassed int
}

// HitRatio is hits over lookups, 1 when nothing was looked up.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 1
	}
	return float64(s.Hits) / float64(total)
}

// Cache holds artifacts in memory, backed by an optional persistent store.
// Readers never block each other; at most one computation runs per key and
// concurrent requesters of a missing key share its result.
type Cache struct {
	hasher ports.Hasher
	store  ports.ArtifactStore
	events ports.EventSink

	mu      sync.RWMutex
	entries map[string]*domain.BuildArtifact
	flight  singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	bypassed atomic.Int64
}

// New creates a Cache. store and events may be nil.
func New(hasher ports.Hasher, store ports.ArtifactStore, events ports.EventSink) *Cache {
	return &Cache{
		hasher:  hasher,
		store:   store,
		events:  events,
		entries: make(map[string]*domain.BuildArtifact),
	}
}

// Get returns the artifact stored under key. Corrupted entries are evicted
// and reported as misses.
func (c *Cache) Get(ctx context.Context, key Key) (*domain.BuildArtifact, bool, error) {
	c.mu.RLock()
	a, ok := c.entries[key.Hash]
	c.mu.RUnlock()
	if ok {
		if c.verify(ctx, key, a) {
			return a, true, nil
		}
		return nil, false, nil
	}

	if c.store == nil {
		return nil, false, nil
	}
	a, err := c.store.Get(ctx, key.Hash)
	switch {
	case errors.Is(err, domain.ErrCacheMiss):
		return nil, false, nil
	case errors.Is(err, domain.ErrCacheCorruption):
		c.corrupt(ctx, key, err)
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	if !c.verify(ctx, key, a) {
		return nil, false, nil
	}

	c.mu.Lock()
	c.entries[key.Hash] = a
	c.mu.Unlock()
	return a, true, nil
}

// GetOrCompute returns the artifact under key, running compute on a miss.
// A failed or cancelled computation commits nothing.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute Computation) (*domain.BuildArtifact, bool, error) {
	if a, ok, err := c.Get(ctx, key); err != nil {
		return nil, false, err
	} else if ok {
		c.hits.Add(1)
		c.emit(key, domain.DecisionCacheHit, "cache hit", domain.LogLevelDebug)
		return a, true, nil
	}

	c.misses.Add(1)
	c.emit(key, domain.DecisionCacheMiss, "cache miss", domain.LogLevelDebug)

	v, err, _ := c.flight.Do(key.Hash, func() (any, error) {
		c.mu.RLock()
		a, ok := c.entries[key.Hash]
		c.mu.RUnlock()
		if ok {
			return a, nil
		}

		out, cacheable, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err = c.artifact(key, out)
		if err != nil {
			return nil, err
		}
		if !cacheable {
			c.bypassed.Add(1)
			c.emit(key, domain.DecisionCacheBypass, "output not cacheable", domain.LogLevelInfo)
			return a, nil
		}
		if err := c.commit(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*domain.BuildArtifact), false, nil
}

// Bypass runs compute without consulting or filling the cache.
func (c *Cache) Bypass(ctx context.Context, key Key, compute Computation) (*domain.BuildArtifact, error) {
	c.bypassed.Add(1)
	c.emit(key, domain.DecisionCacheBypass, "producer excluded from cache", domain.LogLevelInfo)
	out, _, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	return c.artifact(key, out)
}

// Evict removes the entry stored under key.
func (c *Cache) Evict(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	return c.store.Delete(ctx, key)
}

// Prune shrinks the persistent store to at most maxBytes of artifacts,
// evicting the least recently used first. Artifacts already in memory stay
// available to this process. A store-less cache or a non-positive maxBytes
// prunes nothing.
func (c *Cache) Prune(ctx context.Context, maxBytes int64) (int, error) {
	if c.store == nil || maxBytes <= 0 {
		return 0, nil
	}
	n, err := c.store.Prune(ctx, maxBytes)
	if err != nil {
		return n, zerr.With(zerr.Wrap(err, "failed to prune artifact store"), "max_bytes", maxBytes)
	}
	if n > 0 && c.events != nil {
		c.events.Emit(domain.Event{
			Stage:    "cache",
			Decision: domain.DecisionCachePruned,
			Reason:   "artifact store exceeded its size limit",
			Level:    domain.LogLevelInfo,
			Data:     map[string]any{"evicted": n, "max_bytes": maxBytes},
		})
	}
	return n, nil
}

// Len returns the number of artifacts held in memory.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the counters since the last reset.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     int(c.hits.Load()),
		Misses:   int(c.misses.Load()),
		Bypassed: int(c.bypassed.Load()),
	}
}

// ResetStats zeroes the counters.
func (c *Cache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.bypassed.Store(0)
}

func (c *Cache) artifact(key Key, out domain.Output) (*domain.BuildArtifact, error) {
	h, err := c.hasher.CanonicalHash(out)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrHashFailed.Error()), "module", key.ModuleID)
	}
	return &domain.BuildArtifact{
		ModuleID:   key.ModuleID,
		Stage:      key.Stage,
		InputHash:  key.Hash,
		Output:     out,
		OutputHash: h,
	}, nil
}

func (c *Cache) commit(ctx context.Context, a *domain.BuildArtifact) error {
	if c.store != nil {
		if err := c.store.Put(ctx, a); err != nil {
			return err
		}
	}
	c.mu.Lock()
	if _, exists := c.entries[a.InputHash]; !exists {
		c.entries[a.InputHash] = a
	}
	c.mu.Unlock()
	return nil
}

// verify recomputes the output hash of a and evicts it on mismatch.
func (c *Cache) verify(ctx context.Context, key Key, a *domain.BuildArtifact) bool {
	h, err := c.hasher.CanonicalHash(a.Output)
	if err == nil && h == a.OutputHash && a.InputHash == key.Hash {
		return true
	}
	c.corrupt(ctx, key, zerr.With(domain.ErrCacheCorruption, "key", key.Hash))
	return false
}

func (c *Cache) corrupt(ctx context.Context, key Key, cause error) {
	_ = c.Evict(ctx, key.Hash)
	if c.events == nil {
		return
	}
	c.events.Emit(domain.Event{
		Stage:    string(key.Stage),
		Decision: domain.DecisionCacheCorrupt,
		Reason:   domain.ErrCacheCorruption.Error(),
		Level:    domain.LogLevelWarn,
		Data: map[string]any{
			"module": key.ModuleID,
			"key":    key.Hash,
			"error":  cause.Error(),
		},
	})
}

func (c *Cache) emit(key Key, decision, reason string, level domain.LogLevel) {
	if c.events == nil {
		return
	}
	c.events.Emit(domain.Event{
		Stage:    string(key.Stage),
		Decision: decision,
		Reason:   reason,
		Level:    level,
		Data:     map[string]any{"module": key.ModuleID, "key": key.Hash},
	})
}
