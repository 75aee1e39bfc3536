package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/adapters/hashing"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/cache"
	"go.trai.ch/kiln/internal/engine/report"
	"go.uber.org/mock/gomock"
)

func key(hash string) cache.Key {
	return cache.Key{ModuleID: "/src/a.js", Stage: domain.StageTransform, Hash: hash}
}

func produce(code string, calls *atomic.Int32) cache.Computation {
	return func(context.Context) (domain.Output, bool, error) {
		calls.Add(1)
		return domain.Output{Code: []byte(code)}, true, nil
	}
}

func TestCache_ComputeThenHit(t *testing.T) {
	c := cache.New(hashing.NewPortable(), nil, nil)
	var calls atomic.Int32

	first, hit, err := c.GetOrCompute(context.Background(), key("k1"), produce("a", &calls))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "k1", first.InputHash)
	assert.NotEmpty(t, first.OutputHash)

	second, hit, err := c.GetOrCompute(context.Background(), key("k1"), produce("b", &calls))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.Output.Code, second.Output.Code)
	assert.Equal(t, int32(1), calls.Load())

	stats := c.Stats()
	assert.Equal(t, cache.Stats{Hits: 1, Misses: 1}, stats)
	assert.InDelta(t, 0.5, stats.HitRatio(), 1e-9)

	c.ResetStats()
	assert.InDelta(t, 1.0, c.Stats().HitRatio(), 1e-9)
}

func TestCache_OneComputationPerKey(t *testing.T) {
	c := cache.New(hashing.NewPortable(), nil, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (domain.Output, bool, error) {
		calls.Add(1)
		<-release
		return domain.Output{Code: []byte("shared")}, true, nil
	}

	var wg sync.WaitGroup
	results := make([]*domain.BuildArtifact, 16)
	for i := range results {
		wg.Go(func() {
			a, _, err := c.GetOrCompute(context.Background(), key("hot"), compute)
			assert.NoError(t, err)
			results[i] = a
		})
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, a := range results {
		require.NotNil(t, a)
		assert.Equal(t, "shared", string(a.Output.Code))
	}
	assert.Equal(t, 1, c.Len())
}

func TestCache_CancelledComputationCommitsNothing(t *testing.T) {
	c := cache.New(hashing.NewPortable(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	_, _, err := c.GetOrCompute(ctx, key("k"), func(context.Context) (domain.Output, bool, error) {
		cancel()
		return domain.Output{Code: []byte("partial")}, true, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Len())

	var calls atomic.Int32
	a, hit, err := c.GetOrCompute(context.Background(), key("k"), produce("full", &calls))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "full", string(a.Output.Code))
}

func TestCache_FailedComputationCommitsNothing(t *testing.T) {
	c := cache.New(hashing.NewPortable(), nil, nil)
	boom := errors.New("boom")

	_, _, err := c.GetOrCompute(context.Background(), key("k"), func(context.Context) (domain.Output, bool, error) {
		return domain.Output{}, true, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestCache_NotCacheable(t *testing.T) {
	c := cache.New(hashing.NewPortable(), nil, nil)

	a, hit, err := c.GetOrCompute(context.Background(), key("k"), func(context.Context) (domain.Output, bool, error) {
		return domain.Output{Code: []byte("volatile")}, false, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "volatile", string(a.Output.Code))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, c.Stats().Bypassed)
}

func TestCache_Bypass(t *testing.T) {
	events := report.NewCollector(nil, false)
	c := cache.New(hashing.NewPortable(), nil, events)
	var calls atomic.Int32

	for range 2 {
		a, err := c.Bypass(context.Background(), key("k"), produce("x", &calls))
		require.NoError(t, err)
		assert.Equal(t, "x", string(a.Output.Code))
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, domain.DecisionCacheBypass, events.Events()[0].Decision)
}

func TestCache_CorruptionEvictsAndRecomputes(t *testing.T) {
	events := report.NewCollector(nil, false)
	c := cache.New(hashing.NewPortable(), nil, events)
	var calls atomic.Int32

	a, _, err := c.GetOrCompute(context.Background(), key("k"), produce("good", &calls))
	require.NoError(t, err)
	a.Output.Code = []byte("tampered")

	b, hit, err := c.GetOrCompute(context.Background(), key("k"), produce("good", &calls))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "good", string(b.Output.Code))
	assert.Equal(t, int32(2), calls.Load())

	var corrupt int
	for _, e := range events.Events() {
		if e.Decision == domain.DecisionCacheCorrupt {
			corrupt++
			assert.Equal(t, domain.LogLevelWarn, e.Level)
		}
	}
	assert.Equal(t, 1, corrupt)
}

func TestCache_PersistentStore(t *testing.T) {
	root := t.TempDir()
	store, err := cas.Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var calls atomic.Int32
	first := cache.New(hashing.NewPortable(), store, nil)
	_, _, err = first.GetOrCompute(context.Background(), key("persisted"), produce("disk", &calls))
	require.NoError(t, err)

	second := cache.New(hashing.NewPortable(), store, nil)
	a, hit, err := second.GetOrCompute(context.Background(), key("persisted"), produce("other", &calls))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "disk", string(a.Output.Code))
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, second.Evict(context.Background(), "persisted"))
	_, hit, err = second.Get(context.Background(), key("persisted"))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_Prune(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockArtifactStore(ctrl)
	store.EXPECT().Prune(gomock.Any(), int64(1024)).Return(3, nil)
	store.EXPECT().Prune(gomock.Any(), int64(2048)).Return(0, domain.ErrStoreUnavailable)

	events := report.NewCollector(nil, false)
	c := cache.New(hashing.NewPortable(), store, events)

	n, err := c.Prune(context.Background(), 1024)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, events.Events(), 1)
	assert.Equal(t, domain.DecisionCachePruned, events.Events()[0].Decision)

	_, err = c.Prune(context.Background(), 2048)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	n, err = c.Prune(context.Background(), -1)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = cache.New(hashing.NewPortable(), nil, nil).Prune(context.Background(), 1024)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCache_StoreUnavailableIsFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockArtifactStore(ctrl)
	unavailable := errors.Join(domain.ErrStoreUnavailable, errors.New("disk full"))
	store.EXPECT().Get(gomock.Any(), "k").Return(nil, domain.ErrCacheMiss)
	store.EXPECT().Put(gomock.Any(), gomock.Any()).Return(unavailable)

	c := cache.New(hashing.NewPortable(), store, nil)
	var calls atomic.Int32
	_, _, err := c.GetOrCompute(context.Background(), key("k"), produce("x", &calls))
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 0, c.Len())
}

func TestCache_StoreCorruptionIsAMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockArtifactStore(ctrl)
	store.EXPECT().Get(gomock.Any(), "k").Return(nil, errors.Join(domain.ErrCacheCorruption, errors.New("bad frame")))
	store.EXPECT().Delete(gomock.Any(), "k").Return(nil)
	store.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil)

	c := cache.New(hashing.NewPortable(), store, nil)
	var calls atomic.Int32
	_, hit, err := c.GetOrCompute(context.Background(), key("k"), produce("x", &calls))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(1), calls.Load())
}
