package report_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/report"
	"go.uber.org/mock/gomock"
)

func TestCollector_EmitStampsAndLogs(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Warn(domain.ErrAnalysisFallback.Error(),
		"stage", "resolve", "decision", domain.DecisionAnalysisFallback, "module", "/src/a.js")

	c := report.NewCollector(logger, false)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.SetClock(func() time.Time { return fixed })

	c.Emit(domain.Event{
		Stage:    "resolve",
		Decision: domain.DecisionAnalysisFallback,
		Reason:   domain.ErrAnalysisFallback.Error(),
		Level:    domain.LogLevelWarn,
		Data:     map[string]any{"module": "/src/a.js"},
	})
	// Debug records stay quiet unless verbose.
	c.Emit(domain.Event{Stage: "resolve", Decision: domain.DecisionFormatDetected, Level: domain.LogLevelDebug})

	events := c.Events()
	require.Len(t, events, 2)
	assert.Equal(t, fixed, events[0].Timestamp)
}

func TestCollector_Verbose(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Info("cache hit", "stage", "transform", "decision", domain.DecisionCacheHit)

	c := report.NewCollector(logger, true)
	c.Emit(domain.Event{Stage: "transform", Decision: domain.DecisionCacheHit, Reason: "cache hit"})
}

func TestCollector_Drain(t *testing.T) {
	c := report.NewCollector(nil, false)
	c.EmitAll([]domain.Event{{Decision: "a"}, {Decision: "b"}})

	drained := c.Drain()
	assert.Len(t, drained, 2)
	assert.Empty(t, c.Events())
}

func TestCollector_Concurrent(t *testing.T) {
	c := report.NewCollector(nil, false)
	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			c.Emit(domain.Event{Decision: domain.DecisionCacheMiss})
		})
	}
	wg.Wait()
	assert.Len(t, c.Events(), 16)
}

func TestAssemble(t *testing.T) {
	r := report.Assemble("run-1", []domain.TargetResult{
		{Name: "ssr", Success: false, Error: "boom"},
		{Name: "client", Success: true},
	}, 3, 1, nil, time.Second)

	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, "client", r.Targets[0].Name)
	assert.InDelta(t, 0.75, r.HitRatio, 1e-9)
	assert.False(t, r.Success())
	assert.NotNil(t, r.Events)
	assert.Empty(t, r.NonDeterministicPlugins)

	report.WithDeterminism(r, []domain.DeterminismResult{
		{PluginName: "stamp", Hook: domain.HookTransform, PassesDeterminism: false, MutationScore: 1},
		{PluginName: "stamp", Hook: domain.HookRenderChunk, PassesDeterminism: false, MutationScore: 1},
		{PluginName: "define", Hook: domain.HookTransform, PassesDeterminism: true},
	})
	assert.Equal(t, []string{"stamp"}, r.NonDeterministicPlugins)
	assert.Len(t, r.Determinism, 3)
}

func TestHitRatio_NoLookups(t *testing.T) {
	assert.InDelta(t, 1.0, report.HitRatio(0, 0), 1e-9)
}
