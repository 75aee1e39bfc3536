package report

import (
	"maps"
	"slices"
	"strings"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
)

// Assemble builds the report of one run from the per-target results, the
// cache counters and the events the collector gathered.
func Assemble(runID string, targets []domain.TargetResult, hits, misses int, events []domain.Event, duration time.Duration) *domain.BuildReport {
	r := &domain.BuildReport{
		RunID:       runID,
		Targets:     slices.Clone(targets),
		CacheHits:   hits,
		CacheMisses: misses,
		HitRatio:    HitRatio(hits, misses),
		Events:      events,
		Duration:    duration,
	}
	if r.Events == nil {
		r.Events = []domain.Event{}
	}
	slices.SortFunc(r.Targets, func(a, b domain.TargetResult) int {
		return strings.Compare(a.Name, b.Name)
	})
	r.NonDeterministicPlugins = []string{}
	return r
}

// HitRatio is hits over lookups, 1 when nothing was looked up.
func HitRatio(hits, misses int) float64 {
	total := hits + misses
	if total == 0 {
		return 1
	}
	return float64(hits) / float64(total)
}

// WithDeterminism attaches validation results and derives the list of
// plugins whose outputs bypassed the cache.
func WithDeterminism(r *domain.BuildReport, results []domain.DeterminismResult) {
	r.Determinism = slices.Clone(results)
	names := make(map[string]struct{})
	for _, res := range results {
		if !res.PassesDeterminism {
			names[res.PluginName] = struct{}{}
		}
	}
	r.NonDeterministicPlugins = slices.Sorted(maps.Keys(names))
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
