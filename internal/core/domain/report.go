package domain

import (
	"slices"
	"time"
)

// StageResult summarizes one stage of one target.
type StageResult struct {
	Stage     Stage         `json:"stage"`
	Status    StageStatus   `json:"status"`
	Items     int           `json:"items"`
	CacheHits int           `json:"cacheHits"`
	Duration  time.Duration `json:"duration"`
}

// TargetResult is the outcome of one target's pipeline.
type TargetResult struct {
	Name    string        `json:"name"`
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Outputs []string      `json:"outputs,omitempty"`
	Stages  []StageResult `json:"stages"`
}

// BuildReport is emitted at the end of a pipeline run.
type BuildReport struct {
	RunID       string         `json:"runId"`
	Targets     []TargetResult `json:"targets"`
	CacheHits   int            `json:"cacheHits"`
	CacheMisses int            `json:"cacheMisses"`
	HitRatio    float64        `json:"hitRatio"`
	// NonDeterministicPlugins lists plugin names whose outputs bypassed the cache.
	NonDeterministicPlugins []string            `json:"nonDeterministicPlugins"`
	Determinism             []DeterminismResult `json:"determinism,omitempty"`
	Cycles                  [][]string          `json:"cycles,omitempty"`
	Warnings                []string            `json:"warnings,omitempty"`
	DirtyModules            []string            `json:"dirtyModules,omitempty"`
	Events                  []Event             `json:"events"`
	Duration                time.Duration       `json:"duration"`
}

// Success reports whether every target succeeded.
func (r *BuildReport) Success() bool {
	return !slices.ContainsFunc(r.Targets, func(t TargetResult) bool {
		return !t.Success
	})
}

// Target returns the result of the named target.
func (r *BuildReport) Target(name string) (TargetResult, bool) {
	i := slices.IndexFunc(r.Targets, func(t TargetResult) bool {
		return t.Name == name
	})
	if i < 0 {
		return TargetResult{}, false
	}
	return r.Targets[i], true
}
