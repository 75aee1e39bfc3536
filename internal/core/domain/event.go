package domain

import "time"

// Event decisions.
const (
	DecisionFormatDetected     = "format-detected"
	DecisionConditionSelected  = "condition-selected"
	DecisionAnalysisFallback   = "analysis-fallback"
	DecisionInteropWrapper     = "interop-wrapper"
	DecisionCacheHit           = "cache-hit"
	DecisionCacheMiss          = "cache-miss"
	DecisionCacheCorrupt       = "cache-corrupt"
	DecisionCacheBypass        = "cache-bypass"
	DecisionCachePruned        = "cache-pruned"
	DecisionMinifySkipped      = "minify-skipped"
	DecisionCycleDetected      = "cycle-detected"
	DecisionModulePruned       = "module-pruned"
	DecisionHMRClassified      = "hmr-classified"
	DecisionAmbiguousBoundary  = "ambiguous-boundary"
	DecisionPluginValidated    = "plugin-validated"
	DecisionPluginTimeout      = "plugin-timeout"
	DecisionPluginFailed       = "plugin-failed"
	DecisionTargetFailed       = "target-failed"
	DecisionAnalyzeWarning     = "analyze-warning"
	DecisionDirtySetComputed   = "dirty-set"
	DecisionCSSOrdered         = "css-ordered"
	DecisionOutputWritten      = "output-written"
	DecisionResolveFailed      = "resolve-failed"
	DecisionTransformFailed    = "transform-failed"
	DecisionTransformCycleFail = "cycle-not-tolerated"
)

// Event is an explain record: one notable decision taken during a run.
type Event struct {
	Stage     string         `json:"stage"`
	Decision  string         `json:"decision"`
	Reason    string         `json:"reason"`
	Data      map[string]any `json:"data,omitempty"`
	Level     LogLevel       `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
}
