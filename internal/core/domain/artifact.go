package domain

// Stage names one step of the build pipeline.
type Stage string

const (
	// StageResolve discovers modules and edges from the entry points.
	StageResolve Stage = "resolve"
	// StageTransform turns each module's source into executable code.
	StageTransform Stage = "transform"
	// StageBundle links transformed modules into one chunk per entry.
	StageBundle Stage = "bundle"
	// StageOptimize rewrites chunks for size.
	StageOptimize Stage = "optimize"
	// StageCSSOptimize orders and concatenates stylesheets.
	StageCSSOptimize Stage = "css-optimize"
	// StageOutput writes chunks and metadata to disk.
	StageOutput Stage = "output"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{
	StageResolve,
	StageTransform,
	StageBundle,
	StageOptimize,
	StageCSSOptimize,
	StageOutput,
}

// Output is the product of one stage for one module or chunk.
type Output struct {
	Code      []byte `json:"code"`
	SourceMap []byte `json:"sourceMap,omitempty"`
}

// Size returns the number of bytes held by the output.
func (o Output) Size() int {
	return len(o.Code) + len(o.SourceMap)
}

// BuildArtifact is a cached stage result.
type BuildArtifact struct {
	// ModuleID is the module path for per-module stages or the chunk name for
	// chunk-level stages.
	ModuleID string `json:"moduleId"`
	Stage    Stage  `json:"stage"`
	// InputHash is the cache key: it covers everything the output depends on.
	InputHash string `json:"inputHash"`
	Output    Output `json:"output"`
	// OutputHash is the canonical hash of Output, checked on every read.
	OutputHash string `json:"outputHash"`
}
