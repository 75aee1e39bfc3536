package domain

import "go.trai.ch/zerr"

// HookInput is the input payload of one hook point.
type HookInput interface {
	Hook() HookName
}

// HookOutput is the output payload of one hook point.
type HookOutput interface {
	Hook() HookName
}

// ResolveIDInput asks a plugin to resolve an import specifier.
type ResolveIDInput struct {
	Specifier  string   `json:"specifier"`
	Importer   string   `json:"importer"`
	Conditions []string `json:"conditions"`
}

// ResolveIDOutput is a plugin's resolution. An empty Path defers to the next resolver.
type ResolveIDOutput struct {
	Path     string `json:"path"`
	External bool   `json:"external"`
}

// LoadInput asks a plugin for the source of a module.
type LoadInput struct {
	Path string `json:"path"`
}

// LoadOutput is a plugin-supplied source. Handled false defers to the file system.
type LoadOutput struct {
	Handled bool   `json:"handled"`
	Code    string `json:"code"`
}

// TransformInput asks a plugin to rewrite a module.
type TransformInput struct {
	Path   string `json:"path"`
	Code   string `json:"code"`
	Target string `json:"target"`
}

// TransformOutput is the rewritten module.
type TransformOutput struct {
	Code string `json:"code"`
}

// RenderChunkInput asks a plugin to rewrite a bundled chunk.
type RenderChunkInput struct {
	Chunk   string   `json:"chunk"`
	Code    string   `json:"code"`
	Target  string   `json:"target"`
	Modules []string `json:"modules"`
}

// RenderChunkOutput is the rewritten chunk.
type RenderChunkOutput struct {
	Code string `json:"code"`
}

// AnalyzeInput describes a finished target build.
type AnalyzeInput struct {
	Target  string         `json:"target"`
	Outputs map[string]int `json:"outputs"`
	Modules []string       `json:"modules"`
}

// AnalyzeOutput carries warnings for the build report.
type AnalyzeOutput struct {
	Warnings []string `json:"warnings"`
}

func (ResolveIDInput) Hook() HookName    { return HookResolveID }
func (ResolveIDOutput) Hook() HookName   { return HookResolveID }
func (LoadInput) Hook() HookName         { return HookLoad }
func (LoadOutput) Hook() HookName        { return HookLoad }
func (TransformInput) Hook() HookName    { return HookTransform }
func (TransformOutput) Hook() HookName   { return HookTransform }
func (RenderChunkInput) Hook() HookName  { return HookRenderChunk }
func (RenderChunkOutput) Hook() HookName { return HookRenderChunk }
func (AnalyzeInput) Hook() HookName      { return HookAnalyze }
func (AnalyzeOutput) Hook() HookName     { return HookAnalyze }

// CheckPayload returns ErrHookPayloadMismatch unless p belongs to hook.
func CheckPayload(hook HookName, p interface{ Hook() HookName }) error {
	if p == nil {
		return zerr.With(ErrHookPayloadMismatch, "hook", string(hook))
	}
	if got := p.Hook(); got != hook {
		return zerr.With(zerr.With(ErrHookPayloadMismatch, "hook", string(hook)), "payload", string(got))
	}
	return nil
}

// NewHookOutput returns an empty output payload for hook, used to decode
// sandboxed results into the typed shape.
func NewHookOutput(hook HookName) (HookOutput, error) {
	switch hook {
	case HookResolveID:
		return &ResolveIDOutput{}, nil
	case HookLoad:
		return &LoadOutput{}, nil
	case HookTransform:
		return &TransformOutput{}, nil
	case HookRenderChunk:
		return &RenderChunkOutput{}, nil
	case HookAnalyze:
		return &AnalyzeOutput{}, nil
	default:
		return nil, zerr.With(ErrUnknownHook, "hook", string(hook))
	}
}
