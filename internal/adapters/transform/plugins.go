package transform

import (
	"context"
	"maps"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Names of the native plugins.
const (
	DefinePlugin = "define"
	BannerPlugin = "banner"
)

var _ ports.NativeLoader = (*Builtins)(nil)

// Builtins instantiates the native plugins by manifest name.
type Builtins struct{}

// NewBuiltins creates a new Builtins loader.
func NewBuiltins() *Builtins {
	return &Builtins{}
}

// Load returns the native plugin named by spec.
func (Builtins) Load(spec domain.PluginSpec) (ports.Plugin, error) {
	m := spec.Manifest
	if m.Type != domain.PluginNative {
		return nil, zerr.With(zerr.With(domain.ErrInvalidPluginManifest, "plugin", m.Name), "type", string(m.Type))
	}

	var supported domain.HookName
	var p ports.Plugin
	switch m.Name {
	case DefinePlugin:
		supported = domain.HookTransform
		p = &define{manifest: m, defines: maps.Clone(spec.Options)}
	case BannerPlugin:
		supported = domain.HookRenderChunk
		p = &banner{manifest: m, text: spec.Options["text"]}
	default:
		return nil, zerr.With(zerr.With(domain.ErrInvalidPluginManifest, "plugin", m.Name), "reason", "unknown native plugin")
	}

	for _, h := range m.Hooks {
		if h != supported {
			return nil, zerr.With(zerr.With(domain.ErrInvalidPluginManifest, "plugin", m.Name), "unsupported_hook", string(h))
		}
	}
	return p, nil
}

// define replaces compile-time constants in module code.
type define struct {
	manifest domain.PluginManifest
	defines  map[string]string
}

func (d *define) Manifest() domain.PluginManifest {
	return d.manifest
}

func (d *define) Invoke(ctx context.Context, hook domain.HookName, input domain.HookInput) (domain.HookOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in, ok := input.(domain.TransformInput)
	if !ok || hook != domain.HookTransform {
		return nil, zerr.With(domain.ErrHookPayloadMismatch, "hook", string(hook))
	}
	return domain.TransformOutput{Code: ReplaceDefines(in.Code, d.defines)}, nil
}

// banner prepends a fixed comment to every chunk.
type banner struct {
	manifest domain.PluginManifest
	text     string
}

func (b *banner) Manifest() domain.PluginManifest {
	return b.manifest
}

func (b *banner) Invoke(ctx context.Context, hook domain.HookName, input domain.HookInput) (domain.HookOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in, ok := input.(domain.RenderChunkInput)
	if !ok || hook != domain.HookRenderChunk {
		return nil, zerr.With(domain.ErrHookPayloadMismatch, "hook", string(hook))
	}
	if b.text == "" || strings.HasPrefix(in.Code, b.text) {
		return domain.RenderChunkOutput{Code: in.Code}, nil
	}
	return domain.RenderChunkOutput{Code: b.text + "\n" + in.Code}, nil
}
