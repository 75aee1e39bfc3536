package domain

import (
	"slices"

	"go.trai.ch/zerr"
)

// PluginType says how a plugin is executed.
type PluginType string

const (
	// PluginNative runs in-process with host privileges.
	PluginNative PluginType = "native-code"
	// PluginSandboxed runs as bytecode under cost, time and memory limits.
	PluginSandboxed PluginType = "sandboxed-bytecode"
)

// FSPermission is the file system capability granted to a plugin.
type FSPermission string

const (
	// FSNone grants no file system access.
	FSNone FSPermission = "none"
	// FSRead grants read-only file system access.
	FSRead FSPermission = "read"
)

// NetworkPermission is the network capability granted to a plugin.
// No plugin is ever granted network access.
type NetworkPermission string

// NetworkNone grants no network access.
const NetworkNone NetworkPermission = "none"

// HookName is one of the fixed extension points of the pipeline.
type HookName string

const (
	// HookResolveID maps an import specifier to a module path.
	HookResolveID HookName = "resolve-identifier"
	// HookLoad supplies the source of a module.
	HookLoad HookName = "load-content"
	// HookTransform rewrites the source of a module.
	HookTransform HookName = "transform-content"
	// HookRenderChunk rewrites a bundled chunk.
	HookRenderChunk HookName = "render-chunk"
	// HookAnalyze inspects the finished build.
	HookAnalyze HookName = "analyze-build"
)

// HookNames lists the hook points in the order the pipeline reaches them.
var HookNames = []HookName{
	HookResolveID,
	HookLoad,
	HookTransform,
	HookRenderChunk,
	HookAnalyze,
}

// Valid reports whether h is a defined hook point.
func (h HookName) Valid() bool {
	return slices.Contains(HookNames, h)
}

// Permissions are the capabilities a plugin declares.
type Permissions struct {
	FS      FSPermission      `json:"fs" yaml:"fs"`
	Network NetworkPermission `json:"network" yaml:"network"`
}

// PluginManifest is the declaration a plugin is loaded from.
type PluginManifest struct {
	Name          string      `json:"name"`
	Version       string      `json:"version"`
	EngineVersion string      `json:"engineVersion"`
	Type          PluginType  `json:"type"`
	Hooks         []HookName  `json:"hooks"`
	Permissions   Permissions `json:"permissions"`
}

// Implements reports whether the manifest declares hook.
func (m PluginManifest) Implements(hook HookName) bool {
	return slices.Contains(m.Hooks, hook)
}

// PluginRecord is a loaded plugin. It is immutable once created.
type PluginRecord struct {
	ID       string
	Manifest PluginManifest
}

// DeterminismResult is the outcome of validating one hook of one plugin.
type DeterminismResult struct {
	PluginID          string   `json:"pluginId"`
	PluginName        string   `json:"pluginName"`
	Hook              HookName `json:"hook"`
	PassesDeterminism bool     `json:"passesDeterminism"`
	MutationScore     int      `json:"mutationScore"`
	// Error is set when the hook could not be validated at all.
	Error string `json:"error,omitempty"`
}

// Validate checks that the manifest is complete and its declarations are
// consistent. Network access can never be granted.
func (m PluginManifest) Validate() error {
	invalid := func(key, value string) error {
		return zerr.With(zerr.With(ErrInvalidPluginManifest, "plugin", m.Name), key, value)
	}
	if m.Name == "" {
		return invalid("field", "name")
	}
	if m.Version == "" {
		return invalid("field", "version")
	}
	switch m.Type {
	case PluginNative, PluginSandboxed:
	default:
		return invalid("type", string(m.Type))
	}
	if len(m.Hooks) == 0 {
		return invalid("field", "hooks")
	}
	seen := make(map[HookName]bool, len(m.Hooks))
	for _, h := range m.Hooks {
		if !h.Valid() {
			return zerr.With(zerr.With(ErrUnknownHook, "plugin", m.Name), "hook", string(h))
		}
		if seen[h] {
			return invalid("duplicate_hook", string(h))
		}
		seen[h] = true
	}
	switch m.Permissions.FS {
	case "", FSNone, FSRead:
	default:
		return invalid("permissions.fs", string(m.Permissions.FS))
	}
	if m.Permissions.Network != "" && m.Permissions.Network != NetworkNone {
		return invalid("permissions.network", string(m.Permissions.Network))
	}
	return nil
}
