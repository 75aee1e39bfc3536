package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

//go:generate mockgen -source=plugin.go -destination=mocks/mock_plugin.go -package=mocks

// Plugin executes the hooks declared in its manifest.
type Plugin interface {
	Manifest() domain.PluginManifest
	// Invoke runs one hook. The output must be the payload type of hook.
	Invoke(ctx context.Context, hook domain.HookName, input domain.HookInput) (domain.HookOutput, error)
}

// Sandbox compiles untrusted plugin programs into executable plugins.
type Sandbox interface {
	// Load compiles spec. File system access, when granted, is read-only and
	// confined to root.
	Load(root string, spec domain.PluginSpec, limits domain.SandboxLimits) (Plugin, error)
}

// NativeLoader instantiates native-code plugins compiled into the host.
type NativeLoader interface {
	// Load returns domain.ErrInvalidPluginManifest for unknown plugin names.
	Load(spec domain.PluginSpec) (Plugin, error)
}
