package domain

import (
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"
)

// UnlayeredPlacement says where stylesheets outside any cascade layer rank.
type UnlayeredPlacement string

const (
	// UnlayeredLast ranks unlayered stylesheets after every declared layer.
	UnlayeredLast UnlayeredPlacement = "last"
	// UnlayeredFirst ranks unlayered stylesheets before every declared layer.
	UnlayeredFirst UnlayeredPlacement = "first"
)

// LayerPolicy configures cascade layer ranking.
type LayerPolicy struct {
	// Order is the explicit layer order. When empty, layers rank in the order
	// they are first declared across the project.
	Order     []string           `json:"order,omitempty"`
	Unlayered UnlayeredPlacement `json:"unlayered"`
}

// Platform is the runtime a target is built for.
type Platform string

const (
	// PlatformBrowser builds for browsers.
	PlatformBrowser Platform = "browser"
	// PlatformNode builds for server-side rendering on node.
	PlatformNode Platform = "node"
	// PlatformEdge builds for edge runtimes.
	PlatformEdge Platform = "edge"
)

// Target is one independent pipeline instance.
type Target struct {
	Name     string   `json:"name"`
	Platform Platform `json:"platform"`
	// Format is the module format the bundle is emitted in.
	Format ModuleFormat `json:"format"`
	// Conditions are the package export conditions matched, in priority order.
	Conditions []string          `json:"conditions"`
	OutDir     string            `json:"outDir"`
	Minify     bool              `json:"minify"`
	Define     map[string]string `json:"define,omitempty"`
	// AllowCycles lets the bundle stage link statically cyclic modules.
	AllowCycles bool `json:"allowCycles"`
}

// SandboxLimits bound the execution of sandboxed plugins.
type SandboxLimits struct {
	// CostBudget is the evaluation cost ceiling of one hook invocation.
	CostBudget uint64 `json:"costBudget"`
	// MemoryBytes caps the size of the values a hook may receive or produce.
	MemoryBytes int `json:"memoryBytes"`
}

// PluginSpec is a configured plugin.
type PluginSpec struct {
	Manifest PluginManifest
	// Programs holds the bytecode source per hook for sandboxed plugins.
	Programs map[HookName]string
	// Options configure native plugins.
	Options map[string]string
}

// Config is the resolved project configuration.
type Config struct {
	Root        string
	Entries     []string
	Targets     []Target
	CSS         LayerPolicy
	Workers     int
	Debounce    time.Duration
	HookTimeout time.Duration
	Sandbox     SandboxLimits
	Plugins     []PluginSpec
	DevAddr     string
	// CacheMaxBytes bounds the persistent artifact store. Negative disables
	// pruning.
	CacheMaxBytes int64
}

// Default configuration values.
const (
	DefaultDebounce    = 50 * time.Millisecond
	DefaultHookTimeout = 2 * time.Second
	DefaultCostBudget  = 1_000_000
	DefaultMemoryBytes = 8 << 20
	DefaultDevAddr     = "127.0.0.1:5173"

	DefaultCacheMaxBytes int64 = 512 << 20
)

// DefaultTarget returns the target used when none is configured.
func DefaultTarget() Target {
	return Target{
		Name:       "client",
		Platform:   PlatformBrowser,
		Format:     FormatESM,
		Conditions: []string{"browser", "import", "default"},
		OutDir:     DefaultOutDir + "/client",
	}
}

// WithDefaults fills omitted fields.
func (c Config) WithDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.HookTimeout <= 0 {
		c.HookTimeout = DefaultHookTimeout
	}
	if c.Sandbox.CostBudget == 0 {
		c.Sandbox.CostBudget = DefaultCostBudget
	}
	if c.Sandbox.MemoryBytes <= 0 {
		c.Sandbox.MemoryBytes = DefaultMemoryBytes
	}
	if c.CSS.Unlayered == "" {
		c.CSS.Unlayered = UnlayeredLast
	}
	if c.DevAddr == "" {
		c.DevAddr = DefaultDevAddr
	}
	if c.CacheMaxBytes == 0 {
		c.CacheMaxBytes = DefaultCacheMaxBytes
	}
	if len(c.Targets) == 0 {
		c.Targets = []Target{DefaultTarget()}
	}
	c.Targets = slices.Clone(c.Targets)
	for i := range c.Targets {
		t := &c.Targets[i]
		if t.Format == "" || t.Format == FormatUnknown {
			t.Format = FormatESM
		}
		if t.Platform == "" {
			t.Platform = PlatformBrowser
		}
		if len(t.Conditions) == 0 {
			t.Conditions = defaultConditions(t.Platform, t.Format)
		}
		if t.OutDir == "" {
			t.OutDir = DefaultOutDir + "/" + t.Name
		}
	}
	return c
}

// GeneratedDirs returns the root-relative, slash-separated directories kiln
// writes into: the .kiln state directory and every target's output
// directory. Nothing under them is ever treated as a source.
func (c Config) GeneratedDirs() []string {
	dirs := []string{KilnDirName}
	for _, t := range c.Targets {
		dir := path.Clean(filepath.ToSlash(t.OutDir))
		if dir == "." || dir == ".." || path.IsAbs(dir) || strings.HasPrefix(dir, "../") || slices.Contains(dirs, dir) {
			continue
		}
		dirs = append(dirs, dir)
	}
	return dirs
}

func defaultConditions(p Platform, f ModuleFormat) []string {
	kind := "import"
	if f == FormatCJS {
		kind = "require"
	}
	switch p {
	case PlatformNode:
		return []string{"node", kind, "default"}
	case PlatformEdge:
		return []string{"worker", "edge-light", kind, "default"}
	default:
		return []string{"browser", kind, "default"}
	}
}
