package config

import "time"

// Kilnfile represents the structure of the kiln.yaml configuration file.
type Kilnfile struct {
	Version     string        `yaml:"version"`
	Root        string        `yaml:"root"`
	Entries     []string      `yaml:"entries"`
	Targets     []TargetDTO   `yaml:"targets"`
	CSS         CSSDTO        `yaml:"css"`
	Workers     int           `yaml:"workers"`
	Debounce    time.Duration `yaml:"debounce"`
	HookTimeout time.Duration `yaml:"hookTimeout"`
	Sandbox     SandboxDTO    `yaml:"sandbox"`
	Dev         DevDTO        `yaml:"dev"`
	Cache       CacheDTO      `yaml:"cache"`
	Plugins     []PluginDTO   `yaml:"plugins"`
}

// TargetDTO represents a build target definition in the configuration.
type TargetDTO struct {
	Name        string            `yaml:"name"`
	Platform    string            `yaml:"platform"`
	Format      string            `yaml:"format"`
	Conditions  []string          `yaml:"conditions"`
	OutDir      string            `yaml:"outDir"`
	Minify      bool              `yaml:"minify"`
	Define      map[string]string `yaml:"define"`
	AllowCycles bool              `yaml:"allowCycles"`
}

// CSSDTO configures cascade layer ranking.
type CSSDTO struct {
	Layers    []string `yaml:"layers"`
	Unlayered string   `yaml:"unlayered"`
}

// SandboxDTO bounds sandboxed plugin execution.
type SandboxDTO struct {
	CostBudget  uint64 `yaml:"costBudget"`
	MemoryBytes int    `yaml:"memoryBytes"`
}

// DevDTO configures the development server.
type DevDTO struct {
	Addr string `yaml:"addr"`
}

// CacheDTO configures the persistent artifact store.
type CacheDTO struct {
	// MaxBytes bounds the store size; -1 keeps every artifact.
	MaxBytes int64 `yaml:"maxBytes"`
}

// PluginDTO is an inline plugin manifest.
type PluginDTO struct {
	Name          string            `yaml:"name"`
	Version       string            `yaml:"version"`
	EngineVersion string            `yaml:"engineVersion"`
	Type          string            `yaml:"type"`
	Hooks         []string          `yaml:"hooks"`
	Permissions   PermissionsDTO    `yaml:"permissions"`
	Programs      map[string]string `yaml:"programs"`
	Options       map[string]string `yaml:"options"`
}

// PermissionsDTO is the capability declaration of a plugin.
type PermissionsDTO struct {
	FS      string `yaml:"fs"`
	Network string `yaml:"network"`
}
