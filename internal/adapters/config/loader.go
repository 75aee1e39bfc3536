// Package config provides the configuration loader for kiln.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// DiscoverRoot walks up from cwd to find the directory containing kiln.yaml.
func (l *Loader) DiscoverRoot(cwd string) (string, error) {
	configPath, err := findConfiguration(cwd)
	if err != nil {
		return "", err
	}
	return filepath.Dir(configPath), nil
}

// Load reads kiln.yaml from the project containing cwd and returns the
// resolved configuration with defaults applied.
func (l *Loader) Load(cwd string) (*domain.Config, error) {
	configPath, err := findConfiguration(cwd)
	if err != nil {
		return nil, err
	}

	var kilnfile Kilnfile
	if err := readAndUnmarshalYAML(configPath, &kilnfile); err != nil {
		return nil, zerr.With(err, "path", configPath)
	}

	if len(kilnfile.Targets) == 0 {
		l.Logger.Warn("no targets configured, building the default client target")
	}

	cfg, err := l.convert(&kilnfile, resolveRoot(configPath, kilnfile.Root))
	if err != nil {
		return nil, zerr.With(err, "path", configPath)
	}
	return cfg, nil
}

func findConfiguration(cwd string) (string, error) {
	currentDir := cwd
	for {
		configPath := filepath.Join(currentDir, domain.ConfigFileName)
		if info, err := os.Stat(configPath); err == nil && !info.IsDir() {
			return configPath, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root
			break
		}
		currentDir = parentDir
	}
	return "", zerr.With(domain.ErrConfigNotFound, "cwd", cwd)
}

func (l *Loader) convert(k *Kilnfile, root string) (*domain.Config, error) {
	if len(k.Entries) == 0 {
		return nil, domain.ErrNoEntries
	}

	cfg := domain.Config{
		Root:        root,
		Entries:     slices.Clone(k.Entries),
		Workers:     k.Workers,
		Debounce:    k.Debounce,
		HookTimeout: k.HookTimeout,
		Sandbox: domain.SandboxLimits{
			CostBudget:  k.Sandbox.CostBudget,
			MemoryBytes: k.Sandbox.MemoryBytes,
		},
		CSS: domain.LayerPolicy{
			Order:     slices.Clone(k.CSS.Layers),
			Unlayered: domain.UnlayeredPlacement(k.CSS.Unlayered),
		},
		DevAddr:       k.Dev.Addr,
		CacheMaxBytes: k.Cache.MaxBytes,
	}

	if err := validateLayers(cfg.CSS); err != nil {
		return nil, err
	}

	targets, err := convertTargets(k.Targets)
	if err != nil {
		return nil, err
	}
	cfg.Targets = targets

	for i := range k.Plugins {
		spec, err := convertPlugin(&k.Plugins[i])
		if err != nil {
			return nil, err
		}
		cfg.Plugins = append(cfg.Plugins, spec)
	}

	cfg = cfg.WithDefaults()
	for _, t := range cfg.Targets {
		if err := validateOutDir(root, t.OutDir); err != nil {
			return nil, zerr.With(err, "target", t.Name)
		}
	}
	return &cfg, nil
}

func validateLayers(policy domain.LayerPolicy) error {
	switch policy.Unlayered {
	case "", domain.UnlayeredFirst, domain.UnlayeredLast:
	default:
		return zerr.With(domain.ErrInvalidConfig, "css.unlayered", string(policy.Unlayered))
	}
	seen := make(map[string]bool, len(policy.Order))
	for _, layer := range policy.Order {
		if layer == "" || seen[layer] {
			return zerr.With(domain.ErrInvalidConfig, "css.layer", layer)
		}
		seen[layer] = true
	}
	return nil
}

func convertTargets(dtos []TargetDTO) ([]domain.Target, error) {
	targets := make([]domain.Target, 0, len(dtos))
	names := make(map[string]bool, len(dtos))
	for _, dto := range dtos {
		if dto.Name == "" || strings.ContainsAny(dto.Name, `/\`) {
			return nil, zerr.With(domain.ErrInvalidConfig, "target", dto.Name)
		}
		if names[dto.Name] {
			return nil, zerr.With(zerr.With(domain.ErrInvalidConfig, "target", dto.Name), "reason", "duplicate target")
		}
		names[dto.Name] = true

		format := domain.ModuleFormat(dto.Format)
		switch format {
		case "", domain.FormatESM, domain.FormatCJS:
		default:
			return nil, zerr.With(zerr.With(domain.ErrInvalidConfig, "target", dto.Name), "format", dto.Format)
		}
		platform := domain.Platform(dto.Platform)
		switch platform {
		case "", domain.PlatformBrowser, domain.PlatformNode, domain.PlatformEdge:
		default:
			return nil, zerr.With(zerr.With(domain.ErrInvalidConfig, "target", dto.Name), "platform", dto.Platform)
		}

		targets = append(targets, domain.Target{
			Name:        dto.Name,
			Platform:    platform,
			Format:      format,
			Conditions:  slices.Clone(dto.Conditions),
			OutDir:      filepath.ToSlash(dto.OutDir),
			Minify:      dto.Minify,
			Define:      dto.Define,
			AllowCycles: dto.AllowCycles,
		})
	}
	return targets, nil
}

func convertPlugin(dto *PluginDTO) (domain.PluginSpec, error) {
	hooks := make([]domain.HookName, 0, len(dto.Hooks))
	for _, h := range dto.Hooks {
		hooks = append(hooks, domain.HookName(h))
	}

	perms := domain.Permissions{
		FS:      domain.FSPermission(dto.Permissions.FS),
		Network: domain.NetworkPermission(dto.Permissions.Network),
	}
	if perms.FS == "" {
		perms.FS = domain.FSNone
	}
	if perms.Network == "" {
		perms.Network = domain.NetworkNone
	}

	spec := domain.PluginSpec{
		Manifest: domain.PluginManifest{
			Name:          dto.Name,
			Version:       dto.Version,
			EngineVersion: dto.EngineVersion,
			Type:          domain.PluginType(dto.Type),
			Hooks:         hooks,
			Permissions:   perms,
		},
		Options: dto.Options,
	}
	if len(dto.Programs) > 0 {
		spec.Programs = make(map[domain.HookName]string, len(dto.Programs))
		for hook, src := range dto.Programs {
			spec.Programs[domain.HookName(hook)] = src
		}
	}

	if err := spec.Manifest.Validate(); err != nil {
		return domain.PluginSpec{}, err
	}
	return spec, nil
}

func validateOutDir(root, outDir string) error {
	abs := filepath.Join(root, filepath.FromSlash(outDir))
	if filepath.IsAbs(outDir) {
		abs = filepath.Clean(outDir)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return zerr.With(domain.ErrOutputPathOutsideRoot, "outDir", outDir)
	}
	return nil
}

func resolveRoot(configPath, configuredRoot string) string {
	configDir := filepath.Dir(configPath)
	if configuredRoot == "" {
		return filepath.Clean(configDir)
	}
	if filepath.IsAbs(configuredRoot) {
		return filepath.Clean(configuredRoot)
	}
	return filepath.Clean(filepath.Join(configDir, configuredRoot))
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is found by walking up from cwd
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return zerr.Wrap(parseErr, domain.ErrConfigParseFailed.Error())
	}

	return nil
}
