package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := domain.Config{Entries: []string{"src/main.js"}}.WithDefaults()

	assert.Positive(t, cfg.Workers)
	assert.Equal(t, domain.DefaultDebounce, cfg.Debounce)
	assert.Equal(t, domain.DefaultHookTimeout, cfg.HookTimeout)
	assert.Equal(t, uint64(domain.DefaultCostBudget), cfg.Sandbox.CostBudget)
	assert.Equal(t, domain.DefaultMemoryBytes, cfg.Sandbox.MemoryBytes)
	assert.Equal(t, domain.UnlayeredLast, cfg.CSS.Unlayered)
	assert.Equal(t, domain.DefaultDevAddr, cfg.DevAddr)

	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "client", cfg.Targets[0].Name)
	assert.Equal(t, "dist/client", cfg.Targets[0].OutDir)
	assert.Equal(t, domain.FormatESM, cfg.Targets[0].Format)
}

func TestConfig_WithDefaults_Targets(t *testing.T) {
	targets := []domain.Target{
		{Name: "ssr", Platform: domain.PlatformNode, Format: domain.FormatCJS},
		{Name: "edge", Platform: domain.PlatformEdge},
		{Name: "web", OutDir: "public/build", Conditions: []string{"custom"}},
	}
	cfg := domain.Config{Targets: targets}.WithDefaults()

	assert.Equal(t, []string{"node", "require", "default"}, cfg.Targets[0].Conditions)
	assert.Equal(t, "dist/ssr", cfg.Targets[0].OutDir)
	assert.Equal(t, []string{"worker", "edge-light", "import", "default"}, cfg.Targets[1].Conditions)
	assert.Equal(t, domain.FormatESM, cfg.Targets[1].Format)
	assert.Equal(t, domain.PlatformBrowser, cfg.Targets[2].Platform)
	assert.Equal(t, "public/build", cfg.Targets[2].OutDir)
	assert.Equal(t, []string{"custom"}, cfg.Targets[2].Conditions)

	// The caller's targets are left untouched.
	assert.Empty(t, targets[0].OutDir)
	assert.Nil(t, targets[1].Conditions)
}

func TestConfig_GeneratedDirs(t *testing.T) {
	cfg := domain.Config{Targets: []domain.Target{
		{Name: "client", OutDir: "dist/client"},
		{Name: "ssr", OutDir: "./dist/ssr/"},
		{Name: "copy", OutDir: "dist/client"},
		{Name: "outside", OutDir: "../elsewhere"},
		{Name: "root", OutDir: "."},
	}}

	assert.Equal(t, []string{domain.KilnDirName, "dist/client", "dist/ssr"}, cfg.GeneratedDirs())
}
