package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
)

func validManifest() domain.PluginManifest {
	return domain.PluginManifest{
		Name:          "banner",
		Version:       "1.0.0",
		EngineVersion: "1",
		Type:          domain.PluginSandboxed,
		Hooks:         []domain.HookName{domain.HookTransform, domain.HookRenderChunk},
		Permissions:   domain.Permissions{FS: domain.FSRead},
	}
}

func TestPluginManifest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.PluginManifest)
		wantErr error
	}{
		{"valid", func(*domain.PluginManifest) {}, nil},
		{"missing name", func(m *domain.PluginManifest) { m.Name = "" }, domain.ErrInvalidPluginManifest},
		{"missing version", func(m *domain.PluginManifest) { m.Version = "" }, domain.ErrInvalidPluginManifest},
		{"unknown type", func(m *domain.PluginManifest) { m.Type = "wasm" }, domain.ErrInvalidPluginManifest},
		{"no hooks", func(m *domain.PluginManifest) { m.Hooks = nil }, domain.ErrInvalidPluginManifest},
		{"unknown hook", func(m *domain.PluginManifest) {
			m.Hooks = append(m.Hooks, "post-build")
		}, domain.ErrUnknownHook},
		{"duplicate hook", func(m *domain.PluginManifest) {
			m.Hooks = append(m.Hooks, domain.HookTransform)
		}, domain.ErrInvalidPluginManifest},
		{"write access", func(m *domain.PluginManifest) { m.Permissions.FS = "write" }, domain.ErrInvalidPluginManifest},
		{"network access", func(m *domain.PluginManifest) { m.Permissions.Network = "full" }, domain.ErrInvalidPluginManifest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr.Error())
		})
	}
}

func TestPluginManifest_Implements(t *testing.T) {
	m := validManifest()
	assert.True(t, m.Implements(domain.HookTransform))
	assert.False(t, m.Implements(domain.HookLoad))
}

func TestCheckPayload(t *testing.T) {
	require.NoError(t, domain.CheckPayload(domain.HookTransform, domain.TransformInput{}))
	require.ErrorContains(t, domain.CheckPayload(domain.HookTransform, domain.LoadInput{}),
		domain.ErrHookPayloadMismatch.Error())
	require.ErrorContains(t, domain.CheckPayload(domain.HookAnalyze, nil),
		domain.ErrHookPayloadMismatch.Error())
}

func TestNewHookOutput(t *testing.T) {
	for _, h := range domain.HookNames {
		out, err := domain.NewHookOutput(h)
		require.NoError(t, err, h)
		assert.Equal(t, h, out.Hook())
	}

	_, err := domain.NewHookOutput("post-build")
	require.ErrorContains(t, err, domain.ErrUnknownHook.Error())
}
