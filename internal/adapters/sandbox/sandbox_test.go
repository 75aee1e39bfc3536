package sandbox_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/adapters/sandbox"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

var defaultLimits = domain.SandboxLimits{
	CostBudget:  domain.DefaultCostBudget,
	MemoryBytes: domain.DefaultMemoryBytes,
}

func spec(fsPerm domain.FSPermission, programs map[domain.HookName]string) domain.PluginSpec {
	hooks := make([]domain.HookName, 0, len(programs))
	for _, h := range domain.HookNames {
		if _, ok := programs[h]; ok {
			hooks = append(hooks, h)
		}
	}
	return domain.PluginSpec{
		Manifest: domain.PluginManifest{
			Name:    "sandboxed",
			Version: "1.0.0",
			Type:    domain.PluginSandboxed,
			Hooks:   hooks,
			Permissions: domain.Permissions{
				FS:      fsPerm,
				Network: domain.NetworkNone,
			},
		},
		Programs: programs,
	}
}

func load(t *testing.T, root string, s domain.PluginSpec, limits domain.SandboxLimits) ports.Plugin {
	t.Helper()
	p, err := sandbox.NewCEL(fs.NewOSFileSystem()).Load(root, s, limits)
	require.NoError(t, err)
	return p
}

func transform(code string) domain.TransformInput {
	return domain.TransformInput{Path: "/src/a.js", Code: code, Target: "client"}
}

func TestCEL_TransformShorthand(t *testing.T) {
	p := load(t, t.TempDir(), spec(domain.FSNone, map[domain.HookName]string{
		domain.HookTransform: `input.code.replace("debugger;", "")`,
	}), defaultLimits)

	out, err := p.Invoke(context.Background(), domain.HookTransform, transform("debugger;run();"))
	require.NoError(t, err)
	assert.Equal(t, domain.TransformOutput{Code: "run();"}, out)
}

func TestCEL_MapResult(t *testing.T) {
	p := load(t, t.TempDir(), spec(domain.FSNone, map[domain.HookName]string{
		domain.HookResolveID: `input.specifier.startsWith("virtual:")
			? {"path": "/virtual/" + input.specifier.substring(8), "external": false}
			: {"path": ""}`,
	}), defaultLimits)

	out, err := p.Invoke(context.Background(), domain.HookResolveID, domain.ResolveIDInput{Specifier: "virtual:env"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResolveIDOutput{Path: "/virtual/env"}, out)

	out, err = p.Invoke(context.Background(), domain.HookResolveID, domain.ResolveIDInput{Specifier: "./a.js"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResolveIDOutput{}, out)
}

func TestCEL_LoadShorthand(t *testing.T) {
	p := load(t, t.TempDir(), spec(domain.FSNone, map[domain.HookName]string{
		domain.HookLoad: `"export default " + string(size(input.path))`,
	}), defaultLimits)

	out, err := p.Invoke(context.Background(), domain.HookLoad, domain.LoadInput{Path: "/a"})
	require.NoError(t, err)
	assert.Equal(t, domain.LoadOutput{Handled: true, Code: "export default 2"}, out)
}

func TestCEL_Limits(t *testing.T) {
	explode := `input.code.split("").map(c, c + c).join("")`

	tests := []struct {
		name    string
		program string
		limits  domain.SandboxLimits
		code    string
		ctx     func() (context.Context, context.CancelFunc)
		wantErr error
	}{
		{
			name:    "cost budget",
			program: explode,
			limits:  domain.SandboxLimits{CostBudget: 10, MemoryBytes: domain.DefaultMemoryBytes},
			code:    strings.Repeat("abcdefghij", 100),
			wantErr: domain.ErrPluginLimitExceeded,
		},
		{
			name:    "deadline",
			program: explode,
			limits:  defaultLimits,
			code:    strings.Repeat("abcdefghij", 10_000),
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), -time.Second)
			},
			wantErr: domain.ErrPluginTimeout,
		},
		{
			name:    "input ceiling",
			program: `input.code`,
			limits:  domain.SandboxLimits{CostBudget: domain.DefaultCostBudget, MemoryBytes: 64},
			code:    strings.Repeat("x", 200),
			wantErr: domain.ErrPluginLimitExceeded,
		},
		{
			name:    "output ceiling",
			program: `input.code + input.code + input.code`,
			limits:  domain.SandboxLimits{CostBudget: domain.DefaultCostBudget, MemoryBytes: 100},
			code:    strings.Repeat("x", 40),
			wantErr: domain.ErrPluginLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := load(t, t.TempDir(), spec(domain.FSNone, map[domain.HookName]string{
				domain.HookTransform: tt.program,
			}), tt.limits)

			ctx, cancel := context.WithCancel(context.Background())
			if tt.ctx != nil {
				cancel()
				ctx, cancel = tt.ctx()
			}
			defer cancel()

			_, err := p.Invoke(ctx, domain.HookTransform, transform(tt.code))
			require.ErrorContains(t, err, tt.wantErr.Error())
		})
	}
}

func TestCEL_ReadFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "banner.txt"), []byte("/* hi */\n"), domain.FilePerm))

	programs := map[domain.HookName]string{
		domain.HookTransform: `readFile("banner.txt") + input.code`,
	}

	t.Run("granted", func(t *testing.T) {
		p := load(t, root, spec(domain.FSRead, programs), defaultLimits)
		out, err := p.Invoke(context.Background(), domain.HookTransform, transform("run();"))
		require.NoError(t, err)
		assert.Equal(t, domain.TransformOutput{Code: "/* hi */\nrun();"}, out)
	})

	t.Run("not granted", func(t *testing.T) {
		p := load(t, root, spec(domain.FSNone, programs), defaultLimits)
		_, err := p.Invoke(context.Background(), domain.HookTransform, transform("run();"))
		require.ErrorContains(t, err, domain.ErrPluginPermissionDenied.Error())
	})

	t.Run("outside root", func(t *testing.T) {
		p := load(t, root, spec(domain.FSRead, map[domain.HookName]string{
			domain.HookTransform: `readFile("../secret") + input.code`,
		}), defaultLimits)
		_, err := p.Invoke(context.Background(), domain.HookTransform, transform("run();"))
		require.ErrorContains(t, err, domain.ErrPluginPermissionDenied.Error())
	})
}

func TestCEL_PayloadShape(t *testing.T) {
	tests := []struct {
		name    string
		program string
		input   domain.HookInput
	}{
		{name: "unknown field", program: `{"code": "x", "extra": 1}`, input: transform("")},
		{name: "wrong result type", program: `42`, input: transform("")},
		{name: "wrong input payload", program: `input.code`, input: domain.LoadInput{Path: "/a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := load(t, t.TempDir(), spec(domain.FSNone, map[domain.HookName]string{
				domain.HookTransform: tt.program,
			}), defaultLimits)
			_, err := p.Invoke(context.Background(), domain.HookTransform, tt.input)
			require.ErrorContains(t, err, domain.ErrHookPayloadMismatch.Error())
		})
	}
}

func TestCEL_LoadErrors(t *testing.T) {
	valid := spec(domain.FSNone, map[domain.HookName]string{domain.HookTransform: `input.code`})

	missing := valid
	missing.Programs = map[domain.HookName]string{}

	broken := valid
	broken.Programs = map[domain.HookName]string{domain.HookTransform: `input.code +`}

	undeclared := valid
	undeclared.Programs = map[domain.HookName]string{
		domain.HookTransform:   `input.code`,
		domain.HookRenderChunk: `input.code`,
	}

	native := valid
	native.Manifest.Type = domain.PluginNative

	for name, s := range map[string]domain.PluginSpec{
		"missing program":    missing,
		"compile error":      broken,
		"undeclared program": undeclared,
		"native plugin":      native,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := sandbox.NewCEL(fs.NewOSFileSystem()).Load(t.TempDir(), s, defaultLimits)
			require.ErrorContains(t, err, domain.ErrInvalidPluginManifest.Error())
		})
	}
}
