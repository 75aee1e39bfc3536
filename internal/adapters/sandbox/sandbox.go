// Package sandbox runs untrusted plugins as CEL programs under a cost budget,
// a deadline and a size ceiling on the values crossing the boundary.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ ports.Sandbox = (*CEL)(nil)

// interruptEvery is how many comprehension iterations run between deadline checks.
const interruptEvery = 64

const deniedMarker = "kiln: permission denied"

var jsonValueType = reflect.TypeFor[*structpb.Value]()

// CEL compiles sandboxed plugins.
type CEL struct {
	fs ports.FileSystem
}

// NewCEL creates a sandbox that serves the readFile capability from fs.
func NewCEL(fs ports.FileSystem) *CEL {
	return &CEL{fs: fs}
}

// Load compiles one program per declared hook. The readFile capability is
// confined to root and only bound when the manifest grants fs: read.
func (s *CEL) Load(root string, spec domain.PluginSpec, limits domain.SandboxLimits) (ports.Plugin, error) {
	m := spec.Manifest
	if m.Type != domain.PluginSandboxed {
		return nil, zerr.With(zerr.With(domain.ErrInvalidPluginManifest, "plugin", m.Name), "type", string(m.Type))
	}
	for hook := range spec.Programs {
		if !m.Implements(hook) {
			return nil, zerr.With(zerr.With(domain.ErrInvalidPluginManifest, "plugin", m.Name), "undeclared_hook", string(hook))
		}
	}

	p := &plugin{
		manifest: m,
		limits:   limits,
		programs: make(map[domain.HookName]cel.Program, len(m.Hooks)),
	}

	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
		ext.Strings(),
		cel.Function("readFile",
			cel.Overload("readFile_string", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(s.readFile(root, m.Permissions.FS == domain.FSRead, limits.MemoryBytes)),
			),
		),
	)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create sandbox environment")
	}

	for _, hook := range m.Hooks {
		src, ok := spec.Programs[hook]
		if !ok {
			return nil, zerr.With(zerr.With(domain.ErrInvalidPluginManifest, "plugin", m.Name), "missing_program", string(hook))
		}
		ast, iss := env.Compile(src)
		if iss.Err() != nil {
			err := zerr.With(zerr.With(domain.ErrInvalidPluginManifest, "plugin", m.Name), "hook", string(hook))
			return nil, zerr.With(err, "compile_error", iss.Err().Error())
		}
		prg, err := env.Program(ast,
			cel.CostLimit(limits.CostBudget),
			cel.InterruptCheckFrequency(interruptEvery),
		)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to plan sandboxed program"), "hook", string(hook))
		}
		p.programs[hook] = prg
	}
	return p, nil
}

func (s *CEL) readFile(root string, granted bool, limit int) func(ref.Val) ref.Val {
	return func(arg ref.Val) ref.Val {
		if !granted {
			return types.NewErr("%s: readFile", deniedMarker)
		}
		rel, ok := arg.Value().(string)
		if !ok {
			return types.MaybeNoSuchOverloadErr(arg)
		}
		path := filepath.Join(root, filepath.FromSlash(rel))
		if r, err := filepath.Rel(root, path); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return types.NewErr("%s: %s is outside the project", deniedMarker, rel)
		}
		data, err := s.fs.ReadFile(path)
		if err != nil {
			return types.NewErr("readFile %s: %v", rel, err)
		}
		if len(data) > limit {
			return types.NewErr("actual cost limit exceeded: readFile %s is %d bytes", rel, len(data))
		}
		return types.String(data)
	}
}

type plugin struct {
	manifest domain.PluginManifest
	limits   domain.SandboxLimits
	programs map[domain.HookName]cel.Program
}

func (p *plugin) Manifest() domain.PluginManifest {
	return p.manifest
}

func (p *plugin) Invoke(ctx context.Context, hook domain.HookName, input domain.HookInput) (domain.HookOutput, error) {
	prg, ok := p.programs[hook]
	if !ok {
		return nil, zerr.With(zerr.With(domain.ErrUnknownHook, "plugin", p.manifest.Name), "hook", string(hook))
	}
	if err := domain.CheckPayload(hook, input); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode hook input")
	}
	if len(raw) > p.limits.MemoryBytes {
		return nil, p.fail(domain.ErrPluginLimitExceeded, hook, "input_bytes", len(raw))
	}
	var activation map[string]any
	if err := json.Unmarshal(raw, &activation); err != nil {
		return nil, zerr.Wrap(err, "failed to decode hook input")
	}

	val, _, err := prg.ContextEval(ctx, map[string]any{"input": activation})
	if err != nil {
		return nil, p.classify(ctx, hook, err)
	}

	encoded, err := encodeResult(hook, val)
	if err != nil {
		return nil, zerr.With(zerr.With(err, "plugin", p.manifest.Name), "hook", string(hook))
	}
	if len(encoded) > p.limits.MemoryBytes {
		return nil, p.fail(domain.ErrPluginLimitExceeded, hook, "output_bytes", len(encoded))
	}
	return decodeOutput(hook, encoded)
}

func (p *plugin) fail(sentinel error, hook domain.HookName, key string, value any) error {
	return zerr.With(zerr.With(zerr.Wrap(sentinel, p.manifest.Name), "hook", string(hook)), key, value)
}

func (p *plugin) classify(ctx context.Context, hook domain.HookName, err error) error {
	msg := err.Error()
	switch {
	case ctx.Err() != nil:
		return p.fail(domain.ErrPluginTimeout, hook, "cause", ctx.Err().Error())
	case strings.Contains(msg, "cost limit exceeded"):
		return p.fail(domain.ErrPluginLimitExceeded, hook, "cause", msg)
	case strings.Contains(msg, deniedMarker):
		return p.fail(domain.ErrPluginPermissionDenied, hook, "cause", msg)
	default:
		return p.fail(domain.ErrPluginFailed, hook, "cause", msg)
	}
}

// encodeResult converts the program result to JSON. A bare string is
// shorthand for the code of code-producing hooks.
func encodeResult(hook domain.HookName, val ref.Val) ([]byte, error) {
	if s, ok := val.(types.String); ok {
		switch hook {
		case domain.HookTransform, domain.HookRenderChunk:
			return json.Marshal(map[string]any{"code": string(s)})
		case domain.HookLoad:
			return json.Marshal(map[string]any{"handled": true, "code": string(s)})
		}
	}

	native, err := val.ConvertToNative(jsonValueType)
	if err != nil {
		return nil, zerr.With(domain.ErrHookPayloadMismatch, "result_type", val.Type().TypeName())
	}
	jv, ok := native.(*structpb.Value)
	if !ok {
		return nil, zerr.With(domain.ErrHookPayloadMismatch, "result_type", val.Type().TypeName())
	}
	return json.Marshal(jv.AsInterface())
}

func decodeOutput(hook domain.HookName, data []byte) (domain.HookOutput, error) {
	out, err := domain.NewHookOutput(hook)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return nil, zerr.Wrap(err, "failed to decode hook output")
		}
		return nil, zerr.With(zerr.With(domain.ErrHookPayloadMismatch, "hook", string(hook)), "cause", err.Error())
	}
	return reflect.ValueOf(out).Elem().Interface().(domain.HookOutput), nil
}
