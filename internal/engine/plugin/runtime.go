// Package plugin runs extension hooks at the pipeline's fixed extension points
// and checks that their outputs are reproducible before they are cached.
package plugin

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// stage is the event stage plugin decisions are reported under.
const stage = "plugin"

type entry struct {
	record domain.PluginRecord
	impl   ports.Plugin
}

// Runtime holds the loaded plugins of one builder in registration order.
type Runtime struct {
	hasher  ports.Hasher
	events  ports.EventSink
	timeout time.Duration

	mu       sync.RWMutex
	plugins  []*entry
	byID     map[string]*entry
	excluded map[string]bool
}

// NewRuntime creates a Runtime. A zero timeout leaves hook calls unbounded.
func NewRuntime(hasher ports.Hasher, events ports.EventSink, timeout time.Duration) *Runtime {
	return &Runtime{
		hasher:   hasher,
		events:   events,
		timeout:  timeout,
		byID:     make(map[string]*entry),
		excluded: make(map[string]bool),
	}
}

// PluginID derives the stable id of a plugin from its name and version.
func PluginID(hasher ports.Hasher, name, version string) (string, error) {
	id, err := hasher.CanonicalHash(struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}{name, version})
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrHashFailed.Error()), "plugin", name)
	}
	return id, nil
}

// Register validates the plugin's manifest and appends it to the chain.
func (r *Runtime) Register(impl ports.Plugin) (domain.PluginRecord, error) {
	m := impl.Manifest()
	if err := m.Validate(); err != nil {
		return domain.PluginRecord{}, err
	}
	id, err := PluginID(r.hasher, m.Name, m.Version)
	if err != nil {
		return domain.PluginRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		return domain.PluginRecord{}, zerr.With(zerr.With(domain.ErrDuplicatePlugin, "plugin", m.Name), "version", m.Version)
	}
	e := &entry{
		record: domain.PluginRecord{ID: id, Manifest: m},
		impl:   impl,
	}
	r.plugins = append(r.plugins, e)
	r.byID[id] = e
	return e.record, nil
}

// LoadAll instantiates every configured plugin, sandboxed ones through sandbox
// and native ones through native, and registers them in order.
func (r *Runtime) LoadAll(
	root string,
	specs []domain.PluginSpec,
	limits domain.SandboxLimits,
	sandbox ports.Sandbox,
	native ports.NativeLoader,
) error {
	for _, spec := range specs {
		if err := spec.Manifest.Validate(); err != nil {
			return err
		}
		var (
			p   ports.Plugin
			err error
		)
		switch spec.Manifest.Type {
		case domain.PluginSandboxed:
			p, err = sandbox.Load(root, spec, limits)
		default:
			p, err = native.Load(spec)
		}
		if err != nil {
			return err
		}
		if _, err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Plugins returns the registered plugins in registration order.
func (r *Runtime) Plugins() []domain.PluginRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PluginRecord, len(r.plugins))
	for i, e := range r.plugins {
		out[i] = e.record
	}
	return out
}

// Len returns the number of registered plugins.
func (r *Runtime) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// RunHook invokes hook on the plugin with the given id under the per-invocation
// timeout. Payloads are checked against the hook on both sides of the call.
// On timeout RunHook returns without waiting for the plugin; a native hook
// that ignores ctx keeps running in the background until it returns, and its
// result is discarded.
func (r *Runtime) RunHook(ctx context.Context, id string, hook domain.HookName, input domain.HookInput) (domain.HookOutput, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, zerr.With(domain.ErrPluginFailed, "plugin_id", id)
	}
	return r.invoke(ctx, e, hook, input)
}

func (r *Runtime) invoke(ctx context.Context, e *entry, hook domain.HookName, input domain.HookInput) (domain.HookOutput, error) {
	m := e.record.Manifest
	if !hook.Valid() || !m.Implements(hook) {
		return nil, zerr.With(zerr.With(domain.ErrUnknownHook, "plugin", m.Name), "hook", string(hook))
	}
	if err := domain.CheckPayload(hook, input); err != nil {
		return nil, zerr.With(err, "plugin", m.Name)
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type result struct {
		out domain.HookOutput
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := e.impl.Invoke(callCtx, hook, input)
		done <- result{out, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, r.fail(domain.ErrPluginTimeout, m, hook)
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, r.fail(domain.ErrPluginTimeout, m, hook)
		}
		return nil, res.err
	}
	out := normalize(res.out)
	if err := domain.CheckPayload(hook, out); err != nil {
		return nil, zerr.With(err, "plugin", m.Name)
	}
	return out, nil
}

func (r *Runtime) fail(sentinel error, m domain.PluginManifest, hook domain.HookName) error {
	err := zerr.With(zerr.Wrap(sentinel, m.Name), "plugin", m.Name)
	return zerr.With(zerr.With(err, "hook", string(hook)), "timeout", r.timeout.String())
}

// normalize dereferences pointer payloads so chains can type-switch on values.
func normalize(out domain.HookOutput) domain.HookOutput {
	if out == nil {
		return nil
	}
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return out
	}
	if o, ok := v.Elem().Interface().(domain.HookOutput); ok {
		return o
	}
	return out
}

// implementing returns the plugins declaring hook, in registration order.
func (r *Runtime) implementing(hook domain.HookName) []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entry
	for _, e := range r.plugins {
		if e.record.Manifest.Implements(hook) {
			out = append(out, e)
		}
	}
	return out
}

// Exclude marks the plugin's outputs as not cacheable for the rest of the
// builder's lifetime.
func (r *Runtime) Exclude(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.excluded[id] = true
}

// Cacheable reports whether outputs produced through hook may be cached:
// no plugin implementing it has been excluded.
func (r *Runtime) Cacheable(hook domain.HookName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.plugins {
		if e.record.Manifest.Implements(hook) && r.excluded[e.record.ID] {
			return false
		}
	}
	return true
}

// Excluded returns the names of excluded plugins, sorted.
func (r *Runtime) Excluded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := []string{}
	for _, e := range r.plugins {
		if r.excluded[e.record.ID] {
			names = append(names, e.record.Manifest.Name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Fingerprint identifies the plugins taking part in hook, so cache keys change
// when the plugin set does.
func (r *Runtime) Fingerprint(hook domain.HookName) []string {
	ids := []string{}
	for _, e := range r.implementing(hook) {
		ids = append(ids, e.record.ID)
	}
	return ids
}

func (r *Runtime) report(decision string, level domain.LogLevel, m domain.PluginManifest, hook domain.HookName, err error) {
	if r.events == nil {
		return
	}
	data := map[string]any{"plugin": m.Name, "hook": string(hook)}
	reason := decision
	if err != nil {
		reason = err.Error()
	}
	r.events.Emit(domain.Event{
		Stage:    stage,
		Decision: decision,
		Reason:   reason,
		Level:    level,
		Data:     data,
	})
}

// failure reports a failed hook call and tells whether the chain should
// continue past it.
func (r *Runtime) failure(ctx context.Context, m domain.PluginManifest, hook domain.HookName, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	decision := domain.DecisionPluginFailed
	if errors.Is(err, domain.ErrPluginTimeout) {
		decision = domain.DecisionPluginTimeout
	}
	r.report(decision, domain.LogLevelWarn, m, hook, err)
	return true
}
