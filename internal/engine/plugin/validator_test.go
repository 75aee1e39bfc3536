package plugin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/hashing"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/plugin"
	"go.trai.ch/kiln/internal/engine/report"
)

func TestValidator_RandomOutputIsNotCached(t *testing.T) {
	rt, events := newRuntime(t, 0)
	_, err := rt.Register(appender("stable", "!"))
	require.NoError(t, err)
	random, err := rt.Register(randomPlugin())
	require.NoError(t, err)

	v := plugin.NewValidator(rt, hashing.NewPortable(), events)
	assert.True(t, v.Cacheable(domain.HookTransform))

	results, err := v.ValidateAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byKey := map[string]domain.DeterminismResult{}
	for _, r := range results {
		byKey[r.PluginName+"/"+string(r.Hook)] = r
	}
	assert.True(t, byKey["stable/"+string(domain.HookTransform)].PassesDeterminism)
	assert.Equal(t, 0, byKey["stable/"+string(domain.HookRenderChunk)].MutationScore)

	got := byKey["random/"+string(domain.HookTransform)]
	assert.Equal(t, random.ID, got.PluginID)
	assert.False(t, got.PassesDeterminism)
	assert.Equal(t, 1, got.MutationScore)

	assert.False(t, v.Cacheable(domain.HookTransform))
	assert.True(t, v.Cacheable(domain.HookRenderChunk))
	assert.Equal(t, []string{"random"}, rt.Excluded())
	assert.Equal(t, results, v.Results())

	_, cacheable, err := rt.Transform(context.Background(), domain.TransformInput{Code: "x"})
	require.NoError(t, err)
	assert.False(t, cacheable)

	var validated int
	for _, e := range events.Events() {
		if e.Decision == domain.DecisionPluginValidated {
			validated++
		}
	}
	assert.Equal(t, 3, validated)
}

func TestValidator_FailingHookIsExcluded(t *testing.T) {
	rt, _ := newRuntime(t, 0)
	broken := funcPlugin{
		manifest: manifest("broken", domain.HookLoad),
		fn: func(context.Context, domain.HookName, domain.HookInput) (domain.HookOutput, error) {
			return nil, domain.ErrPluginFailed
		},
	}
	_, err := rt.Register(broken)
	require.NoError(t, err)

	v := plugin.NewValidator(rt, hashing.NewPortable(), report.NewCollector(nil, false))
	results, err := v.ValidateAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].PassesDeterminism)
	assert.NotEmpty(t, results[0].Error)
	assert.False(t, rt.Cacheable(domain.HookLoad))
}

func TestValidator_UsesProvidedSamples(t *testing.T) {
	rt, _ := newRuntime(t, 0)
	var seen []string
	recorder := funcPlugin{
		manifest: manifest("recorder", domain.HookTransform),
		fn: func(_ context.Context, _ domain.HookName, in domain.HookInput) (domain.HookOutput, error) {
			seen = append(seen, in.(domain.TransformInput).Path)
			return domain.TransformOutput{Code: "ok"}, nil
		},
	}
	_, err := rt.Register(recorder)
	require.NoError(t, err)

	v := plugin.NewValidator(rt, hashing.NewPortable(), nil)
	samples := map[domain.HookName]domain.HookInput{
		domain.HookTransform: domain.TransformInput{Path: "/src/main.js", Code: "x"},
	}
	_, err = v.ValidateAll(context.Background(), samples)
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/main.js", "/src/main.js"}, seen)
}

func TestSample_MatchesHook(t *testing.T) {
	for _, hook := range domain.HookNames {
		require.NoError(t, domain.CheckPayload(hook, plugin.Sample(hook)), hook)
	}
}
