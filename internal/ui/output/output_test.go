package output_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/ui/output"
)

func TestColorProfile_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, termenv.Ascii, output.ColorProfile(&bytes.Buffer{}))
}

func TestColorProfile_PipedFile(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	f, err := os.Create(filepath.Join(t.TempDir(), "report.txt"))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, termenv.Ascii, output.ColorProfile(f))
}

func TestNew_PlainWhenNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	out := output.New(buf)
	_, err := out.WriteString(out.String("hello").Foreground(termenv.ANSIRed).String())

	assert.NoError(t, err)
	assert.Equal(t, "hello", buf.String())
}

func TestReport_Plain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	r := &domain.BuildReport{
		Targets: []domain.TargetResult{
			{
				Name:    "client",
				Success: true,
				Outputs: []string{"dist/client/main.js"},
				Stages: []domain.StageResult{
					{Stage: domain.StageTransform, Status: domain.StageStatusCached},
					{Stage: domain.StageBundle, Status: domain.StageStatusCompleted},
				},
			},
			{Name: "ssr", Error: "bundle: import cycle"},
		},
		CacheHits:               3,
		CacheMisses:             1,
		HitRatio:                0.75,
		NonDeterministicPlugins: []string{"stamp"},
		Cycles:                  [][]string{{"src/a.js", "src/b.js"}},
		Warnings:                []string{"budget: main.js is large"},
		Duration:                1500 * time.Millisecond,
	}

	buf := &bytes.Buffer{}
	require.NoError(t, output.Report(buf, r))

	assert.Equal(t, `✓ client 1 files, 1 stages run, 1 cached
  ● transform ✓ bundle
  → dist/client/main.js
✗ ssr bundle: import cycle
cache 3 hits, 1 misses (75.0%)
! non-deterministic plugins bypassed the cache: stamp
! import cycle: src/a.js → src/b.js
! budget: main.js is large
done in 1.5s
`, buf.String())
}

func TestJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, output.JSON(buf, &domain.BuildReport{RunID: "run", NonDeterministicPlugins: []string{}, Events: []domain.Event{}}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run", decoded["runId"])
	assert.Contains(t, decoded, "nonDeterministicPlugins")
}
