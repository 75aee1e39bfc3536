package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/ui/style"
)

// Report writes a human-readable summary of a build report to w.
func Report(w io.Writer, r *domain.BuildReport) error {
	renderer := lipgloss.NewRenderer(w, termenv.WithProfile(ColorProfile(w)))
	ok := renderer.NewStyle().Foreground(style.Green)
	failed := renderer.NewStyle().Foreground(style.Red)
	warn := renderer.NewStyle().Foreground(style.Yellow)
	dim := renderer.NewStyle().Foreground(style.Slate)
	name := renderer.NewStyle().Bold(true).Foreground(style.Ember)
	stages := func(results []domain.StageResult) string {
		parts := make([]string, 0, len(results))
		for _, sr := range results {
			icon := renderer.NewStyle().Foreground(style.StageColor(sr.Status)).Render(style.StageIcon(sr.Status))
			parts = append(parts, icon+" "+string(sr.Stage))
		}
		return strings.Join(parts, " ")
	}

	var b strings.Builder
	for _, t := range r.Targets {
		if t.Success {
			fmt.Fprintf(&b, "%s %s %s\n", ok.Render(style.Check), name.Render(t.Name),
				dim.Render(fmt.Sprintf("%d files, %s", len(t.Outputs), stageSummary(t.Stages))))
			if len(t.Stages) > 0 {
				fmt.Fprintf(&b, "  %s\n", stages(t.Stages))
			}
			for _, o := range t.Outputs {
				fmt.Fprintf(&b, "  %s %s\n", dim.Render(style.Arrow), o)
			}
			continue
		}
		fmt.Fprintf(&b, "%s %s %s\n", failed.Render(style.Cross), name.Render(t.Name), t.Error)
		if len(t.Stages) > 0 {
			fmt.Fprintf(&b, "  %s\n", stages(t.Stages))
		}
	}

	fmt.Fprintf(&b, "%s %d hits, %d misses (%.1f%%)\n",
		dim.Render("cache"), r.CacheHits, r.CacheMisses, r.HitRatio*100)
	if len(r.NonDeterministicPlugins) > 0 {
		fmt.Fprintf(&b, "%s non-deterministic plugins bypassed the cache: %s\n",
			warn.Render(style.Warning), strings.Join(r.NonDeterministicPlugins, ", "))
	}
	for _, cycle := range r.Cycles {
		fmt.Fprintf(&b, "%s import cycle: %s\n", warn.Render(style.Warning), strings.Join(cycle, " "+style.Arrow+" "))
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "%s %s\n", warn.Render(style.Warning), w)
	}
	fmt.Fprintf(&b, "%s %s\n", dim.Render("done in"), r.Duration.Round(time.Millisecond))

	_, err := io.WriteString(w, b.String())
	return err
}

// JSON writes r as indented JSON.
func JSON(w io.Writer, r *domain.BuildReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// stageSummary counts the stages of a target that were served from the
// cache.
func stageSummary(stages []domain.StageResult) string {
	var cached, ran int
	for _, s := range stages {
		switch s.Status {
		case domain.StageStatusCached:
			cached++
		case domain.StageStatusCompleted:
			ran++
		}
	}
	return fmt.Sprintf("%d stages run, %d cached", ran, cached)
}
