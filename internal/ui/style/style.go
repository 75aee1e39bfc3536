// Package style provides shared UI styling primitives including brand colors
// and icons for consistent visual presentation across the CLI.
package style

import (
	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/kiln/internal/core/domain"
)

// Brand Colors.
var (
	Ember  = lipgloss.Color("#F97316")
	Slate  = lipgloss.Color("#667085")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
	Sky    = lipgloss.Color("#0EA5E9")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Arrow   = "→"
	Dot     = "●"
	Circle  = "○"
)

// StageIcon returns the icon shown for a stage in the given status.
func StageIcon(s domain.StageStatus) string {
	switch s {
	case domain.StageStatusCompleted:
		return Check
	case domain.StageStatusFailed:
		return Cross
	case domain.StageStatusCached:
		return Dot
	default:
		return Circle
	}
}

// StageColor returns the color a stage in the given status is rendered in.
func StageColor(s domain.StageStatus) lipgloss.Color {
	switch s {
	case domain.StageStatusCompleted:
		return Green
	case domain.StageStatusFailed:
		return Red
	case domain.StageStatusCached:
		return Sky
	default:
		return Slate
	}
}
