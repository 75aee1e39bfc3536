// Package output renders build reports and styled log lines. Color is
// dropped when the destination is not a terminal so piped reports stay
// plain.
package output

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

type fileDescriptor interface {
	Fd() uintptr
}

// ColorProfile returns the color profile to render w with. NO_COLOR always
// wins. Files that are not a terminal, or any file when CI is set, render as
// Ascii. Other writers follow the environment.
func ColorProfile(w io.Writer) termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	if f, ok := w.(fileDescriptor); ok && (isCI() || !term.IsTerminal(int(f.Fd()))) {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

func isCI() bool {
	ci := os.Getenv("CI")
	return ci == "true" || ci == "1"
}

// New creates a termenv.Output for w using ColorProfile.
func New(w io.Writer, opts ...termenv.OutputOption) *termenv.Output {
	if w == nil {
		w = os.Stderr
	}

	opts = append(opts,
		termenv.WithProfile(ColorProfile(w)),
		termenv.WithTTY(true),
	)

	return termenv.NewOutput(w, opts...)
}
