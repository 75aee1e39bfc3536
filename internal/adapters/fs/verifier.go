package fs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// Verifier checks that the files a build reported were written.
type Verifier struct{}

// NewVerifier creates a new Verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifyOutputs checks that every output, a slash-separated path relative to
// dir, is a regular file under dir. It returns false when one is missing and
// an error when one escapes dir or cannot be inspected.
func (v *Verifier) VerifyOutputs(dir string, outputs []string) (bool, error) {
	for _, output := range outputs {
		rel := filepath.Clean(filepath.FromSlash(output))
		if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false, zerr.With(zerr.Wrap(domain.ErrOutputPathOutsideRoot, output), "path", output)
		}
		path := filepath.Join(dir, rel)
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, zerr.With(zerr.Wrap(err, "failed to stat output"), "path", path)
		}
		if !info.Mode().IsRegular() {
			return false, nil
		}
	}
	return true, nil
}
