//go:build cgo

package scan_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/scan"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

func TestScanners_Conformance(t *testing.T) {
	scanners := map[string]ports.Scanner{
		"lexer":      scan.NewLexer(),
		"treesitter": scan.NewTreeSitter(),
	}

	files, err := filepath.Glob(filepath.Join("testdata", "fixtures", "*.js"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			src, err := os.ReadFile(file)
			require.NoError(t, err)

			want, err := scanners["lexer"].Scan(src)
			require.NoError(t, err)
			got, err := scanners["treesitter"].Scan(src)
			require.NoError(t, err)

			assert.Equal(t, want, got)
		})
	}
}

func TestScanners_BrokenConformance(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "broken", "*.js"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			src, err := os.ReadFile(file)
			require.NoError(t, err)

			for name, s := range map[string]ports.Scanner{"lexer": scan.NewLexer(), "treesitter": scan.NewTreeSitter()} {
				_, err := s.Scan(src)
				require.ErrorContains(t, err, domain.ErrScanFailed.Error(), name)
			}
		})
	}
}
