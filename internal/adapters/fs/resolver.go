package fs

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.EntryResolver = (*Resolver)(nil)

// Resolver expands entry patterns by walking the project.
type Resolver struct {
	walker *Walker
}

// NewResolver creates a new Resolver.
func NewResolver(walker *Walker) *Resolver {
	return &Resolver{walker: walker}
}

// ResolveEntries resolves the given patterns to a sorted list of absolute file paths.
// A pattern without glob metacharacters must name an existing file. Globs
// skip the directories in ignores, so earlier build outputs never become
// entries.
func (r *Resolver) ResolveEntries(patterns []string, root string, ignores []string) ([]string, error) {
	unique := make(map[string]bool)

	var globs []string
	for _, p := range patterns {
		p = filepath.ToSlash(strings.TrimPrefix(p, "./"))
		if !doublestar.ValidatePattern(p) {
			return nil, zerr.With(zerr.New("invalid entry pattern"), "pattern", p)
		}
		if !hasMeta(p) {
			abs := filepath.Join(root, filepath.FromSlash(p))
			if !isFile(abs) {
				return nil, zerr.With(zerr.Wrap(domain.ErrEntryMissing, abs), "path", abs)
			}
			unique[abs] = true
			continue
		}
		globs = append(globs, p)
	}

	if len(globs) > 0 {
		matched := make(map[string]bool, len(globs))
		for rel := range r.walker.WalkFiles(root, ignores) {
			for _, g := range globs {
				if ok, _ := doublestar.Match(g, rel); ok {
					unique[filepath.Join(root, filepath.FromSlash(rel))] = true
					matched[g] = true
				}
			}
		}
		for _, g := range globs {
			if !matched[g] {
				return nil, zerr.With(zerr.Wrap(domain.ErrEntryMissing, g), "pattern", g)
			}
		}
	}

	result := make([]string, 0, len(unique))
	for path := range unique {
		result = append(result, path)
	}
	slices.Sort(result)

	return result, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
