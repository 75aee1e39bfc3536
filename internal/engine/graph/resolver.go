package graph

import (
	"encoding/json"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/interop"
	"go.trai.ch/zerr"
)

// ProbeExtensions are tried, in order, for specifiers without an extension.
var ProbeExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".json", ".css"}

const packageFile = "package.json"

// Resolver maps import specifiers to files the way node does: relative
// specifiers with extension and index probing, bare specifiers through
// node_modules with conditional exports, then the module and main fields.
type Resolver struct {
	fs ports.FileSystem

	mu       sync.Mutex
	packages map[string]*domain.PackageMeta
}

// NewResolver creates a Resolver reading from fs.
func NewResolver(fs ports.FileSystem) *Resolver {
	return &Resolver{
		fs:       fs,
		packages: make(map[string]*domain.PackageMeta),
	}
}

// Invalidate drops every cached package.json.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.packages)
}

// Resolve resolves specifier as imported from importer.
func (r *Resolver) Resolve(specifier, importer string, conditions []string) (domain.Resolution, error) {
	fail := func(reason string) error {
		return zerr.With(zerr.With(zerr.With(domain.ErrResolveFailed, "specifier", specifier), "importer", importer), "reason", reason)
	}

	switch {
	case specifier == "":
		return domain.Resolution{}, fail("empty specifier")
	case IsExternal(specifier):
		return domain.Resolution{Path: specifier, External: true}, nil
	case isRelative(specifier) || filepath.IsAbs(specifier):
		base := filepath.FromSlash(specifier)
		if !filepath.IsAbs(base) {
			base = filepath.Join(filepath.Dir(importer), base)
		}
		p, ok := r.probe(base)
		if !ok {
			return domain.Resolution{}, fail("file not found")
		}
		return domain.Resolution{Path: p, Package: r.PackageOf(p)}, nil
	}

	name, subpath := splitBare(specifier)
	for dir := filepath.Dir(importer); ; dir = filepath.Dir(dir) {
		pkgDir := filepath.Join(dir, "node_modules", filepath.FromSlash(name))
		if r.fs.IsFile(filepath.Join(pkgDir, packageFile)) {
			res, err := r.resolvePackage(pkgDir, subpath, conditions)
			if err != nil {
				return domain.Resolution{}, fail(err.Error())
			}
			return res, nil
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}
	return domain.Resolution{}, fail("package not found")
}

func (r *Resolver) resolvePackage(pkgDir, subpath string, conditions []string) (domain.Resolution, error) {
	meta := r.readPackage(pkgDir)
	if meta == nil {
		return domain.Resolution{}, zerr.New("unreadable package.json")
	}

	if len(meta.Exports) > 0 {
		exports, err := interop.ParseExports(meta.Exports)
		if err != nil {
			return domain.Resolution{}, err
		}
		target, ok := interop.ResolveConditionalExports(exports, "."+subpath, conditions)
		if !ok {
			return domain.Resolution{}, zerr.New("subpath not exported")
		}
		p := filepath.Join(pkgDir, filepath.FromSlash(target.Path))
		if !r.fs.IsFile(p) {
			return domain.Resolution{}, zerr.New("exported file not found")
		}
		return domain.Resolution{Path: p, Package: meta, Condition: target.Condition()}, nil
	}

	if subpath != "" {
		p, ok := r.probe(filepath.Join(pkgDir, filepath.FromSlash(subpath)))
		if !ok {
			return domain.Resolution{}, zerr.New("file not found")
		}
		return domain.Resolution{Path: p, Package: meta}, nil
	}

	var candidates []string
	if meta.Module != "" && (slices.Contains(conditions, "import") || slices.Contains(conditions, "module")) {
		candidates = append(candidates, meta.Module)
	}
	if meta.Main != "" {
		candidates = append(candidates, meta.Main)
	}
	candidates = append(candidates, "index")
	for _, c := range candidates {
		if p, ok := r.probe(filepath.Join(pkgDir, filepath.FromSlash(c))); ok {
			return domain.Resolution{Path: p, Package: meta}, nil
		}
	}
	return domain.Resolution{}, zerr.New("no entry point")
}

// PackageOf returns the nearest package.json above file, or nil.
func (r *Resolver) PackageOf(file string) *domain.PackageMeta {
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		if r.fs.IsFile(filepath.Join(dir, packageFile)) {
			return r.readPackage(dir)
		}
		if filepath.Base(dir) == "node_modules" || filepath.Dir(dir) == dir {
			return nil
		}
	}
}

func (r *Resolver) readPackage(dir string) *domain.PackageMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	if meta, ok := r.packages[dir]; ok {
		return meta
	}

	var meta *domain.PackageMeta
	if data, err := r.fs.ReadFile(filepath.Join(dir, packageFile)); err == nil {
		var m domain.PackageMeta
		if json.Unmarshal(data, &m) == nil {
			m.Dir = dir
			meta = &m
		}
	}
	r.packages[dir] = meta
	return meta
}

func (r *Resolver) probe(base string) (string, bool) {
	if r.fs.IsFile(base) {
		return base, true
	}
	for _, ext := range ProbeExtensions {
		if p := base + ext; r.fs.IsFile(p) {
			return p, true
		}
	}
	if r.fs.IsDir(base) {
		for _, ext := range ProbeExtensions {
			if p := filepath.Join(base, "index"+ext); r.fs.IsFile(p) {
				return p, true
			}
		}
	}
	return "", false
}

// IsExternal reports whether specifier names something that is never
// bundled: a runtime builtin or a remote module.
func IsExternal(specifier string) bool {
	return strings.HasPrefix(specifier, "node:") || strings.Contains(specifier, "://")
}

func isRelative(specifier string) bool {
	return specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

// splitBare splits "pkg/sub" and "@scope/pkg/sub" into the package name and
// the subpath, which is empty or starts with a slash.
func splitBare(specifier string) (string, string) {
	parts := strings.SplitN(specifier, "/", 3)
	n := 1
	if strings.HasPrefix(specifier, "@") && len(parts) > 1 {
		n = 2
	}
	name := strings.Join(parts[:min(n, len(parts))], "/")
	return name, strings.TrimPrefix(specifier, name)
}
