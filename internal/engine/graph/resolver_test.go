package graph_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/graph"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), domain.DirPerm))
		require.NoError(t, os.WriteFile(p, []byte(content), domain.FilePerm))
	}
}

func TestResolver_Resolve(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"package.json":                            `{"name": "app", "type": "module"}`,
		"src/main.js":                             ``,
		"src/util.ts":                             ``,
		"src/components/index.tsx":                ``,
		"node_modules/cond/package.json":          `{"name": "cond", "exports": {".": {"require": "./main.cjs", "import": "./main.mjs"}, "./feature": "./feature.js"}}`,
		"node_modules/cond/main.mjs":              ``,
		"node_modules/cond/main.cjs":              ``,
		"node_modules/cond/feature.js":            ``,
		"node_modules/fields/package.json":        `{"name": "fields", "module": "./es/index.js", "main": "./lib/index.js"}`,
		"node_modules/fields/es/index.js":         ``,
		"node_modules/fields/lib/index.js":        ``,
		"node_modules/fields/lib/extra.js":        ``,
		"node_modules/@scope/pkg/package.json":    `{"name": "@scope/pkg"}`,
		"node_modules/@scope/pkg/index.js":        ``,
		"node_modules/broken/package.json":        `{"name": "broken", "exports": {"./only": "./only.js"}}`,
		"node_modules/broken/only.js":             ``,
	})
	importer := filepath.Join(root, "src", "main.js")
	esm := []string{"browser", "import", "default"}
	cjs := []string{"node", "require", "default"}

	tests := []struct {
		name          string
		specifier     string
		conditions    []string
		wantPath      string
		wantCondition string
		wantExternal  bool
		wantPackage   string
	}{
		{name: "relative with extension probing", specifier: "./util", conditions: esm, wantPath: "src/util.ts", wantPackage: "app"},
		{name: "directory index", specifier: "./components", conditions: esm, wantPath: "src/components/index.tsx", wantPackage: "app"},
		{name: "conditional import", specifier: "cond", conditions: esm, wantPath: "node_modules/cond/main.mjs", wantCondition: "import", wantPackage: "cond"},
		{name: "conditional require", specifier: "cond", conditions: cjs, wantPath: "node_modules/cond/main.cjs", wantCondition: "require", wantPackage: "cond"},
		{name: "exported subpath", specifier: "cond/feature", conditions: esm, wantPath: "node_modules/cond/feature.js", wantPackage: "cond"},
		{name: "module field for esm", specifier: "fields", conditions: esm, wantPath: "node_modules/fields/es/index.js", wantPackage: "fields"},
		{name: "main field for cjs", specifier: "fields", conditions: cjs, wantPath: "node_modules/fields/lib/index.js", wantPackage: "fields"},
		{name: "deep import without exports", specifier: "fields/lib/extra", conditions: esm, wantPath: "node_modules/fields/lib/extra.js", wantPackage: "fields"},
		{name: "scoped package", specifier: "@scope/pkg", conditions: esm, wantPath: "node_modules/@scope/pkg/index.js", wantPackage: "@scope/pkg"},
		{name: "builtin", specifier: "node:fs", conditions: cjs, wantPath: "node:fs", wantExternal: true},
		{name: "remote", specifier: "https://cdn.example.com/remote.js", conditions: esm, wantPath: "https://cdn.example.com/remote.js", wantExternal: true},
	}

	r := graph.NewResolver(fs.NewOSFileSystem())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.specifier, importer, tt.conditions)
			require.NoError(t, err)

			want := tt.wantPath
			if !tt.wantExternal {
				want = filepath.Join(root, filepath.FromSlash(tt.wantPath))
			}
			assert.Equal(t, want, got.Path)
			assert.Equal(t, tt.wantExternal, got.External)
			assert.Equal(t, tt.wantCondition, got.Condition)
			if tt.wantPackage != "" {
				require.NotNil(t, got.Package)
				assert.Equal(t, tt.wantPackage, got.Package.Name)
			}
		})
	}
}

func TestResolver_Failures(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/main.js":                      ``,
		"node_modules/broken/package.json": `{"name": "broken", "exports": {"./only": "./only.js"}}`,
		"node_modules/broken/only.js":      ``,
	})
	importer := filepath.Join(root, "src", "main.js")
	r := graph.NewResolver(fs.NewOSFileSystem())

	for _, specifier := range []string{"./missing", "missing-package", "broken", "broken/other", ""} {
		_, err := r.Resolve(specifier, importer, []string{"import"})
		require.ErrorContains(t, err, domain.ErrResolveFailed.Error(), specifier)
	}

	got, err := r.Resolve("broken/only", importer, []string{"import"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "node_modules", "broken", "only.js"), got.Path)
}

func TestResolver_Invalidate(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"package.json": `{"name": "app", "type": "commonjs"}`,
		"index.js":     ``,
	})
	r := graph.NewResolver(fs.NewOSFileSystem())
	file := filepath.Join(root, "index.js")
	assert.Equal(t, "commonjs", r.PackageOf(file).Type)

	writeFiles(t, root, map[string]string{"package.json": `{"name": "app", "type": "module"}`})
	assert.Equal(t, "commonjs", r.PackageOf(file).Type)

	r.Invalidate()
	assert.Equal(t, "module", r.PackageOf(file).Type)
}
