package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/css"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// Metafile describes the inputs and outputs of one target build, in the
// layout bundle analyzers read.
type Metafile struct {
	Inputs  map[string]MetaInput  `json:"inputs"`
	Outputs map[string]MetaOutput `json:"outputs"`
}

// MetaInput is one source module.
type MetaInput struct {
	Bytes   int          `json:"bytes"`
	Format  string       `json:"format,omitempty"`
	Imports []MetaImport `json:"imports"`
}

// MetaImport is one import of a module or output.
type MetaImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

// MetaOutput is one written file.
type MetaOutput struct {
	Bytes      int                        `json:"bytes"`
	EntryPoint string                     `json:"entryPoint,omitempty"`
	Inputs     map[string]MetaOutputInput `json:"inputs"`
	Imports    []MetaImport               `json:"imports"`
	Exports    []string                   `json:"exports"`
	CSSBundle  string                     `json:"cssBundle,omitempty"`
}

// MetaOutputInput is the share of an output one input accounts for.
type MetaOutputInput struct {
	BytesInOutput int `json:"bytesInOutput"`
}

type outputStage struct {
	*env
}

func (s *outputStage) Name() domain.Stage { return domain.StageOutput }

type outputFile struct {
	rel  string
	data []byte
}

// Run writes every chunk and stylesheet of the target, then the metafile
// once all of them are in place.
func (s *outputStage) Run(ctx context.Context, in *StageInput) (*StageOutput, error) {
	outDir := filepath.ToSlash(filepath.Clean(in.Target.OutDir))
	files := s.files(in, outDir)
	meta, err := json.MarshalIndent(s.metafile(in, outDir, files), "", "  ")
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrOutputWriteFailed.Error())
	}

	out := newStageOutput()
	out.Items = len(files) + 1
	var mu sync.Mutex

	metaID := domain.NewInternedString(path.Join(outDir, domain.MetafileName))
	jobs := make([]scheduler.Job, 0, len(files)+1)
	deps := make([]domain.InternedString, 0, len(files))
	write := func(f outputFile) func(context.Context) error {
		return func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := writeAtomic(filepath.Join(s.root, filepath.FromSlash(f.rel)), f.data); err != nil {
				return s.fail(domain.StageOutput, domain.DecisionTargetFailed, f.rel, err)
			}
			s.events.Emit(domain.Event{
				Stage:    string(domain.StageOutput),
				Decision: domain.DecisionOutputWritten,
				Reason:   "output written",
				Level:    domain.LogLevelDebug,
				Data:     map[string]any{"target": in.Target.Name, "path": f.rel, "bytes": len(f.data)},
			})
			mu.Lock()
			out.Files = append(out.Files, f.rel)
			mu.Unlock()
			return nil
		}
	}
	for _, f := range files {
		id := domain.NewInternedString(f.rel)
		deps = append(deps, id)
		jobs = append(jobs, scheduler.Job{ID: id, Run: write(f)})
	}
	jobs = append(jobs, scheduler.Job{
		ID:   metaID,
		Deps: deps,
		Run:  write(outputFile{rel: metaID.String(), data: append(meta, '\n')}),
	})

	err = scheduler.NewScheduler().Run(ctx, jobs, s.workers)
	slices.Sort(out.Files)
	return out, err
}

// files lists the outputs of the target: one script per bundled chunk and
// one stylesheet per chunk with styles.
func (s *outputStage) files(in *StageInput, outDir string) []outputFile {
	var files []outputFile
	for _, c := range in.Chunks {
		if a, ok := in.Artifact(domain.StageOptimize, c.Name); ok {
			files = append(files, outputFile{rel: path.Join(outDir, c.Name+".js"), data: a.Output.Code})
		}
		if a, ok := in.Artifact(domain.StageCSSOptimize, c.Name); ok {
			files = append(files, outputFile{rel: path.Join(outDir, c.Name+".css"), data: a.Output.Code})
		}
	}
	return files
}

func (s *outputStage) metafile(in *StageInput, outDir string, files []outputFile) Metafile {
	meta := Metafile{
		Inputs:  make(map[string]MetaInput),
		Outputs: make(map[string]MetaOutput),
	}
	sizes := make(map[string]int, len(files))
	for _, f := range files {
		sizes[f.rel] = len(f.data)
	}

	for m := range in.Graph.Walk() {
		if m.External {
			continue
		}
		input := MetaInput{Bytes: len(m.Content), Imports: []MetaImport{}}
		if m.Kind != domain.KindStyle {
			input.Format = string(m.Format)
		}
		for _, e := range m.Dependencies() {
			if dep, ok := in.Graph.Module(e.To); ok {
				input.Imports = append(input.Imports, MetaImport{Path: relID(s.root, dep), Kind: importKind(e), External: dep.External})
			}
		}
		meta.Inputs[relID(s.root, m)] = input
	}

	for _, c := range in.Chunks {
		entry, _ := in.Graph.Module(c.Entry)
		jsPath := path.Join(outDir, c.Name+".js")
		cssPath := path.Join(outDir, c.Name+".css")
		_, hasCSS := sizes[cssPath]

		if size, ok := sizes[jsPath]; ok {
			o := MetaOutput{
				Bytes:      size,
				EntryPoint: relID(s.root, entry),
				Inputs:     make(map[string]MetaOutputInput, len(c.Modules)),
				Imports:    []MetaImport{},
				Exports:    []string{"default"},
			}
			for _, id := range c.Modules {
				m, _ := in.Graph.Module(id)
				rel := relID(s.root, m)
				if a, ok := in.Artifact(domain.StageTransform, rel); ok {
					o.Inputs[rel] = MetaOutputInput{BytesInOutput: len(a.Output.Code)}
				}
				for _, e := range m.Dependencies() {
					if dep, ok := in.Graph.Module(e.To); ok && dep.External {
						o.Imports = append(o.Imports, MetaImport{Path: dep.Path, Kind: importKind(e), External: true})
					}
				}
			}
			slices.SortFunc(o.Imports, func(a, b MetaImport) int {
				return strings.Compare(a.Path+"|"+a.Kind, b.Path+"|"+b.Kind)
			})
			o.Imports = slices.Compact(o.Imports)
			if hasCSS {
				o.CSSBundle = cssPath
			}
			meta.Outputs[jsPath] = o
		}

		if hasCSS {
			o := MetaOutput{
				Bytes:   sizes[cssPath],
				Inputs:  make(map[string]MetaOutputInput),
				Imports: []MetaImport{},
				Exports: []string{},
			}
			for _, e := range c.Styles {
				if m, ok := in.Graph.Module(e.To); ok {
					o.Inputs[relID(s.root, m)] = MetaOutputInput{BytesInOutput: len(css.StripImports(m.Content))}
				}
			}
			if entry.Kind == domain.KindStyle {
				o.EntryPoint = relID(s.root, entry)
			}
			meta.Outputs[cssPath] = o
		}
	}
	return meta
}

func importKind(e domain.GraphEdge) string {
	switch {
	case e.Kind == domain.EdgeCSSImport && strings.HasSuffix(e.From.String(), ".css"):
		return "import-rule"
	case e.Kind == domain.EdgeDynamicImport:
		return "dynamic-import"
	case e.Ref.Kind == domain.ImportRequire:
		return "require-call"
	default:
		return "import-statement"
	}
}

// writeAtomic replaces path with data through a temporary file and a
// rename. An existing file with identical content is left untouched.
func writeAtomic(target string, data []byte) error {
	if existing, err := os.ReadFile(target); err == nil && bytes.Equal(existing, data) {
		return nil
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrOutputWriteFailed, err.Error()), "path", dir)
	}
	tmp, err := os.CreateTemp(dir, ".kiln-*")
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrOutputWriteFailed, err.Error()), "path", dir)
	}
	tmpName := tmp.Name()
	fail := func(cause error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return zerr.With(zerr.Wrap(domain.ErrOutputWriteFailed, cause.Error()), "path", target)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(domain.FilePerm); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return zerr.With(zerr.Wrap(domain.ErrOutputWriteFailed, err.Error()), "path", target)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return zerr.With(zerr.Wrap(domain.ErrOutputWriteFailed, err.Error()), "path", target)
	}
	return nil
}
