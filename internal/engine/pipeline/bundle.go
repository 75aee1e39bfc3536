package pipeline

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/interop"
	"go.trai.ch/zerr"
)

type recordInput struct {
	Module string `json:"module"`
	Hash   string `json:"hash"`
}

type shim struct {
	Module string `json:"module"`
	Kind   string `json:"kind"`
	Code   string `json:"code"`
}

type bundleInput struct {
	Stage   domain.Stage        `json:"stage"`
	Chunk   string              `json:"chunk"`
	Entry   string              `json:"entry"`
	Format  domain.ModuleFormat `json:"format"`
	Records []recordInput       `json:"records"`
	Shims   []shim              `json:"shims"`
}

type bundleStage struct {
	*env
}

func (s *bundleStage) Name() domain.Stage { return domain.StageBundle }

// Run links the transformed modules of every chunk into one registry
// bundle, dependencies first, with the interop shims its links name.
func (s *bundleStage) Run(ctx context.Context, in *StageInput) (*StageOutput, error) {
	chunks := make(map[string]Chunk, len(in.Chunks))
	items := make([]string, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		if len(c.Modules) == 0 {
			continue
		}
		chunks[c.Name] = c
		items = append(items, c.Name)
	}

	out := newStageOutput()
	out.Items = len(items)
	col := &collector{out: out}
	cycles := in.Graph.StaticCycles()

	err := s.each(ctx, items, func(ctx context.Context, item string) error {
		c := chunks[item]
		if err := checkCycles(in.Target, cycles, c); err != nil {
			return s.fail(domain.StageBundle, domain.DecisionTransformCycleFail, item, err)
		}
		input, err := s.input(in, c)
		if err != nil {
			return s.fail(domain.StageBundle, domain.DecisionTargetFailed, item, err)
		}
		a, hit, err := s.produce(ctx, in, domain.StageBundle, item, input, true, func(context.Context) (domain.Output, bool, error) {
			return s.link(in, input), true, nil
		})
		if err != nil {
			return s.fail(domain.StageBundle, domain.DecisionTargetFailed, item, err)
		}
		col.add(item, a, hit)
		return nil
	})
	return out, err
}

// checkCycles fails a chunk holding a static cycle unless the target
// allows cycles.
func checkCycles(t domain.Target, cycles [][]domain.InternedString, c Chunk) error {
	if t.AllowCycles {
		return nil
	}
	for _, cycle := range cycles {
		if slices.Contains(c.Modules, cycle[0]) {
			return domain.CycleError(cycle)
		}
	}
	return nil
}

func (s *bundleStage) input(in *StageInput, c Chunk) (bundleInput, error) {
	entry, _ := in.Graph.Module(c.Entry)
	input := bundleInput{
		Stage:   domain.StageBundle,
		Chunk:   c.Name,
		Entry:   relID(s.root, entry),
		Format:  in.Target.Format,
		Records: make([]recordInput, 0, len(c.Modules)),
		Shims:   []shim{},
	}

	seen := make(map[string]bool)
	for _, id := range c.Modules {
		m, _ := in.Graph.Module(id)
		item := relID(s.root, m)
		a, ok := in.Artifact(domain.StageTransform, item)
		if !ok {
			return bundleInput{}, zerr.With(zerr.Wrap(domain.ErrTransformFailed, "module was not transformed"), "module", item)
		}
		input.Records = append(input.Records, recordInput{Module: item, Hash: a.OutputHash})

		for _, e := range m.Dependencies() {
			dep, ok := in.Graph.Module(e.To)
			if !ok {
				continue
			}
			exports := in.Exports[e.To]
			kind := linkKind(e, m, dep, exports)
			if kind != linkESM && kind != linkCJS {
				continue
			}
			sh := shim{Module: relID(s.root, dep), Kind: kind}
			if seen[sh.Module+"|"+kind] {
				continue
			}
			seen[sh.Module+"|"+kind] = true
			sh.Code, _ = interop.GenerateInteropWrapper(exports, domain.ModuleFormat(kind))
			input.Shims = append(input.Shims, sh)
		}
	}
	slices.SortFunc(input.Shims, func(a, b shim) int {
		return cmp.Or(cmp.Compare(a.Module, b.Module), cmp.Compare(a.Kind, b.Kind))
	})

	for _, sh := range input.Shims {
		s.events.Emit(domain.Event{
			Stage:    string(domain.StageBundle),
			Decision: domain.DecisionInteropWrapper,
			Reason:   "interop shim linked",
			Level:    domain.LogLevelDebug,
			Data:     map[string]any{"chunk": c.Name, "module": sh.Module, "kind": sh.Kind},
		})
	}
	return input, nil
}

// link concatenates the chunk: registry prelude, shims, records and the
// entry bootstrap.
func (s *bundleStage) link(in *StageInput, input bundleInput) domain.Output {
	var b strings.Builder
	b.WriteString(prelude)
	for _, sh := range input.Shims {
		b.WriteString("__kiln_shim(" + strconv.Quote(sh.Module) + ", " + strconv.Quote(sh.Kind) + ", ")
		b.WriteString(sh.Code)
		b.WriteString(");\n")
	}
	for _, r := range input.Records {
		a, _ := in.Artifact(domain.StageTransform, r.Module)
		b.Write(a.Output.Code)
	}
	writeBootstrap(&b, input.Entry, input.Format)
	return domain.Output{Code: []byte(b.String())}
}
