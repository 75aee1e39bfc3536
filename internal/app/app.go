// Package app implements the application layer for kiln.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/adapters/telemetry"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/graph"
	"go.trai.ch/kiln/internal/engine/pipeline"
	"go.trai.ch/kiln/internal/ui/output"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	entries      ports.EntryResolver
	graphs       *graph.Builder
	hasher       ports.Hasher
	transformer  ports.Transformer
	tracer       ports.Tracer
	stores       ports.StoreOpener
	sandbox      ports.Sandbox
	native       ports.NativeLoader
	verifier     ports.OutputVerifier
	hub          Hub

	newWatcher ports.WatcherFactory
	stdout     io.Writer
	workDir    string
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	entries ports.EntryResolver,
	graphs *graph.Builder,
	hasher ports.Hasher,
	transformer ports.Transformer,
	tracer ports.Tracer,
	stores ports.StoreOpener,
	sandbox ports.Sandbox,
	native ports.NativeLoader,
	verifier ports.OutputVerifier,
	hub Hub,
	newWatcher ports.WatcherFactory,
) *App {
	return &App{
		configLoader: loader,
		logger:       log,
		entries:      entries,
		graphs:       graphs,
		hasher:       hasher,
		transformer:  transformer,
		tracer:       tracer,
		stores:       stores,
		sandbox:      sandbox,
		native:       native,
		verifier:     verifier,
		hub:          hub,
		newWatcher:   newWatcher,
		stdout:       os.Stdout,
	}
}

// WithOutput sets the writer build reports are printed to.
func (a *App) WithOutput(w io.Writer) *App {
	a.stdout = w
	return a
}

// WithWorkDir sets the directory the project configuration is searched from.
// It defaults to the process working directory.
func (a *App) WithWorkDir(dir string) *App {
	a.workDir = dir
	return a
}

// BuildOptions configuration for the Build method.
type BuildOptions struct {
	Targets []string
	NoCache bool
	JSON    bool
	Verbose bool
}

// Build runs one full build and prints its report. A build whose targets
// failed returns an error wrapping domain.ErrBuildFailed; a build that could
// not run at all returns the fatal error.
func (a *App) Build(ctx context.Context, opts BuildOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if opts.Verbose {
		shutdown := telemetry.Setup(a.logger)
		defer func() {
			_ = shutdown(context.WithoutCancel(ctx))
		}()
	}

	b, closeStore, err := a.builder(cfg, opts.Verbose)
	if err != nil {
		return err
	}
	defer closeStore()

	r, err := b.Build(ctx, pipeline.BuildRequest{Targets: opts.Targets, NoCache: opts.NoCache})
	if err != nil {
		return zerr.Wrap(err, "build aborted")
	}
	if err := a.print(r, opts.JSON); err != nil {
		return err
	}
	if err := failure(r); err != nil {
		return err
	}
	return a.verify(cfg, r)
}

// CleanOptions configuration for the Clean method.
type CleanOptions struct {
	Cache   bool
	Outputs bool
}

// Clean removes the artifact cache and, when asked, the output directories
// of every target.
func (a *App) Clean(_ context.Context, options CleanOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	var errs error
	remove := func(path string, name string) {
		a.logger.Info(fmt.Sprintf("removing %s...", name))
		if err := os.RemoveAll(path); err != nil {
			errs = errors.Join(errs, zerr.Wrap(err, fmt.Sprintf("failed to remove %s", name)))
			return
		}
		a.logger.Info(fmt.Sprintf("removed %s", name))
	}

	if options.Cache {
		remove(filepath.Join(cfg.Root, domain.DefaultCachePath()), "artifact cache")
	}
	if options.Outputs {
		for _, t := range cfg.Targets {
			remove(filepath.Join(cfg.Root, filepath.FromSlash(t.OutDir)), "outputs of "+t.Name)
		}
	}
	return errs
}

func (a *App) loadConfig() (*domain.Config, error) {
	dir := a.workDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, zerr.Wrap(err, "failed to determine working directory")
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to determine working directory")
	}
	cfg, err := a.configLoader.Load(abs)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return cfg, nil
}

// builder creates the pipeline of one project root with its artifact store
// open and its plugins loaded. The returned function closes the store.
func (a *App) builder(cfg *domain.Config, verbose bool) (*pipeline.Builder, func(), error) {
	store, err := a.stores.Open(cfg.Root)
	if err != nil {
		return nil, nil, zerr.With(zerr.Wrap(err, "failed to open artifact store"), "root", cfg.Root)
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("failed to close artifact store", "error", err.Error())
		}
	}

	b := pipeline.New(pipeline.Options{
		Config:      *cfg,
		Entries:     a.entries,
		Graphs:      a.graphs,
		Hasher:      a.hasher,
		Transformer: a.transformer,
		Tracer:      a.tracer,
		Store:       store,
		Logger:      a.logger,
		Verbose:     verbose,
	})
	if err := b.Plugins().LoadAll(cfg.Root, cfg.Plugins, cfg.Sandbox, a.sandbox, a.native); err != nil {
		closeStore()
		return nil, nil, zerr.Wrap(err, "failed to load plugins")
	}
	return b, closeStore, nil
}

func (a *App) print(r *domain.BuildReport, asJSON bool) error {
	if asJSON {
		return output.JSON(a.stdout, r)
	}
	return output.Report(a.stdout, r)
}

// verify checks that every output the report names was written.
func (a *App) verify(cfg *domain.Config, r *domain.BuildReport) error {
	for _, t := range r.Targets {
		ok, err := a.verifier.VerifyOutputs(cfg.Root, t.Outputs)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to verify outputs"), "target", t.Name)
		}
		if !ok {
			return zerr.With(zerr.Wrap(domain.ErrOutputMissing, "outputs incomplete"), "target", t.Name)
		}
	}
	return nil
}

// failure returns an error naming the failed targets of r, or nil.
func failure(r *domain.BuildReport) error {
	if r.Success() {
		return nil
	}
	var names []string
	for _, t := range r.Targets {
		if !t.Success {
			names = append(names, t.Name)
		}
	}
	return zerr.With(zerr.Wrap(domain.ErrBuildFailed, "targets failed"), "targets", strings.Join(names, ","))
}
