package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.trai.ch/kiln/internal/adapters/watcher"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/hmr"
	"go.trai.ch/kiln/internal/engine/pipeline"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// HMRPath is the path dev clients open their WebSocket on.
const HMRPath = "/__kiln/hmr"

const shutdownTimeout = 5 * time.Second

// Hub pushes HMR messages to the clients connected over HTTP.
type Hub interface {
	ports.Broadcaster
	http.Handler
	Close()
}

// DevOptions configuration for the Dev method.
type DevOptions struct {
	// Addr overrides the configured listen address.
	Addr    string
	Targets []string
	Verbose bool
}

// Dev builds the project, then serves the output of the first target and
// rebuilds on every file change until ctx is cancelled. Each rebuild is
// classified and pushed to connected clients as an update or a reload.
func (a *App) Dev(ctx context.Context, opts DevOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	b, closeStore, err := a.builder(cfg, opts.Verbose)
	if err != nil {
		return err
	}
	defer closeStore()

	targets := opts.Targets
	if len(targets) == 0 {
		for _, t := range cfg.Targets {
			targets = append(targets, t.Name)
		}
	}
	served := slices.IndexFunc(cfg.Targets, func(t domain.Target) bool { return t.Name == targets[0] })
	if served < 0 {
		return zerr.With(zerr.Wrap(domain.ErrUnknownTarget, targets[0]), "target", targets[0])
	}

	r, err := b.Build(ctx, pipeline.BuildRequest{Targets: targets})
	if err != nil {
		return zerr.Wrap(err, "build aborted")
	}
	if err := a.print(r, false); err != nil {
		return err
	}

	w, err := a.newWatcher()
	if err != nil {
		return zerr.Wrap(err, "failed to create file watcher")
	}
	defer func() {
		_ = w.Stop()
	}()

	g, ctx := errgroup.WithContext(ctx)
	if err := w.Start(ctx, cfg.Root); err != nil {
		return zerr.Wrap(err, "failed to start file watcher")
	}

	loop := &devLoop{app: a, builder: b, targets: targets, served: cfg.Targets[served].Name}
	batcher := hmr.NewBatcher(loop.rebuild)
	debouncer := watcher.NewDebouncer(cfg.Debounce, batcher.Submit)
	ignored := ignoredDirs(cfg)

	addr := opts.Addr
	if addr == "" {
		addr = cfg.DevAddr
	}
	mux := http.NewServeMux()
	mux.Handle(HMRPath, a.hub)
	mux.Handle("/", http.FileServer(http.Dir(filepath.Join(cfg.Root, filepath.FromSlash(cfg.Targets[served].OutDir)))))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		a.logger.Info("dev server listening", "addr", addr, "hmr", HMRPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return zerr.With(zerr.Wrap(err, "dev server failed"), "addr", addr)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		a.hub.Close()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return batcher.Run(ctx)
	})
	g.Go(func() error {
		for ev := range w.Events() {
			if isIgnored(ev.Path, ignored) {
				continue
			}
			debouncer.Add(ev.Path, ev.Operation == ports.OpRemove || ev.Operation == ports.OpRename)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// devLoop rebuilds on change batches and reports each outcome to clients.
type devLoop struct {
	app     *App
	builder *pipeline.Builder
	targets []string
	served  string
}

func (l *devLoop) rebuild(ctx context.Context, batch domain.ChangeBatch) {
	a := l.app
	l.broadcast(ctx, hmr.StatusMessage("building", "", 0))

	// Classification reads the graph as it was before the run: paths the
	// graph does not know yet force a reload.
	trace := l.classify(batch)

	r, err := l.builder.Build(ctx, pipeline.BuildRequest{Targets: l.targets, Changed: batch})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Error(err)
		l.broadcast(ctx, hmr.ErrorMessage(err, ""))
		return
	}
	if err := a.print(r, false); err != nil {
		a.logger.Warn("failed to print build report", "error", err.Error())
	}

	if !r.Success() {
		for _, t := range r.Targets {
			if !t.Success {
				l.broadcast(ctx, hmr.ErrorMessage(errors.New(t.Error), t.Name))
			}
		}
		return
	}
	l.broadcast(ctx, hmr.MessageFor(trace, time.Now().UnixMilli()))
	l.broadcast(ctx, hmr.StatusMessage("ready", r.RunID, r.HitRatio))
}

func (l *devLoop) classify(batch domain.ChangeBatch) domain.HMRDecisionTrace {
	g, ok := l.builder.Graph(l.served)
	if !ok {
		return domain.HMRDecisionTrace{
			ChangeSet: batch.Paths,
			Decision:  domain.DecisionReload,
			Reason:    "module graph is not resolved yet",
		}
	}
	trace := hmr.Classify(g, batch)
	l.app.logger.Info("change classified",
		"decision", string(trace.Decision),
		"modules", len(trace.AffectedModules),
		"boundaries", len(trace.Boundaries))
	return trace
}

func (l *devLoop) broadcast(ctx context.Context, msg domain.HMRMessage) {
	if err := l.app.hub.Broadcast(ctx, msg); err != nil {
		l.app.logger.Warn("failed to push hmr message", "type", string(msg.Type), "error", err.Error())
	}
}

// ignoredDirs are the absolute directories whose changes never trigger a
// rebuild.
func ignoredDirs(cfg *domain.Config) []string {
	generated := cfg.GeneratedDirs()
	dirs := make([]string, 0, len(generated))
	for _, dir := range generated {
		dirs = append(dirs, filepath.Join(cfg.Root, filepath.FromSlash(dir)))
	}
	return dirs
}

func isIgnored(path string, dirs []string) bool {
	return slices.ContainsFunc(dirs, func(dir string) bool {
		return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
	})
}
