// Package devserver runs a development session: one initial build, then a
// watch loop that rebuilds on change and pushes every successful build to
// connected pages.
package devserver

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/scriptsmith/internal/build"
	"github.com/conneroisu/scriptsmith/internal/config"
	"github.com/conneroisu/scriptsmith/internal/errors"
	"github.com/conneroisu/scriptsmith/internal/livereload"
	"github.com/conneroisu/scriptsmith/internal/logging"
	"github.com/conneroisu/scriptsmith/internal/rebuild"
	"github.com/conneroisu/scriptsmith/internal/server"
	"github.com/conneroisu/scriptsmith/internal/watcher"
)

// Options configure a Session. Loader is required.
type Options struct {
	Loader  rebuild.ConfigLoader
	Bundler build.Bundler
	Logger  logging.Logger
}

// Session owns every component of one `scriptsmith dev` run.
type Session struct {
	loader  rebuild.ConfigLoader
	builder *build.ArtifactBuilder
	logger  logging.Logger

	mu          sync.Mutex
	hub         *livereload.Hub
	coordinator *rebuild.Coordinator
	artifact    *server.Server
	live        *server.Server
	ready       chan struct{}
}

// New creates a session. Nothing is built or bound until Run.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Bundler == nil {
		opts.Bundler = build.NewEsbuildBundler()
	}
	return &Session{
		loader:  opts.Loader,
		builder: build.NewArtifactBuilder(opts.Bundler, opts.Logger),
		logger:  opts.Logger.WithComponent("dev"),
		ready:   make(chan struct{}),
	}
}

// Run performs the initial build and serves until ctx is done. A failing
// initial configuration load or build is returned immediately; later
// failures are logged and the session keeps running.
func (s *Session) Run(ctx context.Context) error {
	cfg, err := s.loader()
	if err != nil {
		return err
	}

	result, err := s.builder.Build(ctx, cfg, build.Options{Dev: true})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "initial build complete", "artifact", result.Path, "bytes", result.Size)

	hub := livereload.NewHub(s.logger)
	coordinator := rebuild.NewCoordinator(rebuild.Options{
		Loader:      pinnedLoader(s.loader, cfg),
		Builder:     s.builder,
		Broadcaster: hub,
		Logger:      s.logger,
	})

	fw, err := s.newWatcher(cfg, coordinator)
	if err != nil {
		_ = hub.Shutdown(ctx)
		return err
	}

	artifactHandler := server.NewArtifactHandler(cfg.ArtifactPath(), s.logger)
	artifactServer := server.New("artifact", cfg.ServeAddr(), artifactHandler, s.logger)
	liveServer := server.New("livereload", cfg.LiveAddr(), hub, s.logger)

	s.mu.Lock()
	s.hub = hub
	s.coordinator = coordinator
	s.artifact = artifactServer
	s.live = liveServer
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return artifactServer.ListenAndServe(gctx) })
	g.Go(func() error { return liveServer.ListenAndServe(gctx) })
	g.Go(func() error {
		if err := fw.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		err := fw.Stop()
		<-fw.Done()
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		return hub.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		for _, srv := range []*server.Server{artifactServer, liveServer} {
			select {
			case <-srv.Ready():
			case <-gctx.Done():
				return nil
			}
		}
		close(s.ready)
		s.logger.Info(gctx, "serving userscript",
			"install", fmt.Sprintf("http://%s%s", artifactServer.ListenAddr(), artifactHandler.URLPath()),
			"live_reload", fmt.Sprintf("ws://%s/", liveServer.ListenAddr()),
		)
		return nil
	})

	return g.Wait()
}

// pinnedLoader wraps load so that rebuilds fail while the reloaded
// configuration disagrees with initial on anything the session bound at
// startup: the artifact path, the watched and excluded directories and the
// two listen addresses.
func pinnedLoader(load rebuild.ConfigLoader, initial *config.Config) rebuild.ConfigLoader {
	return func() (*config.Config, error) {
		cfg, err := load()
		if err != nil {
			return nil, err
		}
		for _, f := range []struct {
			name     string
			was, now string
		}{
			{"the artifact path", initial.ArtifactPath(), cfg.ArtifactPath()},
			{"build.source_dir", initial.Build.SourceDir, cfg.Build.SourceDir},
			{"build.out_dir", initial.Build.OutDir, cfg.Build.OutDir},
			{"the server address", initial.ServeAddr(), cfg.ServeAddr()},
			{"the live-reload address", initial.LiveAddr(), cfg.LiveAddr()},
		} {
			if f.was != f.now {
				return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
					fmt.Sprintf("changing %s requires restarting scriptsmith dev", f.name), nil).
					WithContext("was", f.was).
					WithContext("now", f.now)
			}
		}
		return cfg, nil
	}
}

func (s *Session) newWatcher(cfg *config.Config, coordinator *rebuild.Coordinator) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(s.logger)
	if err != nil {
		return nil, err
	}

	fw.AddFilter(watcher.NoDotfileFilter(cfg.Build.SourceDir))
	fw.AddFilter(watcher.ExcludeDirFilter(cfg.Build.OutDir))
	fw.AddHandler(func(ctx context.Context, event watcher.ChangeEvent) error {
		// Trigger builds on its calling goroutine. The watch loop has to keep
		// draining events so that changes during a build mark it pending.
		go coordinator.Trigger(ctx, event.Path)
		return nil
	})

	if err := fw.AddRecursive(cfg.Build.SourceDir); err != nil {
		_ = fw.Stop()
		return nil, fmt.Errorf("watching %s: %w", cfg.Build.SourceDir, err)
	}
	if cfg.Path != "" {
		if err := fw.AddFile(cfg.Path); err != nil {
			_ = fw.Stop()
			return nil, fmt.Errorf("watching %s: %w", cfg.Path, err)
		}
	}
	return fw, nil
}

// Ready is closed once both listeners are bound.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Hub returns the live-reload hub, or nil before Run has built once.
func (s *Session) Hub() *livereload.Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub
}

// Coordinator returns the rebuild coordinator, or nil before Run has built once.
func (s *Session) Coordinator() *rebuild.Coordinator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coordinator
}

// Addrs returns the bound artifact and live-reload addresses after Ready.
func (s *Session) Addrs() (artifact, live string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact != nil && s.artifact.ListenAddr() != nil {
		artifact = s.artifact.ListenAddr().String()
	}
	if s.live != nil && s.live.ListenAddr() != nil {
		live = s.live.ListenAddr().String()
	}
	return artifact, live
}

// Metrics returns the builder's counters, including the initial build.
func (s *Session) Metrics() build.BuildMetrics {
	return s.builder.Metrics()
}
