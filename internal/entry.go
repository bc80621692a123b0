// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/seedkeeper/internal/api"
	"github.com/starford/seedkeeper/internal/apperr"
	"github.com/starford/seedkeeper/internal/jobs"
	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/mcpserver"
	"github.com/starford/seedkeeper/internal/scheduler"
	"github.com/starford/seedkeeper/internal/sse"
)

// Run starts the scheduler and the HTTP server with the given options and
// blocks until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	rt, err := newRuntime(app)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := app.config
	logger := rt.logger

	rt.connect(ctx)

	sched := scheduler.New(rt.buildJobs(cfg), logger.With(slog.String("component", "scheduler")),
		scheduler.WithOnFinish(func(r jobs.Report, err error) {
			data := map[string]any{"job": r.Job, "counts": r.Counts, "acted": r.Acted, "failed": r.Failed}
			if err != nil {
				data["error"] = err.Error()
			}
			rt.broker.Publish(sse.Event{Type: "job.finished", Data: data})
		}),
	)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))

	// Mount API routes under /api; the SSE stream shares its auth.
	h := api.NewHandler(sched, rt.ledgers, logger)
	r.Mount("/api", api.NewRouter(h, cfg.App.Auth.AuthEnabled(), cfg.App.Auth.Token, rt.broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gCtx)
	})

	if app.configPath != "" {
		g.Go(func() error {
			err := watchConfig(gCtx, app.configPath, logger, func(next *Config) {
				warnRestartOnly(logger, cfg, next)
				sched.Replace(rt.buildJobs(next))
			})
			if err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		var err error
		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			err = errShutdown
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Returning an error cancels gCtx, which stops the scheduler.
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown ends the run group after a signal.
var errShutdown = errors.New("shutdown requested")

// warnRestartOnly logs settings that a reload cannot apply.
func warnRestartOnly(logger *slog.Logger, cur, next *Config) {
	if cur.Paths != next.Paths || cur.SQLite != next.SQLite ||
		cur.QBittorrent.Host != next.QBittorrent.Host || cur.QBittorrent.PathMapping != next.QBittorrent.PathMapping ||
		cur.App.HTTP != next.App.HTTP || cur.App.Auth != next.App.Auth {
		logger.Warn("config watcher: paths, sqlite, qbittorrent connection and app settings apply after a restart")
	}
}

// RunJob runs one pass of the named job and returns its report. The job
// runs even when it is disabled in the configuration.
func RunJob(ctx context.Context, name string, opts ...Option) (jobs.Report, error) {
	app := newApplication(opts)
	if app.config == nil {
		return jobs.Report{}, fmt.Errorf("config is required")
	}
	kind, err := ledger.ParseKind(name)
	if err != nil {
		return jobs.Report{}, fmt.Errorf("%w: %s", apperr.ErrUnknownJob, name)
	}
	cfg := *app.config
	cfg.Jobs = enableOnly(cfg.Jobs, kind)
	app.config = &cfg

	rt, err := newRuntime(app)
	if err != nil {
		return jobs.Report{}, err
	}
	defer rt.Close()

	rt.connect(ctx)
	entries := rt.buildJobs(&cfg)
	if len(entries) != 1 {
		return jobs.Report{}, fmt.Errorf("%w: %s", apperr.ErrUnknownJob, name)
	}
	return entries[0].Job.Run(ctx)
}

// enableOnly returns js with kind enabled and every other job disabled.
func enableOnly(js JobsConfig, kind ledger.Kind) JobsConfig {
	js.Forgotten.Enabled = kind == ledger.KindForgotten
	js.Trackers.Enabled = kind == ledger.KindNotWorkingTrackers
	js.Orphaned.Enabled = kind == ledger.KindOrphaned
	return js
}

// Strikes lists the strike history of one job together with its thresholds.
func Strikes(ctx context.Context, name string, opts ...Option) ([]ledger.Entry, ledger.Thresholds, error) {
	var (
		entries []ledger.Entry
		th      ledger.Thresholds
	)
	err := withLedger(name, opts, func(l *ledger.Ledger) error {
		var err error
		th = l.Thresholds()
		entries, err = l.Entries(ctx)
		return err
	})
	return entries, th, err
}

// ResetStrikes clears the strike history of one entity.
func ResetStrikes(ctx context.Context, name, id string, opts ...Option) error {
	return withLedger(name, opts, func(l *ledger.Ledger) error {
		return l.Reset(ctx, id)
	})
}

func withLedger(name string, opts []Option, fn func(*ledger.Ledger) error) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	kind, err := ledger.ParseKind(name)
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrUnknownJob, name)
	}
	db, err := ledger.Open(app.config.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db.Ledger(kind, app.config.Jobs.thresholds(kind)))
}

// thresholds returns the configured thresholds of kind, enabled or not.
func (c *JobsConfig) thresholds(kind ledger.Kind) ledger.Thresholds {
	switch kind {
	case ledger.KindForgotten:
		return c.Forgotten.Thresholds()
	case ledger.KindNotWorkingTrackers:
		return c.Trackers.Thresholds()
	default:
		return c.Orphaned.Thresholds()
	}
}

// LinkReport is the result of CheckLinks.
type LinkReport struct {
	Path      string
	MediaRoot string
	Linked    bool
	Links     []string // same-inode paths; only filled for regular files
}

// CheckLinks reports whether path is hard-linked into the media library.
func CheckLinks(ctx context.Context, path string, opts ...Option) (LinkReport, error) {
	app := newApplication(opts)
	rt, err := newRuntime(app)
	if err != nil {
		return LinkReport{}, err
	}
	defer rt.Close()

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return LinkReport{}, fmt.Errorf("%w: %s", apperr.ErrNotFound, path)
		}
		return LinkReport{}, err
	}

	media := app.config.Paths.Media
	linked, err := rt.links.HasHardlinkUnder(ctx, path, media)
	if err != nil {
		return LinkReport{}, err
	}
	rep := LinkReport{Path: path, MediaRoot: media, Linked: linked}
	if info.Mode().IsRegular() {
		rep.Links, err = rt.links.Links(ctx, path)
		if err != nil {
			return LinkReport{}, err
		}
	}
	return rep, nil
}

// ServeMCP exposes the enabled jobs and their ledgers over MCP on stdio.
// Logs must not go to stdout, so they default to stderr here.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.logOutput == nil {
		app.logOutput = os.Stderr
	}
	rt, err := newRuntime(app)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.connect(ctx)
	entries := rt.buildJobs(app.config)
	js := make([]jobs.Job, 0, len(entries))
	for _, e := range entries {
		js = append(js, e.Job)
	}

	rt.logger.Info("MCP server starting on stdio", slog.Int("jobs", len(js)))
	return mcpserver.New(js, rt.ledgers, rt.links, app.config.Paths.Media).ServeStdio()
}

func newApplication(opts []Option) *application {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	return app
}
