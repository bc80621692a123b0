package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/starford/seedkeeper/internal/jobs"
	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/linkscan"
	"github.com/starford/seedkeeper/internal/logging"
	"github.com/starford/seedkeeper/internal/metrics"
	"github.com/starford/seedkeeper/internal/notify"
	"github.com/starford/seedkeeper/internal/qbit"
	"github.com/starford/seedkeeper/internal/scheduler"
	"github.com/starford/seedkeeper/internal/sse"
	"github.com/starford/seedkeeper/internal/storage"
)

// runtime holds the long-lived components shared by every command.
type runtime struct {
	logger   *slog.Logger
	db       *ledger.DB
	links    *linkscan.Resolver
	store    *storage.FS
	source   jobs.Source
	client   *qbit.Client // nil when a custom source is injected
	broker   *sse.Broker
	notifier notify.Notifier
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	ledgers  *ledgerSet
}

func newRuntime(app *application) (*runtime, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	out := app.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := logging.NewJSON(out, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("data_path", cfg.Paths.Data),
		slog.String("torrents_path", cfg.Paths.Torrents),
		slog.String("media_path", cfg.Paths.Media),
		slog.String("log_level", cfg.App.LogLevel.String()))

	links, err := linkscan.New(cfg.Paths.Data, logger)
	if err != nil {
		return nil, fmt.Errorf("init link resolver: %w", err)
	}
	store, err := storage.NewFS(cfg.Paths.Torrents)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := ledger.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	rt := &runtime{
		logger:   logger,
		db:       db,
		links:    links,
		store:    store,
		source:   app.source,
		broker:   sse.NewBroker(2 * time.Second),
		registry: prometheus.NewRegistry(),
		ledgers:  &ledgerSet{},
	}
	if rt.source == nil {
		rt.client = qbit.New(cfg.QBittorrent.Client(), logger.With(slog.String("component", "qbit")))
		rt.source = rt.client
	}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.New(rt.registry)
	rt.notifier = notify.Multi{
		notify.NewDiscord(cfg.Notifications.DiscordWebhookURL, logger),
		notify.NewStream(rt.broker),
	}
	return rt, nil
}

// connect logs in to qBittorrent. Failure is not fatal: every call logs in
// again on demand.
func (rt *runtime) connect(ctx context.Context) {
	if rt.client == nil {
		return
	}
	if err := rt.client.Connect(ctx); err != nil {
		rt.logger.Error("qbittorrent login failed", slog.String("error", err.Error()))
	}
}

func (rt *runtime) Close() {
	rt.broker.Close()
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close ledger", slog.String("error", err.Error()))
	}
}

// buildJobs creates the enabled jobs of cfg and points the ledger set at
// their ledgers.
func (rt *runtime) buildJobs(cfg *Config) []scheduler.Entry {
	deps := jobs.Deps{
		Source:   rt.source,
		Links:    rt.links,
		Notifier: rt.notifier,
		Events:   rt.broker,
		Metrics:  rt.metrics,
		Logger:   rt.logger,
	}
	media := cfg.Paths.Media
	tag := cfg.QBittorrent.ProtectedTag
	ledgers := make(map[ledger.Kind]*ledger.Ledger)
	var entries []scheduler.Entry

	if jc := cfg.Jobs.Forgotten; jc.Enabled {
		l := rt.db.Ledger(ledger.KindForgotten, jc.Thresholds())
		ledgers[l.Kind()] = l
		entries = append(entries, scheduler.Entry{
			Job: jobs.NewForgotten(jobs.ForgottenConfig{
				Action:         jobs.Action(jc.Action),
				ProtectedTag:   tag,
				MediaRoot:      media,
				MinSeedingDays: jc.MinSeedingDays,
			}, l, deps),
			Interval: jc.Interval(),
		})
	}
	if jc := cfg.Jobs.Trackers; jc.Enabled {
		l := rt.db.Ledger(ledger.KindNotWorkingTrackers, jc.Thresholds())
		ledgers[l.Kind()] = l
		entries = append(entries, scheduler.Entry{
			Job: jobs.NewTrackers(jobs.TrackersConfig{
				Action:       jobs.Action(jc.Action),
				ProtectedTag: tag,
				MediaRoot:    media,
			}, l, deps),
			Interval: jc.Interval(),
		})
	}
	if jc := cfg.Jobs.Orphaned; jc.Enabled {
		l := rt.db.Ledger(ledger.KindOrphaned, jc.Thresholds())
		ledgers[l.Kind()] = l
		entries = append(entries, scheduler.Entry{
			Job: jobs.NewOrphaned(jobs.OrphanedConfig{
				Action:    jobs.Action(jc.Action),
				MediaRoot: media,
			}, l, rt.store, deps),
			Interval: jc.Interval(),
		})
	}

	rt.ledgers.set(ledgers)
	return entries
}

// ledgerSet is the current ledger of every enabled job. It is swapped as a
// whole when the configuration reloads.
type ledgerSet struct {
	mu sync.RWMutex
	m  map[ledger.Kind]*ledger.Ledger
}

// Ledger implements api.Ledgers and mcpserver.Ledgers.
func (s *ledgerSet) Ledger(kind ledger.Kind) (ledger.Recorder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.m[kind]
	if !ok {
		return nil, false
	}
	return l, true
}

func (s *ledgerSet) set(m map[ledger.Kind]*ledger.Ledger) {
	s.mu.Lock()
	s.m = m
	s.mu.Unlock()
}
