package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/models"
	"github.com/starford/seedkeeper/internal/notify"
	"github.com/starford/seedkeeper/internal/storage"
)

// claimWorkers bounds concurrent content-path walks.
const claimWorkers = 4

// OrphanedConfig configures the orphaned-path policy.
type OrphanedConfig struct {
	Action    Action // test or delete
	MediaRoot string
}

// Orphaned removes files and empty directories under the managed root that
// no torrent claims. Entities are absolute paths.
type Orphaned struct {
	policy
	store storage.Provider
}

var _ Job = (*Orphaned)(nil)

// NewOrphaned creates the policy. rec must be the orphaned ledger.
func NewOrphaned(cfg OrphanedConfig, rec ledger.Recorder, store storage.Provider, deps Deps) *Orphaned {
	return &Orphaned{policy: newPolicy(rec, cfg.Action, cfg.MediaRoot, deps), store: store}
}

// Name implements Job.
func (o *Orphaned) Name() string { return o.name() }

// Run implements Job. The managed root is walked children first and each
// eligible path is handled immediately, so a directory emptied in this pass
// can start collecting strikes in the same pass.
func (o *Orphaned) Run(ctx context.Context) (Report, error) {
	o.logger.Info("job started")
	report := newReport(o.name(), o.deps.now())

	torrents, err := o.deps.Source.Torrents(ctx)
	if err != nil {
		return o.finish(&report, err)
	}
	claimed, files, err := claimedPaths(ctx, torrents)
	if err != nil {
		return o.finish(&report, err)
	}
	o.logger.Debug("found files in download client", slog.Int("files", files))

	entries, err := o.store.Walk(ctx)
	if err != nil {
		return o.finish(&report, err)
	}
	onDisk := 0
	for _, e := range entries {
		if !e.Dir {
			onDisk++
		}
	}
	o.logger.Debug("found files in torrents folder", slog.Int("files", onDisk))
	if onDisk != files {
		o.logger.Warn("download client file count does not match torrents folder",
			slog.Int("client", files), slog.Int("folder", onDisk))
	}

	known := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			return o.finish(&report, ctx.Err())
		}
		known[e.Path] = struct{}{}

		d := o.evaluate(ctx, e.Path, e.Path, o.rules(e, claimed)...)
		report.add(d)
		if d.Outcome != Eligible {
			continue
		}
		label, err := o.apply(e)
		o.deps.Metrics.Action(o.name(), string(o.action), err)
		if err != nil {
			report.Failed++
			o.logger.Error("action failed", slog.String("path", e.Path), slog.String("error", err.Error()))
			continue
		}
		report.Acted++
		notify.Send(ctx, o.deps.Notifier, o.logger, orphanEvent(label, e))
	}

	o.cleanup(ctx, known, &report)
	return o.finish(&report, nil)
}

func (o *Orphaned) rules(e storage.Entry, claimed map[string]struct{}) []rule {
	rules := []rule{func(context.Context) (string, error) {
		if _, ok := claimed[e.Path]; ok {
			return "claimed by a torrent", nil
		}
		return "", nil
	}}
	if e.Dir {
		return append(rules, func(context.Context) (string, error) {
			empty, err := o.store.IsEmptyDir(e.Path)
			if err != nil {
				return "", err
			}
			if !empty {
				return "directory not empty", nil
			}
			return "", nil
		})
	}
	return append(rules, o.linkRule(e.Path))
}

func (o *Orphaned) apply(e storage.Entry) (string, error) {
	if o.action != ActionDelete {
		o.logger.Info("action = test, doing nothing", slog.String("path", e.Path))
		return string(ActionTest), nil
	}
	o.logger.Info("action = delete, removing orphaned path", slog.String("path", e.Path))
	return string(ActionDelete), o.store.Remove(e.Path)
}

// claimedPaths returns every path under each torrent's content path plus
// the ancestors of each content path, and the number of files among them.
// Missing content paths are ignored.
func claimedPaths(ctx context.Context, torrents []models.Torrent) (map[string]struct{}, int, error) {
	var (
		mu      sync.Mutex
		claimed = make(map[string]struct{})
		files   = make(map[string]struct{})
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(claimWorkers)

	for _, t := range torrents {
		if t.ContentPath == "" {
			continue
		}
		root := filepath.Clean(t.ContentPath)
		g.Go(func() error {
			var local, localFiles []string
			err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
				if walkErr != nil {
					if p == root && errors.Is(walkErr, fs.ErrNotExist) {
						return fs.SkipAll
					}
					return walkErr
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				local = append(local, p)
				if !d.IsDir() {
					localFiles = append(localFiles, p)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("jobs: walk content %s: %w", root, err)
			}
			if len(local) == 0 {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, p := range local {
				claimed[p] = struct{}{}
			}
			for _, p := range localFiles {
				files[p] = struct{}{}
			}
			for dir := filepath.Dir(root); ; dir = filepath.Dir(dir) {
				claimed[dir] = struct{}{}
				if dir == filepath.Dir(dir) {
					break
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return claimed, len(files), nil
}
