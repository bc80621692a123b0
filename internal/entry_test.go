package internal

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/seedkeeper/internal/apperr"
	"github.com/starford/seedkeeper/internal/jobs"
	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/logging"
	"github.com/starford/seedkeeper/internal/models"
)

type emptySource struct{}

func (emptySource) Torrents(context.Context) ([]models.Torrent, error) { return nil, nil }
func (emptySource) Trackers(context.Context, string) ([]models.Tracker, error) { return nil, nil }
func (emptySource) Stop(context.Context, string) error { return nil }
func (emptySource) Delete(context.Context, string, bool) error { return nil }

// testConfig lays out a data volume in a temp dir with one stray file in
// the torrents root.
func testConfig(t *testing.T) (*Config, string) {
	t.Helper()
	data := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "ledger.db")
	cfg.Paths = PathsConfig{
		Data:     data,
		Torrents: filepath.Join(data, "torrents"),
		Media:    filepath.Join(data, "media"),
	}
	for _, d := range []string{cfg.Paths.Torrents, cfg.Paths.Media} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	stray := filepath.Join(cfg.Paths.Torrents, "stale.nfo")
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfg, stray
}

func testOpts(cfg *Config) []Option {
	return []Option{WithConfig(cfg), WithSource(emptySource{}), WithLogOutput(io.Discard)}
}

func TestRunJobStrikesOrphan(t *testing.T) {
	cfg, stray := testConfig(t)
	ctx := context.Background()

	report, err := RunJob(ctx, "delete_orphaned", testOpts(cfg)...)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if report.Counts[jobs.Pending] != 1 {
		t.Errorf("counts = %v, want 1 pending", report.Counts)
	}

	entries, th, err := Strikes(ctx, "delete_orphaned", testOpts(cfg)...)
	if err != nil {
		t.Fatalf("Strikes: %v", err)
	}
	if th.RequiredStrikes != 3 {
		t.Errorf("thresholds = %+v", th)
	}
	if len(entries) != 1 || entries[0].EntityID != stray || entries[0].Strikes != 1 {
		t.Errorf("entries = %+v", entries)
	}

	if err := ResetStrikes(ctx, "delete_orphaned", stray, testOpts(cfg)...); err != nil {
		t.Fatalf("ResetStrikes: %v", err)
	}
	entries, _, _ = Strikes(ctx, "delete_orphaned", testOpts(cfg)...)
	if len(entries) != 0 {
		t.Errorf("entries after reset = %+v", entries)
	}
	if _, err := os.Stat(stray); err != nil {
		t.Errorf("stray file removed in test mode: %v", err)
	}
}

func TestRunJobUnknown(t *testing.T) {
	cfg, _ := testConfig(t)
	if _, err := RunJob(context.Background(), "delete_everything", testOpts(cfg)...); err == nil {
		t.Error("expected error for unknown job")
	}
	if _, _, err := Strikes(context.Background(), "delete_everything", testOpts(cfg)...); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestCheckLinks(t *testing.T) {
	cfg, stray := testConfig(t)
	target := filepath.Join(cfg.Paths.Media, "stale.nfo")
	if err := os.Link(stray, target); err != nil {
		t.Skipf("hard links unsupported here: %v", err)
	}

	rep, err := CheckLinks(context.Background(), stray, testOpts(cfg)...)
	if err != nil {
		t.Fatalf("CheckLinks: %v", err)
	}
	if !rep.Linked || len(rep.Links) != 2 {
		t.Errorf("report = %+v", rep)
	}
}

func TestCheckLinksMissingPath(t *testing.T) {
	cfg, _ := testConfig(t)
	_, err := CheckLinks(context.Background(), filepath.Join(cfg.Paths.Torrents, "gone.mkv"), testOpts(cfg)...)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEnableOnly(t *testing.T) {
	js := NewDefaultConfig().Jobs
	js.Forgotten.Enabled = true
	got := enableOnly(js, ledger.KindNotWorkingTrackers)
	if got.Forgotten.Enabled || !got.Trackers.Enabled || got.Orphaned.Enabled {
		t.Errorf("enabled = %v/%v/%v", got.Forgotten.Enabled, got.Trackers.Enabled, got.Orphaned.Enabled)
	}
}

func TestBuildJobsSwapsLedgers(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Jobs.Orphaned.Enabled = true
	rt, err := newRuntime(newApplication(testOpts(cfg)))
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()

	entries := rt.buildJobs(cfg)
	if len(entries) != 1 || entries[0].Job.Name() != "delete_orphaned" || entries[0].Interval != 24*time.Hour {
		t.Fatalf("entries = %+v", entries)
	}
	if _, ok := rt.ledgers.Ledger(ledger.KindOrphaned); !ok {
		t.Error("orphaned ledger missing")
	}

	next := *cfg
	next.Jobs.Orphaned.Enabled = false
	next.Jobs.Forgotten.Enabled = true
	next.Jobs.Forgotten.RequiredStrikes = 7
	rt.buildJobs(&next)
	if _, ok := rt.ledgers.Ledger(ledger.KindOrphaned); ok {
		t.Error("disabled job kept its ledger")
	}
	l, ok := rt.ledgers.Ledger(ledger.KindForgotten)
	if !ok || l.Thresholds().RequiredStrikes != 7 {
		t.Errorf("forgotten ledger = %v, %v", l, ok)
	}
}

func TestWatchConfigReloads(t *testing.T) {
	cfg, _ := testConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(strikes string) {
		t.Helper()
		body := "paths:\n  data: " + cfg.Paths.Data +
			"\n  torrents: " + cfg.Paths.Torrents +
			"\n  media: " + cfg.Paths.Media +
			"\njobs:\n  delete_orphaned:\n    enabled: true\n    interval_hours: 1\n    required_strikes: " + strikes +
			"\n    action: test\n"
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- watchConfig(ctx, path, logging.Discard(), func(c *Config) { got <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	write("0") // invalid, ignored
	time.Sleep(2 * reloadDebounce)
	write("9")

	select {
	case c := <-got:
		if c.Jobs.Orphaned.RequiredStrikes != 9 {
			t.Errorf("reloaded strikes = %d, want 9", c.Jobs.Orphaned.RequiredStrikes)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watchConfig: %v", err)
	}
}
