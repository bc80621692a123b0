package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/logging"
	"github.com/starford/seedkeeper/internal/models"
	"github.com/starford/seedkeeper/internal/notify"
	"github.com/starford/seedkeeper/internal/sse"
	"github.com/starford/seedkeeper/internal/testutil"
)

const media = "/data/media"

type deleteCall struct {
	hash        string
	deleteFiles bool
}

type fakeSource struct {
	mu          sync.Mutex
	torrents    []models.Torrent
	trackers    map[string][]models.Tracker
	trackerErrs map[string]error
	listErr     error
	stopped     []string
	deleted     []deleteCall
}

func (f *fakeSource) Torrents(context.Context) ([]models.Torrent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.torrents, nil
}

func (f *fakeSource) Trackers(_ context.Context, hash string) ([]models.Tracker, error) {
	if err := f.trackerErrs[hash]; err != nil {
		return nil, err
	}
	return f.trackers[hash], nil
}

func (f *fakeSource) Stop(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, hash)
	return nil
}

func (f *fakeSource) Delete(_ context.Context, hash string, deleteFiles bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, deleteCall{hash, deleteFiles})
	return nil
}

type fakeLinks struct {
	linked map[string]bool
	errs   map[string]error
	calls  int
}

func (f *fakeLinks) HasHardlinkUnder(_ context.Context, path, root string) (bool, error) {
	f.calls++
	if root != media {
		return false, errors.New("unexpected protected root " + root)
	}
	if err := f.errs[path]; err != nil {
		return false, err
	}
	return f.linked[path], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type recordingSink struct {
	decisions []sse.Decision
}

func (r *recordingSink) PublishDecision(d sse.Decision) { r.decisions = append(r.decisions, d) }

// failingRecorder wraps a Recorder and fails strikes for selected ids.
type failingRecorder struct {
	ledger.Recorder
	failStrike map[string]bool
}

func (f *failingRecorder) Strike(ctx context.Context, id string) (bool, ledger.State, error) {
	if f.failStrike[id] {
		return false, ledger.State{}, errors.New("disk I/O error")
	}
	return f.Recorder.Strike(ctx, id)
}

// env bundles a policy's collaborators for one test.
type env struct {
	source   *fakeSource
	links    *fakeLinks
	notifier *recordingNotifier
	events   *recordingSink
	clock    *testutil.Clock
	db       *ledger.DB
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return &env{
		source:   &fakeSource{},
		links:    &fakeLinks{linked: map[string]bool{}, errs: map[string]error{}},
		notifier: &recordingNotifier{},
		events:   &recordingSink{},
		clock:    testutil.NewClock(),
		db:       testutil.TestDB(t),
	}
}

func (e *env) deps() Deps {
	return Deps{
		Source:   e.source,
		Links:    e.links,
		Notifier: e.notifier,
		Events:   e.events,
		Logger:   logging.Discard(),
		Now:      e.clock.Now,
	}
}

func (e *env) ledger(kind ledger.Kind, required, days int) *ledger.Ledger {
	return e.db.Ledger(kind, ledger.Thresholds{RequiredStrikes: required, MinStrikeDays: days},
		ledger.WithClock(e.clock.Now), ledger.WithLocation(time.UTC))
}

func completed(hash, path string, seedDays int) models.Torrent {
	added := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.Torrent{
		Hash:        hash,
		Name:        "torrent-" + hash,
		ContentPath: path,
		Progress:    1,
		TotalSize:   1 << 30,
		AddedOn:     added,
		CompletedOn: added.Add(time.Hour),
		SeedingTime: time.Duration(seedDays) * 24 * time.Hour,
	}
}
