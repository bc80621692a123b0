package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/models"
)

func newTrackers(e *env, action Action, required int) (*Trackers, *ledger.Ledger) {
	l := e.ledger(ledger.KindNotWorkingTrackers, required, 0)
	return NewTrackers(TrackersConfig{Action: action, ProtectedTag: "keep", MediaRoot: media}, l, e.deps()), l
}

func TestTrackersClassification(t *testing.T) {
	e := newEnv(t)
	e.source.torrents = []models.Torrent{
		completed("ok", "/data/torrents/ok", 1),
		completed("dead", "/data/torrents/dead", 1),
		completed("dhtonly", "/data/torrents/dhtonly", 1),
		completed("err", "/data/torrents/err", 1),
	}
	e.source.trackers = map[string][]models.Tracker{
		"ok": {
			{URL: "** [DHT] **", Status: models.TrackerWorking},
			{URL: "https://a.example/announce", Status: models.TrackerNotWorking},
			{URL: "https://b.example/announce", Status: models.TrackerWorking},
		},
		"dead": {
			{URL: "** [DHT] **", Status: models.TrackerWorking},
			{URL: "** [PeX] **", Status: models.TrackerWorking},
			{URL: "https://a.example/announce", Status: models.TrackerNotWorking, Message: "unregistered torrent"},
		},
		"dhtonly": {{URL: "** [DHT] **", Status: models.TrackerWorking}},
	}
	e.source.trackerErrs = map[string]error{"err": errors.New("timeout")}
	j, _ := newTrackers(e, ActionStop, 1)

	r, err := j.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := outcomes(r)
	want := map[string]Outcome{"ok": Excluded, "dead": Eligible, "dhtonly": Excluded, "err": Skipped}
	for id, w := range want {
		if got[id] != w {
			t.Errorf("%s: outcome = %s, want %s", id, got[id], w)
		}
	}
	if len(e.source.stopped) != 1 || e.source.stopped[0] != "dead" {
		t.Errorf("stopped = %v", e.source.stopped)
	}

	if len(e.notifier.events) != 1 {
		t.Fatalf("events = %d, want 1", len(e.notifier.events))
	}
	ev := e.notifier.events[0]
	var trackerFields int
	for _, f := range ev.Fields {
		if f.Name == "Tracker" {
			trackerFields++
			if !strings.Contains(f.Value, "Not working") || !strings.Contains(f.Value, "unregistered torrent") {
				t.Errorf("tracker field = %q", f.Value)
			}
		}
	}
	if trackerFields != 1 {
		t.Errorf("tracker fields = %d, want 1 (pseudo trackers omitted)", trackerFields)
	}
}

func TestTrackersProtectedSkipsFetch(t *testing.T) {
	e := newEnv(t)
	tor := completed("p", "/data/torrents/p", 1)
	tor.Tags = []string{"keep"}
	e.source.torrents = []models.Torrent{tor}
	e.source.trackerErrs = map[string]error{"p": errors.New("should not be called")}
	j, _ := newTrackers(e, ActionDelete, 1)

	r, err := j.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := outcomes(r)["p"]; got != Excluded {
		t.Errorf("outcome = %s, want excluded", got)
	}
}

func TestTrackersRecoveryResets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.source.torrents = []models.Torrent{completed("r", "/data/torrents/r", 1)}
	e.source.trackers = map[string][]models.Tracker{
		"r": {{URL: "https://a.example/announce", Status: models.TrackerNotWorking}},
	}
	j, l := newTrackers(e, ActionDelete, 3)

	if _, err := j.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := l.StrikeCount(ctx, "r"); n != 1 {
		t.Fatalf("strikes = %d, want 1", n)
	}

	e.source.trackers["r"][0].Status = models.TrackerWorking
	if _, err := j.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := l.StrikeCount(ctx, "r"); n != 0 {
		t.Errorf("strikes = %d, want 0 after recovery", n)
	}
}
