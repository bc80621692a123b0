package qbit

import (
	"context"
	"errors"
	"testing"
	"time"

	qbittorrent "github.com/autobrr/go-qbittorrent"
	"github.com/google/go-cmp/cmp"

	"github.com/starford/seedkeeper/internal/logging"
	"github.com/starford/seedkeeper/internal/models"
)

type fakeAPI struct {
	loginErrs []error // consumed one per login call
	logins    int
	torrents  []qbittorrent.Torrent
	trackers  map[string][]qbittorrent.TorrentTracker
	listErr   error
	paused    []string
	deleted   map[string]bool
}

func (f *fakeAPI) LoginCtx(context.Context) error {
	f.logins++
	if len(f.loginErrs) > 0 {
		err := f.loginErrs[0]
		f.loginErrs = f.loginErrs[1:]
		return err
	}
	return nil
}

func (f *fakeAPI) GetAppVersionCtx(context.Context) (string, error) { return "v5.0.0", nil }

func (f *fakeAPI) GetTorrentsCtx(context.Context, qbittorrent.TorrentFilterOptions) ([]qbittorrent.Torrent, error) {
	if f.listErr != nil {
		err := f.listErr
		f.listErr = nil
		return nil, err
	}
	return f.torrents, nil
}

func (f *fakeAPI) GetTorrentTrackersCtx(_ context.Context, hash string) ([]qbittorrent.TorrentTracker, error) {
	return f.trackers[hash], nil
}

func (f *fakeAPI) PauseCtx(_ context.Context, hashes []string) error {
	f.paused = append(f.paused, hashes...)
	return nil
}

func (f *fakeAPI) DeleteTorrentsCtx(_ context.Context, hashes []string, deleteFiles bool) error {
	if f.deleted == nil {
		f.deleted = make(map[string]bool)
	}
	for _, h := range hashes {
		f.deleted[h] = deleteFiles
	}
	return nil
}

func testClient(f *fakeAPI, cfg Config) *Client {
	if cfg.LoginAttempts == 0 {
		cfg.LoginAttempts = 3
	}
	return newWithAPI(f, cfg, logging.Discard())
}

func TestLoginRetriesThenSucceeds(t *testing.T) {
	f := &fakeAPI{loginErrs: []error{errors.New("refused"), errors.New("refused")}}
	c := testClient(f, Config{LoginBackoff: time.Millisecond})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if f.logins != 3 {
		t.Errorf("logins = %d, want 3", f.logins)
	}
}

func TestLoginGivesUp(t *testing.T) {
	boom := errors.New("refused")
	f := &fakeAPI{loginErrs: []error{boom, boom, boom, boom}}
	c := testClient(f, Config{LoginBackoff: time.Millisecond})
	err := c.Connect(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Connect err = %v, want wrapped %v", err, boom)
	}
	if f.logins != 3 {
		t.Errorf("logins = %d, want 3", f.logins)
	}
}

func TestLoginHonoursContext(t *testing.T) {
	f := &fakeAPI{loginErrs: []error{errors.New("refused"), errors.New("refused")}}
	c := testClient(f, Config{LoginBackoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Connect err = %v, want context.Canceled", err)
	}
}

func TestFailedCallForcesRelogin(t *testing.T) {
	f := &fakeAPI{listErr: errors.New("403")}
	c := testClient(f, Config{})
	ctx := context.Background()
	if _, err := c.Torrents(ctx); err == nil {
		t.Fatal("expected list error")
	}
	if _, err := c.Torrents(ctx); err != nil {
		t.Fatalf("second Torrents: %v", err)
	}
	if f.logins != 2 {
		t.Errorf("logins = %d, want 2", f.logins)
	}
}

func TestTorrentsConverted(t *testing.T) {
	f := &fakeAPI{torrents: []qbittorrent.Torrent{{
		Hash:         "abc",
		Name:         "Some.Movie.2020",
		Category:     "movies",
		Tags:         "keep, radarr ,",
		Tracker:      "https://tracker.example/announce",
		ContentPath:  "/downloads/Some.Movie.2020",
		Progress:     1,
		Ratio:        2.5,
		TotalSize:    4 << 30,
		AddedOn:      1700000000,
		CompletionOn: 1700003600,
		SeedingTime:  86400 * 3,
	}}}
	c := testClient(f, Config{Mapping: Mapping{From: "/downloads", To: "/data/torrents"}})

	got, err := c.Torrents(context.Background())
	if err != nil {
		t.Fatalf("Torrents: %v", err)
	}
	want := []models.Torrent{{
		Hash:        "abc",
		Name:        "Some.Movie.2020",
		Category:    "movies",
		Tags:        []string{"keep", "radarr"},
		Tracker:     "https://tracker.example/announce",
		ContentPath: "/data/torrents/Some.Movie.2020",
		Progress:    1,
		Ratio:       2.5,
		TotalSize:   4 << 30,
		AddedOn:     time.Unix(1700000000, 0),
		CompletedOn: time.Unix(1700003600, 0),
		SeedingTime: 72 * time.Hour,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Torrents mismatch (-want +got):\n%s", diff)
	}
}

func TestIncompleteTorrentHasNoCompletion(t *testing.T) {
	tor := convertTorrent(qbittorrent.Torrent{Hash: "x", CompletionOn: -1, Progress: 0.4}, Mapping{})
	if tor.Completed() {
		t.Error("torrent with completion_on -1 reported complete")
	}
	if !tor.CompletedOn.IsZero() {
		t.Errorf("CompletedOn = %v, want zero", tor.CompletedOn)
	}
}

func TestTrackersConverted(t *testing.T) {
	f := &fakeAPI{trackers: map[string][]qbittorrent.TorrentTracker{
		"abc": {
			{Url: "** [DHT] **", Status: qbittorrent.TrackerStatus(2)},
			{Url: "https://t.example/announce", Status: qbittorrent.TrackerStatus(4), Message: "unregistered torrent"},
		},
	}}
	got, err := testClient(f, Config{}).Trackers(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Trackers: %v", err)
	}
	want := []models.Tracker{
		{URL: "** [DHT] **", Status: models.TrackerWorking},
		{URL: "https://t.example/announce", Status: models.TrackerNotWorking, Message: "unregistered torrent"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Trackers mismatch (-want +got):\n%s", diff)
	}
}

func TestStopAndDelete(t *testing.T) {
	f := &fakeAPI{}
	c := testClient(f, Config{})
	ctx := context.Background()
	if err := c.Stop(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "b", true); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "c", false); err != nil {
		t.Fatal(err)
	}
	if len(f.paused) != 1 || f.paused[0] != "a" {
		t.Errorf("paused = %v", f.paused)
	}
	if !f.deleted["b"] || f.deleted["c"] {
		t.Errorf("deleted = %v", f.deleted)
	}
}

func TestMappingApply(t *testing.T) {
	m := Mapping{From: "/downloads/", To: "/data/torrents"}
	cases := map[string]string{
		"/downloads":           "/data/torrents",
		"/downloads/a/b.mkv":   "/data/torrents/a/b.mkv",
		"/downloads-old/a.mkv": "/downloads-old/a.mkv",
		"/elsewhere/a.mkv":     "/elsewhere/a.mkv",
		"":                     "",
	}
	for in, want := range cases {
		if got := m.Apply(in); got != want {
			t.Errorf("Apply(%q) = %q, want %q", in, got, want)
		}
	}
	if got := (Mapping{}).Apply("/x"); got != "/x" {
		t.Errorf("empty mapping rewrote path to %q", got)
	}
}
