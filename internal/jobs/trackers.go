package jobs

import (
	"context"
	"sync"

	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/models"
	"github.com/starford/seedkeeper/internal/notify"
)

// TrackersConfig configures the dead-tracker policy.
type TrackersConfig struct {
	Action       Action
	ProtectedTag string
	MediaRoot    string
}

// Trackers acts on torrents none of whose real trackers work.
type Trackers struct {
	torrentPolicy

	mu   sync.Mutex
	seen map[string][]models.Tracker // hash -> trackers fetched this pass
}

var _ Job = (*Trackers)(nil)

// NewTrackers creates the policy. rec must be the dead-tracker ledger.
func NewTrackers(cfg TrackersConfig, rec ledger.Recorder, deps Deps) *Trackers {
	return &Trackers{
		torrentPolicy: torrentPolicy{
			policy:       newPolicy(rec, cfg.Action, cfg.MediaRoot, deps),
			protectedTag: cfg.ProtectedTag,
		},
	}
}

// Name implements Job.
func (j *Trackers) Name() string { return j.name() }

// Run implements Job.
func (j *Trackers) Run(ctx context.Context) (Report, error) {
	j.mu.Lock()
	j.seen = make(map[string][]models.Tracker)
	j.mu.Unlock()

	return j.run(ctx, j.rules, func(t models.Torrent, action string) notify.Event {
		j.mu.Lock()
		trackers := j.seen[t.Hash]
		j.mu.Unlock()
		return trackerEvent(action, t, trackers)
	})
}

func (j *Trackers) rules(t models.Torrent) []rule {
	return []rule{
		protectedRule(t, j.protectedTag),
		j.healthyRule(t),
		j.linkRule(t.ContentPath),
	}
}

// healthyRule excludes torrents with at least one working real tracker.
// Torrents that only know DHT, PeX or LSD cannot be judged and are excluded.
func (j *Trackers) healthyRule(t models.Torrent) rule {
	return func(ctx context.Context) (string, error) {
		all, err := j.deps.Source.Trackers(ctx, t.Hash)
		if err != nil {
			return "", err
		}
		announce := realTrackers(all)
		j.mu.Lock()
		j.seen[t.Hash] = announce
		j.mu.Unlock()

		if len(announce) == 0 {
			return "no trackers to judge", nil
		}
		for _, tr := range announce {
			if tr.Status == models.TrackerWorking {
				return "trackers working", nil
			}
		}
		return "", nil
	}
}

func realTrackers(all []models.Tracker) []models.Tracker {
	out := make([]models.Tracker, 0, len(all))
	for _, tr := range all {
		if !tr.Pseudo() {
			out = append(out, tr)
		}
	}
	return out
}
