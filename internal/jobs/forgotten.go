package jobs

import (
	"context"
	"fmt"

	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/models"
	"github.com/starford/seedkeeper/internal/notify"
)

// ForgottenConfig configures the forgotten-torrent policy.
type ForgottenConfig struct {
	Action         Action
	ProtectedTag   string
	MediaRoot      string
	MinSeedingDays float64
}

// Forgotten removes completed torrents whose content is no longer part of
// the media library.
type Forgotten struct {
	torrentPolicy
	minSeedingDays float64
}

var _ Job = (*Forgotten)(nil)

// NewForgotten creates the policy. rec must be the forgotten ledger.
func NewForgotten(cfg ForgottenConfig, rec ledger.Recorder, deps Deps) *Forgotten {
	return &Forgotten{
		torrentPolicy: torrentPolicy{
			policy:       newPolicy(rec, cfg.Action, cfg.MediaRoot, deps),
			protectedTag: cfg.ProtectedTag,
		},
		minSeedingDays: cfg.MinSeedingDays,
	}
}

// Name implements Job.
func (f *Forgotten) Name() string { return f.name() }

// Run implements Job.
func (f *Forgotten) Run(ctx context.Context) (Report, error) {
	return f.run(ctx, f.rules, func(t models.Torrent, action string) notify.Event {
		return torrentEvent("Found forgotten torrent", action, t)
	})
}

func (f *Forgotten) rules(t models.Torrent) []rule {
	return []rule{
		protectedRule(t, f.protectedTag),
		f.completedRule(t),
		f.linkRule(t.ContentPath),
	}
}

// completedRule excludes torrents still downloading or seeding for less than
// the configured minimum.
func (f *Forgotten) completedRule(t models.Torrent) rule {
	return func(context.Context) (string, error) {
		if !t.Completed() {
			return "not completed", nil
		}
		if days := t.SeedingDays(); days < f.minSeedingDays {
			return fmt.Sprintf("seeding %.2f/%g days", days, f.minSeedingDays), nil
		}
		return "", nil
	}
}
