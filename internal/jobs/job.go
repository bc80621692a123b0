// Package jobs implements the retention policies. Every policy evaluates its
// entities through the same state machine (protected, completion, library
// link, strike) and differs only in what its entities are and how it acts.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/seedkeeper/internal/apperr"
	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/metrics"
	"github.com/starford/seedkeeper/internal/models"
	"github.com/starford/seedkeeper/internal/notify"
	"github.com/starford/seedkeeper/internal/sse"
)

// Job is one retention pass that can be scheduled.
type Job interface {
	Name() string
	Run(ctx context.Context) (Report, error)
}

// Action is what happens to an eligible entity.
type Action string

const (
	ActionTest   Action = "test"
	ActionStop   Action = "stop"
	ActionDelete Action = "delete"
)

// ParseAction validates s.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionTest, ActionStop, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", apperr.ErrInvalidAction, s)
}

// Outcome is the result of evaluating one entity.
type Outcome string

const (
	Excluded Outcome = "excluded"
	Pending  Outcome = "pending"
	Eligible Outcome = "eligible"
	Skipped  Outcome = "skipped" // evaluation failed; no strike, no reset
)

// Decision is the verdict for one entity in one pass.
type Decision struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Outcome Outcome      `json:"outcome"`
	Reason  string       `json:"reason,omitempty"`
	State   ledger.State `json:"state"`
}

// Report summarises one pass.
type Report struct {
	Job       string          `json:"job"`
	Started   time.Time       `json:"started"`
	Finished  time.Time       `json:"finished"`
	Counts    map[Outcome]int `json:"counts"`
	Acted     int             `json:"acted"`
	Failed    int             `json:"failed"`
	Cleaned   int             `json:"cleaned"`
	Decisions []Decision      `json:"decisions"`
}

func newReport(job string, now time.Time) Report {
	return Report{Job: job, Started: now, Counts: make(map[Outcome]int)}
}

func (r *Report) add(d Decision) {
	r.Counts[d.Outcome]++
	r.Decisions = append(r.Decisions, d)
}

// Source supplies torrents and carries out actions on them.
type Source interface {
	Torrents(ctx context.Context) ([]models.Torrent, error)
	Trackers(ctx context.Context, hash string) ([]models.Tracker, error)
	Stop(ctx context.Context, hash string) error
	Delete(ctx context.Context, hash string, deleteFiles bool) error
}

// LinkChecker answers whether content is hard-linked into the library.
type LinkChecker interface {
	HasHardlinkUnder(ctx context.Context, contentPath, protectedRoot string) (bool, error)
}

// DecisionSink receives every decision as it is made.
type DecisionSink interface {
	PublishDecision(d sse.Decision)
}

// Deps are the collaborators shared by every policy.
type Deps struct {
	Source   Source
	Links    LinkChecker
	Notifier notify.Notifier
	Events   DecisionSink     // optional
	Metrics  *metrics.Metrics // optional
	Logger   *slog.Logger
	Now      func() time.Time // optional
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
