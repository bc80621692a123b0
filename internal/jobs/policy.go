package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/logging"
	"github.com/starford/seedkeeper/internal/models"
	"github.com/starford/seedkeeper/internal/sse"
)

// rule returns a reason to exclude the entity, or "" to pass it on. An error
// means the entity cannot be judged this pass.
type rule func(ctx context.Context) (string, error)

// policy is the state machine shared by all jobs.
type policy struct {
	ledger ledger.Recorder
	action Action
	media  string // protected library root
	deps   Deps
	logger *slog.Logger
}

func newPolicy(rec ledger.Recorder, action Action, media string, deps Deps) policy {
	return policy{
		ledger: rec,
		action: action,
		media:  media,
		deps:   deps,
		logger: deps.Logger.With(slog.String("job", string(rec.Kind()))),
	}
}

func (p *policy) name() string { return string(p.ledger.Kind()) }

// evaluate runs rules in order; the first that excludes wins and clears the
// entity's history. An entity that passes every rule is struck.
func (p *policy) evaluate(ctx context.Context, id, name string, rules ...rule) Decision {
	d := Decision{ID: id, Name: name}
	for _, r := range rules {
		reason, err := r(ctx)
		if err != nil {
			p.logger.Warn("cannot evaluate, skipping",
				slog.String("entity", name), slog.String("error", err.Error()))
			d.Outcome, d.Reason = Skipped, err.Error()
			return p.record(d)
		}
		if reason == "" {
			continue
		}
		if err := p.ledger.Reset(ctx, id); err != nil {
			p.logger.Error("ledger reset failed",
				slog.String("entity", name), slog.String("error", err.Error()))
			d.Outcome, d.Reason = Skipped, err.Error()
			return p.record(d)
		}
		logging.Trace(p.logger, "not matching criteria",
			slog.String("entity", name), slog.String("reason", reason))
		d.Outcome, d.Reason = Excluded, reason
		return p.record(d)
	}

	fired, st, err := p.ledger.Strike(ctx, id)
	if err != nil {
		p.logger.Error("ledger strike failed",
			slog.String("entity", name), slog.String("error", err.Error()))
		d.Outcome, d.Reason = Skipped, err.Error()
		return p.record(d)
	}
	d.State = st
	if !fired {
		th := p.ledger.Thresholds()
		p.logger.Debug("matches criteria but not strike thresholds",
			slog.String("entity", name),
			slog.String("strikes", fmt.Sprintf("%d/%d", st.Strikes, th.RequiredStrikes)),
			slog.String("days", fmt.Sprintf("%d/%d", st.StreakDays, th.MinStrikeDays)))
		d.Outcome = Pending
		return p.record(d)
	}
	p.logger.Info("strike thresholds reached", slog.String("entity", name),
		slog.Int("strikes", st.Strikes), slog.Int("days", st.StreakDays))
	d.Outcome = Eligible
	return p.record(d)
}

func (p *policy) record(d Decision) Decision {
	p.deps.Metrics.Decision(p.name(), string(d.Outcome))
	if p.deps.Events != nil {
		p.deps.Events.PublishDecision(sse.Decision{
			Job:     p.name(),
			Entity:  d.ID,
			Name:    d.Name,
			Outcome: string(d.Outcome),
			Strikes: d.State.Strikes,
			Days:    d.State.StreakDays,
		})
	}
	return d
}

// cleanup drops history of entities that no longer exist.
func (p *policy) cleanup(ctx context.Context, known map[string]struct{}, r *Report) {
	n, err := p.ledger.Cleanup(ctx, known)
	if err != nil {
		p.logger.Error("ledger cleanup failed", slog.String("error", err.Error()))
		return
	}
	r.Cleaned = n
	if n > 0 {
		p.logger.Debug("removed stale strike history", slog.Int("entities", n))
	}
}

func (p *policy) finish(r *Report, err error) (Report, error) {
	r.Finished = p.deps.now()
	p.deps.Metrics.Run(p.name(), r.Finished.Sub(r.Started), err)
	attrs := []any{
		slog.Int("excluded", r.Counts[Excluded]),
		slog.Int("pending", r.Counts[Pending]),
		slog.Int("eligible", r.Counts[Eligible]),
		slog.Int("skipped", r.Counts[Skipped]),
		slog.Int("acted", r.Acted),
	}
	if err != nil {
		p.logger.Error("job failed", append(attrs, slog.String("error", err.Error()))...)
		return *r, err
	}
	p.logger.Info("job finished", attrs...)
	return *r, nil
}

func protectedRule(t models.Torrent, tag string) rule {
	return func(context.Context) (string, error) {
		if t.HasTag(tag) {
			return "protected tag", nil
		}
		return "", nil
	}
}

func (p *policy) linkRule(path string) rule {
	return func(ctx context.Context) (string, error) {
		linked, err := p.deps.Links.HasHardlinkUnder(ctx, path, p.media)
		if err != nil {
			return "", fmt.Errorf("library link check: %w", err)
		}
		if linked {
			return "linked into media library", nil
		}
		return "", nil
	}
}
