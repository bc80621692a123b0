package jobs

import (
	"context"
	"log/slog"

	"github.com/starford/seedkeeper/internal/models"
	"github.com/starford/seedkeeper/internal/notify"
)

// torrentPolicy is a policy over download-client torrents.
type torrentPolicy struct {
	policy
	protectedTag string
}

// run classifies every torrent, then acts on the eligible ones. Acting is
// deferred until everything is classified so that files shared with a
// torrent that is not eligible are never deleted.
func (p *torrentPolicy) run(
	ctx context.Context,
	rules func(t models.Torrent) []rule,
	event func(t models.Torrent, action string) notify.Event,
) (Report, error) {
	p.logger.Info("job started")
	report := newReport(p.name(), p.deps.now())

	torrents, err := p.deps.Source.Torrents(ctx)
	if err != nil {
		return p.finish(&report, err)
	}

	decided := make([]Decision, 0, len(torrents))
	for _, t := range torrents {
		if ctx.Err() != nil {
			break
		}
		d := p.evaluate(ctx, t.Hash, t.Name, rules(t)...)
		report.add(d)
		decided = append(decided, d)
	}
	cancelled := ctx.Err()
	if cancelled == nil {
		known := make(map[string]struct{}, len(torrents))
		for _, t := range torrents {
			known[t.Hash] = struct{}{}
		}
		p.cleanup(ctx, known, &report)
	}

	// Anything not eligible, including torrents left unevaluated after a
	// cancellation, keeps its content path alive.
	keep := make(map[string]struct{})
	for i, t := range torrents {
		if i >= len(decided) || decided[i].Outcome != Eligible {
			keep[t.ContentPath] = struct{}{}
		}
	}

	// Eligible torrents were already cleared from the ledger, so act even
	// when the pass itself was cancelled.
	actCtx := context.WithoutCancel(ctx)
	for i, d := range decided {
		if d.Outcome != Eligible {
			continue
		}
		t := torrents[i]
		_, shared := keep[t.ContentPath]
		label, err := p.apply(actCtx, t, shared)
		p.deps.Metrics.Action(p.name(), string(p.action), err)
		if err != nil {
			report.Failed++
			p.logger.Error("action failed", slog.String("torrent", t.Name),
				slog.String("action", string(p.action)), slog.String("error", err.Error()))
			continue
		}
		report.Acted++
		notify.Send(actCtx, p.deps.Notifier, p.logger, event(t, label))
	}

	return p.finish(&report, cancelled)
}

// apply carries out the configured action and returns the label used in
// notifications.
func (p *torrentPolicy) apply(ctx context.Context, t models.Torrent, shared bool) (string, error) {
	switch p.action {
	case ActionStop:
		p.logger.Info("action = stop, stopping torrent", slog.String("torrent", t.Name))
		return string(ActionStop), p.deps.Source.Stop(ctx, t.Hash)
	case ActionDelete:
		if shared {
			p.logger.Warn("action = delete, keeping files used by another torrent",
				slog.String("torrent", t.Name), slog.String("content_path", t.ContentPath))
			return "delete (files kept, shared)", p.deps.Source.Delete(ctx, t.Hash, false)
		}
		p.logger.Info("action = delete, deleting torrent and files", slog.String("torrent", t.Name))
		return string(ActionDelete), p.deps.Source.Delete(ctx, t.Hash, true)
	default:
		p.logger.Info("action = test, torrent remains unhandled", slog.String("torrent", t.Name))
		return string(ActionTest), nil
	}
}
