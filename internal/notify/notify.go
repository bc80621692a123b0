// Package notify delivers retention events to humans: a Discord webhook and
// the live SSE stream.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Level selects the accent of a notification.
type Level int

const (
	Info Level = iota
	Error
)

// Field is one key/value line of an event.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Event is a structured notification.
type Event struct {
	Level  Level   `json:"level"`
	Title  string  `json:"title"`
	Fields []Field `json:"fields,omitempty"`
}

// Notifier accepts events. Implementations handle their own retries.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every sink and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send delivers e and logs a failure instead of returning it. Retention
// decisions never depend on delivery.
func Send(ctx context.Context, n Notifier, logger *slog.Logger, e Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, e); err != nil {
		logger.Warn("notify: delivery failed", slog.String("title", e.Title), slog.String("error", err.Error()))
	}
}
