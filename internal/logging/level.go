// Package logging builds the structured slog logger used across seedkeeper.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelTrace sits below slog.LevelDebug and is used for routine exclusions.
const LevelTrace = slog.Level(-8)

// Level is a slog.Level that also understands "trace" when decoded from config.
type Level slog.Level

// ParseLevel converts a level name (trace, debug, info, warn, error) into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return Level(LevelTrace), nil
	case "", "info":
		return Level(slog.LevelInfo), nil
	case "debug":
		return Level(slog.LevelDebug), nil
	case "warn", "warning":
		return Level(slog.LevelWarn), nil
	case "error":
		return Level(slog.LevelError), nil
	}
	return 0, fmt.Errorf("logging: unknown level %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// String returns the level name.
func (l Level) String() string {
	if slog.Level(l) == LevelTrace {
		return "TRACE"
	}
	return slog.Level(l).String()
}

// Slog returns the underlying slog.Level.
func (l Level) Slog() slog.Level {
	return slog.Level(l)
}

// NewJSON returns a JSON logger writing to w at the given minimum level.
func NewJSON(w io.Writer, level Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level.Slog(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lv, ok := a.Value.Any().(slog.Level); ok && lv == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}))
}

// Trace logs msg at LevelTrace.
func Trace(logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logger.LogAttrs(context.Background(), LevelTrace, msg, attrs...)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
