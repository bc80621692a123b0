package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Thresholds decide when an entity's strike history fires.
type Thresholds struct {
	RequiredStrikes int
	MinStrikeDays   int
}

// Crossed reports whether both minimums are met.
func (t Thresholds) Crossed(s State) bool {
	return s.Strikes >= t.RequiredStrikes && s.StreakDays >= t.MinStrikeDays
}

// State is the strike state derived from an entity's rows.
type State struct {
	Strikes    int `json:"strikes"`
	StreakDays int `json:"streak_days"`
}

// Entry summarises the history of one entity.
type Entry struct {
	EntityID   string    `json:"entity_id"`
	Strikes    int       `json:"strikes"`
	StreakDays int       `json:"streak_days"`
	First      time.Time `json:"first"`
	Last       time.Time `json:"last"`
}

// Ledger is the strike history of one policy kind.
type Ledger struct {
	db   *DB
	kind Kind
	th   Thresholds
	now  func() time.Time
	loc  *time.Location
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for new strikes.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLocation sets the time zone used to bucket strikes into calendar days.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		l.loc = loc
	}
}

// Ledger returns the strike ledger for kind.
func (db *DB) Ledger(kind Kind, th Thresholds, opts ...Option) *Ledger {
	l := &Ledger{db: db, kind: kind, th: th, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Kind returns the policy kind of the ledger.
func (l *Ledger) Kind() Kind { return l.kind }

// Thresholds returns the configured thresholds.
func (l *Ledger) Thresholds() Thresholds { return l.th }

// Strike records a strike for id and evaluates the thresholds in the same
// transaction. When they are crossed every row of id is deleted and fired
// is true; the next strike starts a fresh history.
func (l *Ledger) Strike(ctx context.Context, id string) (fired bool, st State, err error) {
	tx, err := l.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, State{}, fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+l.kind.table()+` (entity_id, struck_at) VALUES (?, ?)`,
		id, l.now().UnixMilli()); err != nil {
		return false, State{}, fmt.Errorf("ledger: insert strike: %w", err)
	}

	times, err := strikeTimes(ctx, tx, l.kind, id)
	if err != nil {
		return false, State{}, err
	}
	st = State{Strikes: len(times), StreakDays: Streak(times, l.loc)}

	if l.th.Crossed(st) {
		if err := deleteEntity(ctx, tx, l.kind, id); err != nil {
			return false, State{}, err
		}
		fired = true
	}

	if err := tx.Commit(); err != nil {
		return false, State{}, fmt.Errorf("ledger: commit strike: %w", err)
	}
	return fired, st, nil
}

// Reset deletes every row of id. Resetting an unknown id is a no-op.
func (l *Ledger) Reset(ctx context.Context, id string) error {
	tx, err := l.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteEntity(ctx, tx, l.kind, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit reset: %w", err)
	}
	return nil
}

// StrikeCount returns the number of recorded strikes for id.
func (l *Ledger) StrikeCount(ctx context.Context, id string) (int, error) {
	var n int
	err := l.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+l.kind.table()+` WHERE entity_id = ?`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ledger: count strikes: %w", err)
	}
	return n, nil
}

// ConsecutiveDays returns the current calendar-day streak of id.
func (l *Ledger) ConsecutiveDays(ctx context.Context, id string) (int, error) {
	times, err := strikeTimes(ctx, l.db.conn, l.kind, id)
	if err != nil {
		return 0, err
	}
	return Streak(times, l.loc), nil
}

// State returns the strike count and streak of id.
func (l *Ledger) State(ctx context.Context, id string) (State, error) {
	times, err := strikeTimes(ctx, l.db.conn, l.kind, id)
	if err != nil {
		return State{}, err
	}
	return State{Strikes: len(times), StreakDays: Streak(times, l.loc)}, nil
}

// Cleanup drops the history of every entity not in known and returns how
// many entities were removed.
func (l *Ledger) Cleanup(ctx context.Context, known map[string]struct{}) (int, error) {
	tx, err := l.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT entity_id FROM `+l.kind.table())
	if err != nil {
		return 0, fmt.Errorf("ledger: list entities: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("ledger: scan entity: %w", err)
		}
		if _, ok := known[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("ledger: list entities: %w", err)
	}
	rows.Close()

	for _, id := range stale {
		if err := deleteEntity(ctx, tx, l.kind, id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger: commit cleanup: %w", err)
	}
	return len(stale), nil
}

// Entries lists every entity that currently has strikes, ordered by id.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.conn.QueryContext(ctx,
		`SELECT entity_id, struck_at FROM `+l.kind.table()+` ORDER BY entity_id, struck_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	defer rows.Close()

	var (
		out   []Entry
		cur   string
		times []time.Time
	)
	flush := func() {
		if len(times) == 0 {
			return
		}
		out = append(out, Entry{
			EntityID:   cur,
			Strikes:    len(times),
			StreakDays: Streak(times, l.loc),
			First:      times[len(times)-1],
			Last:       times[0],
		})
	}
	for rows.Next() {
		var (
			id string
			ms int64
		)
		if err := rows.Scan(&id, &ms); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		if id != cur {
			flush()
			cur, times = id, nil
		}
		times = append(times, time.UnixMilli(ms))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	flush()
	return out, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// strikeTimes returns the strike timestamps of id, newest first.
func strikeTimes(ctx context.Context, q querier, kind Kind, id string) ([]time.Time, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT struck_at FROM `+kind.table()+` WHERE entity_id = ? ORDER BY struck_at DESC, id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("ledger: list strikes: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("ledger: scan strike: %w", err)
		}
		out = append(out, time.UnixMilli(ms))
	}
	return out, rows.Err()
}

func deleteEntity(ctx context.Context, tx *sql.Tx, kind Kind, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+kind.table()+` WHERE entity_id = ?`, id); err != nil {
		return fmt.Errorf("ledger: delete strikes: %w", err)
	}
	return nil
}
