// Package ledger provides the SQLite-backed strike ledger that debounces
// repeated "still bad" observations into a single deletion decision.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Kind namespaces strike history per retention policy. Each kind owns its
// own table so concurrent jobs never touch each other's rows.
type Kind string

const (
	KindForgotten          Kind = "delete_forgotten"
	KindNotWorkingTrackers Kind = "delete_not_working_trackers"
	KindOrphaned           Kind = "delete_orphaned"
)

// Kinds lists every known policy kind.
var Kinds = []Kind{KindForgotten, KindNotWorkingTrackers, KindOrphaned}

// ParseKind validates s against the known kinds.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("ledger: unknown kind %q", s)
}

// table returns the strike table of the kind. Kinds are a closed set, so
// the name is safe to splice into SQL.
func (k Kind) table() string {
	return string(k) + "_strikes"
}

func schemaSQL() string {
	var b strings.Builder
	for _, k := range Kinds {
		fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %[1]s (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id TEXT    NOT NULL,
	struck_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_entity ON %[1]s(entity_id, struck_at DESC);
`, k.table())
	}
	return b.String()
}

// DB wraps the ledger's sql.DB handle.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the ledger database and applies the schema.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create db dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	// SQLite allows one writer; a single connection serialises transactions
	// from jobs of different kinds instead of failing with SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
