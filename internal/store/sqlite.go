// Package store provides SQLite-backed persistence for the Caseflow engine.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS cases (
	case_id            TEXT PRIMARY KEY,
	stage              TEXT NOT NULL DEFAULT 'DTP-01',
	status             TEXT NOT NULL DEFAULT 'open',
	trigger_source     TEXT NOT NULL DEFAULT 'user',
	intent             TEXT NOT NULL DEFAULT '',
	summary_json       TEXT NOT NULL DEFAULT '{}',
	latest_result_json TEXT NOT NULL DEFAULT '',
	budget_json        TEXT NOT NULL DEFAULT '{}',
	state_version      INTEGER NOT NULL DEFAULT 1,
	last_action_seq    INTEGER NOT NULL DEFAULT 0,
	updated_at_unix    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS activity_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	case_id          TEXT NOT NULL,
	seq_no           INTEGER NOT NULL,
	stage            TEXT NOT NULL,
	worker           TEXT NOT NULL DEFAULT '',
	task             TEXT NOT NULL DEFAULT '',
	units_in         INTEGER NOT NULL DEFAULT 0,
	units_out        INTEGER NOT NULL DEFAULT 0,
	cost_usd         REAL NOT NULL DEFAULT 0.0,
	cache_hit        INTEGER NOT NULL DEFAULT 0,
	cache_key        TEXT NOT NULL DEFAULT '',
	input_hash       TEXT NOT NULL DEFAULT '',
	input_snapshot   TEXT NOT NULL DEFAULT '{}',
	output_snapshot  TEXT NOT NULL DEFAULT '{}',
	summary          TEXT NOT NULL DEFAULT '',
	guardrails_json  TEXT NOT NULL DEFAULT '[]',
	created_at       INTEGER NOT NULL,
	UNIQUE(case_id, seq_no)
);
CREATE INDEX IF NOT EXISTS idx_activity_case_seq ON activity_log(case_id, seq_no);

CREATE TABLE IF NOT EXISTS case_snapshots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	case_id       TEXT NOT NULL,
	stage         TEXT NOT NULL,
	snapshot_json TEXT NOT NULL DEFAULT '{}',
	checksum      TEXT NOT NULL DEFAULT '',
	consumed      INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_case ON case_snapshots(case_id, consumed);

CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key       TEXT PRIMARY KEY,
	case_id         TEXT NOT NULL,
	worker          TEXT NOT NULL,
	input_hash      TEXT NOT NULL,
	schema_version  TEXT NOT NULL DEFAULT '1.0',
	result_json     TEXT NOT NULL,
	input_snapshot  TEXT NOT NULL DEFAULT '{}',
	output_snapshot TEXT NOT NULL DEFAULT '{}',
	is_fallback     INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_case_worker ON cache_entries(case_id, worker);

CREATE TABLE IF NOT EXISTS cost_deltas (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	case_id    TEXT NOT NULL,
	worker     TEXT NOT NULL DEFAULT '',
	tier       INTEGER NOT NULL DEFAULT 1,
	units_in   INTEGER NOT NULL DEFAULT 0,
	units_out  INTEGER NOT NULL DEFAULT 0,
	amount_usd REAL NOT NULL DEFAULT 0.0,
	created_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cost_deltas_case ON cost_deltas(case_id);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
