package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// CacheEntry is one persisted worker invocation result, keyed by the full
// deterministic fingerprint.
type CacheEntry struct {
	CacheKey       string
	CaseID         string
	Worker         string
	InputHash      string
	SchemaVersion  string
	ResultJSON     string
	InputSnapshot  string
	OutputSnapshot string
	IsFallback     bool
	CreatedAt      int64
}

// CacheRepo persists worker results keyed by input fingerprint. Fallback
// entries are stored for audit but callers must not serve them as hits.
type CacheRepo struct{}

// Get returns the entry for key, or (nil, nil) on a miss.
func (r *CacheRepo) Get(ctx context.Context, db *sql.DB, key string) (*CacheEntry, error) {
	const q = `SELECT cache_key, case_id, worker, input_hash, schema_version, result_json, input_snapshot, output_snapshot, is_fallback, created_at
FROM cache_entries WHERE cache_key = ?`

	var e CacheEntry
	var isFallback int
	err := db.QueryRowContext(ctx, q, key).Scan(&e.CacheKey, &e.CaseID, &e.Worker,
		&e.InputHash, &e.SchemaVersion, &e.ResultJSON,
		&e.InputSnapshot, &e.OutputSnapshot, &isFallback, &e.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	e.IsFallback = isFallback != 0
	return &e, nil
}

// Put upserts an entry. A later write for the same key replaces the earlier
// one, so a successful retry overwrites a stored fallback.
func (r *CacheRepo) Put(ctx context.Context, db *sql.DB, e CacheEntry) error {
	const q = `INSERT INTO cache_entries (cache_key, case_id, worker, input_hash, schema_version, result_json, input_snapshot, output_snapshot, is_fallback, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET
	result_json = excluded.result_json,
	input_snapshot = excluded.input_snapshot,
	output_snapshot = excluded.output_snapshot,
	is_fallback = excluded.is_fallback,
	created_at = excluded.created_at`

	isFallback := 0
	if e.IsFallback {
		isFallback = 1
	}
	_, err := db.ExecContext(ctx, q, e.CacheKey, e.CaseID, e.Worker,
		e.InputHash, e.SchemaVersion, e.ResultJSON,
		orEmptyJSON(e.InputSnapshot), orEmptyJSON(e.OutputSnapshot),
		isFallback, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// Decode returns the entry's result, validated.
func (e *CacheEntry) Decode() (*domain.Result, error) {
	return domain.DecodeResult(e.ResultJSON)
}
