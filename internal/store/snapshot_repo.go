package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// SnapshotRow is a persisted resume snapshot with its integrity checksum.
type SnapshotRow struct {
	ID           int64
	CaseID       string
	Stage        domain.Stage
	SnapshotJSON string
	Checksum     string
	Consumed     bool
	CreatedAt    int64
}

// SnapshotRepo handles resume snapshots for cases suspended at the human gate.
type SnapshotRepo struct{}

// SaveTx stores a snapshot within a transaction.
func (r *SnapshotRepo) SaveTx(ctx context.Context, tx *sql.Tx, row SnapshotRow) error {
	const q = `INSERT INTO case_snapshots (case_id, stage, snapshot_json, checksum, consumed, created_at)
VALUES (?, ?, ?, ?, 0, ?)`
	_, err := tx.ExecContext(ctx, q, row.CaseID, string(row.Stage), row.SnapshotJSON, row.Checksum, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetLatestUnconsumed returns the newest unconsumed snapshot for a case,
// or domain.ErrSnapshotMissing when none exists.
func (r *SnapshotRepo) GetLatestUnconsumed(ctx context.Context, db *sql.DB, caseID string) (*SnapshotRow, error) {
	const q = `SELECT id, case_id, stage, snapshot_json, checksum, consumed, created_at
FROM case_snapshots WHERE case_id = ? AND consumed = 0 ORDER BY id DESC LIMIT 1`

	var row SnapshotRow
	var stage string
	var consumed int
	err := db.QueryRowContext(ctx, q, caseID).Scan(&row.ID, &row.CaseID, &stage, &row.SnapshotJSON, &row.Checksum, &consumed, &row.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrSnapshotMissing
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	row.Stage = domain.Stage(stage)
	row.Consumed = consumed != 0
	return &row, nil
}

// MarkConsumedTx marks a snapshot consumed so a second resume attempt
// cannot replay it.
func (r *SnapshotRepo) MarkConsumedTx(ctx context.Context, tx *sql.Tx, id int64) error {
	const q = `UPDATE case_snapshots SET consumed = 1 WHERE id = ? AND consumed = 0`
	res, err := tx.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("mark snapshot consumed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyResumed
	}
	return nil
}
