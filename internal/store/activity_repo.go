package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// ActivityRepo handles the append-only audit log.
type ActivityRepo struct{}

// AppendTx appends one activity entry within a transaction. The UNIQUE
// (case_id, seq_no) constraint rejects duplicate sequence numbers.
func (r *ActivityRepo) AppendTx(ctx context.Context, tx *sql.Tx, e domain.ActivityEntry) error {
	guardrails, err := json.Marshal(e.GuardrailEvents)
	if err != nil {
		return fmt.Errorf("marshal guardrail events: %w", err)
	}
	if e.GuardrailEvents == nil {
		guardrails = []byte("[]")
	}

	const q = `INSERT INTO activity_log (case_id, seq_no, stage, worker, task, units_in, units_out, cost_usd, cache_hit, cache_key, input_hash, input_snapshot, output_snapshot, summary, guardrails_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	cacheHit := 0
	if e.CacheHit {
		cacheHit = 1
	}
	_, err = tx.ExecContext(ctx, q,
		e.CaseID, e.SeqNo, string(e.Stage), e.Worker, e.Task,
		e.UnitsIn, e.UnitsOut, e.CostUSD, cacheHit, e.CacheKey,
		e.InputHash, orEmptyJSON(e.InputSnapshot), orEmptyJSON(e.OutputSnapshot),
		e.Summary, string(guardrails), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListByCase returns activity entries for a case with seq_no greater than
// sinceSeq, in ascending order.
func (r *ActivityRepo) ListByCase(ctx context.Context, db *sql.DB, caseID string, sinceSeq int64) ([]domain.ActivityEntry, error) {
	const q = `SELECT id, case_id, seq_no, stage, worker, task, units_in, units_out, cost_usd, cache_hit, cache_key, input_hash, input_snapshot, output_snapshot, summary, guardrails_json, created_at
FROM activity_log WHERE case_id = ? AND seq_no > ? ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, caseID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []domain.ActivityEntry
	for rows.Next() {
		var e domain.ActivityEntry
		var stage, guardrails string
		var cacheHit int
		if err := rows.Scan(&e.ID, &e.CaseID, &e.SeqNo, &stage, &e.Worker, &e.Task,
			&e.UnitsIn, &e.UnitsOut, &e.CostUSD, &cacheHit, &e.CacheKey,
			&e.InputHash, &e.InputSnapshot, &e.OutputSnapshot,
			&e.Summary, &guardrails, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.Stage = domain.Stage(stage)
		e.CacheHit = cacheHit != 0
		if guardrails != "" && guardrails != "[]" {
			if err := json.Unmarshal([]byte(guardrails), &e.GuardrailEvents); err != nil {
				return nil, fmt.Errorf("unmarshal guardrail events: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func orEmptyJSON(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
