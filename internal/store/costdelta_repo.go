package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// CostDeltaRepo records individual budget increments for reconciliation.
type CostDeltaRepo struct{}

// CreateTx inserts one cost delta within a transaction.
func (r *CostDeltaRepo) CreateTx(ctx context.Context, tx *sql.Tx, d domain.CostDelta) error {
	const q = `INSERT INTO cost_deltas (case_id, worker, tier, units_in, units_out, amount_usd, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, d.CaseID, d.Worker, int(d.Tier), d.UnitsIn, d.UnitsOut, d.AmountUSD, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create cost delta: %w", err)
	}
	return nil
}

// ListByCase returns all deltas for a case, oldest first.
func (r *CostDeltaRepo) ListByCase(ctx context.Context, db *sql.DB, caseID string) ([]domain.CostDelta, error) {
	const q = `SELECT case_id, worker, tier, units_in, units_out, amount_usd, created_at
FROM cost_deltas WHERE case_id = ? ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, caseID)
	if err != nil {
		return nil, fmt.Errorf("list cost deltas: %w", err)
	}
	defer rows.Close()

	var deltas []domain.CostDelta
	for rows.Next() {
		var d domain.CostDelta
		var tier int
		if err := rows.Scan(&d.CaseID, &d.Worker, &tier, &d.UnitsIn, &d.UnitsOut, &d.AmountUSD, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cost delta: %w", err)
		}
		d.Tier = domain.CostTier(tier)
		deltas = append(deltas, d)
	}
	return deltas, rows.Err()
}
