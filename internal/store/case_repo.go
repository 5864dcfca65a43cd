package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// CaseRepo handles persistence for CaseState records.
type CaseRepo struct{}

// CreateTx inserts a new case within an existing transaction.
func (r *CaseRepo) CreateTx(ctx context.Context, tx *sql.Tx, state domain.CaseState) error {
	summaryJSON, err := json.Marshal(state.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	budgetJSON, err := json.Marshal(state.Budget)
	if err != nil {
		return fmt.Errorf("marshal budget: %w", err)
	}
	resultJSON, err := encodeLatestResult(state.LatestResult)
	if err != nil {
		return err
	}

	const q = `INSERT INTO cases (case_id, stage, status, trigger_source, intent, summary_json, latest_result_json, budget_json, state_version, last_action_seq, updated_at_unix)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		state.CaseID,
		string(state.Stage),
		string(state.Status),
		string(state.Trigger),
		state.Intent,
		string(summaryJSON),
		resultJSON,
		string(budgetJSON),
		state.StateVersion,
		state.LastActionSeq,
		state.UpdatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create case: %w", err)
	}
	return nil
}

// UpdateStateTx updates a case within a transaction using optimistic locking.
// The update only succeeds if the current state_version matches the expected version.
func (r *CaseRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, state domain.CaseState) error {
	summaryJSON, err := json.Marshal(state.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	budgetJSON, err := json.Marshal(state.Budget)
	if err != nil {
		return fmt.Errorf("marshal budget: %w", err)
	}
	resultJSON, err := encodeLatestResult(state.LatestResult)
	if err != nil {
		return err
	}

	const q = `UPDATE cases SET
		stage = ?,
		status = ?,
		intent = ?,
		summary_json = ?,
		latest_result_json = ?,
		budget_json = ?,
		state_version = state_version + 1,
		last_action_seq = ?,
		updated_at_unix = ?
	WHERE case_id = ? AND state_version = ?`

	res, err := tx.ExecContext(ctx, q,
		string(state.Stage),
		string(state.Status),
		state.Intent,
		string(summaryJSON),
		resultJSON,
		string(budgetJSON),
		state.LastActionSeq,
		state.UpdatedAtUnix,
		state.CaseID,
		state.StateVersion,
	)
	if err != nil {
		return fmt.Errorf("update case state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

// GetByID retrieves a case by its ID.
func (r *CaseRepo) GetByID(ctx context.Context, db *sql.DB, caseID string) (*domain.CaseState, error) {
	const q = `SELECT case_id, stage, status, trigger_source, intent, summary_json, latest_result_json, budget_json, state_version, last_action_seq, updated_at_unix
FROM cases WHERE case_id = ?`

	row := db.QueryRowContext(ctx, q, caseID)

	var s domain.CaseState
	var stage, status, trigger, summaryJSON, resultJSON, budgetJSON string
	err := row.Scan(&s.CaseID, &stage, &status, &trigger, &s.Intent,
		&summaryJSON, &resultJSON, &budgetJSON,
		&s.StateVersion, &s.LastActionSeq, &s.UpdatedAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrCaseNotFound
		}
		return nil, fmt.Errorf("get case: %w", err)
	}

	s.Stage = domain.Stage(stage)
	s.Status = domain.CaseStatus(status)
	s.Trigger = domain.TriggerSource(trigger)
	if err := json.Unmarshal([]byte(summaryJSON), &s.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	if err := json.Unmarshal([]byte(budgetJSON), &s.Budget); err != nil {
		return nil, fmt.Errorf("unmarshal budget: %w", err)
	}
	if resultJSON != "" {
		result, err := domain.DecodeResult(resultJSON)
		if err != nil {
			return nil, err
		}
		s.LatestResult = result
	}
	return &s, nil
}

// List returns all cases ordered by last update, newest first.
func (r *CaseRepo) List(ctx context.Context, db *sql.DB) ([]domain.CaseState, error) {
	const q = `SELECT case_id, stage, status, trigger_source, intent, summary_json, latest_result_json, budget_json, state_version, last_action_seq, updated_at_unix
FROM cases ORDER BY updated_at_unix DESC`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var cases []domain.CaseState
	for rows.Next() {
		var s domain.CaseState
		var stage, status, trigger, summaryJSON, resultJSON, budgetJSON string
		if err := rows.Scan(&s.CaseID, &stage, &status, &trigger, &s.Intent,
			&summaryJSON, &resultJSON, &budgetJSON,
			&s.StateVersion, &s.LastActionSeq, &s.UpdatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		s.Stage = domain.Stage(stage)
		s.Status = domain.CaseStatus(status)
		s.Trigger = domain.TriggerSource(trigger)
		if err := json.Unmarshal([]byte(summaryJSON), &s.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
		if err := json.Unmarshal([]byte(budgetJSON), &s.Budget); err != nil {
			return nil, fmt.Errorf("unmarshal budget: %w", err)
		}
		if resultJSON != "" {
			result, err := domain.DecodeResult(resultJSON)
			if err != nil {
				return nil, err
			}
			s.LatestResult = result
		}
		cases = append(cases, s)
	}
	return cases, rows.Err()
}

func encodeLatestResult(r *domain.Result) (string, error) {
	if r == nil {
		return "", nil
	}
	return domain.EncodeResult(r)
}
