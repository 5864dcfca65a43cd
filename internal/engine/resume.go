package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// Resume consumes a human decision for a case suspended at the gate.
// Approve applies any field edits to the latest result and performs the
// single legal stage advance; reject keeps the stage and marks the case
// rejected. A second resume for the same suspension fails with
// ErrAlreadyResumed and mutates nothing. After an approved, non-terminal
// advance the run loop is re-entered so the case continues immediately.
func (e *Engine) Resume(ctx context.Context, caseID string, decision domain.HumanDecision) (*RunOutcome, error) {
	if decision.Decision != domain.DecisionApprove && decision.Decision != domain.DecisionReject {
		return nil, domain.NewEngineError(domain.ErrDecisionInvalid.Code,
			fmt.Sprintf("decision must be approve or reject, got %q", decision.Decision))
	}

	state, err := e.cases.GetByID(ctx, e.db, caseID)
	if err != nil {
		return nil, err
	}
	if state.Status != domain.StatusWaitingHuman {
		if state.Status == domain.StatusCompleted || state.Status == domain.StatusRejected {
			return nil, domain.ErrAlreadyResumed
		}
		return nil, domain.ErrNotAwaitingHuman
	}

	row, err := e.snapshots.GetLatestUnconsumed(ctx, e.db, caseID)
	if err != nil {
		return nil, err
	}
	snap, err := decodeSnapshot(row)
	if err != nil {
		return nil, err
	}

	entry := e.newEntry(state, "", "")
	entry.GuardrailEvents = []string{"human_decision: " + string(decision.Decision)}
	if decision.Reason != "" {
		entry.GuardrailEvents = append(entry.GuardrailEvents, "reason: "+decision.Reason)
	}

	if decision.Decision == domain.DecisionReject {
		state.Status = domain.StatusRejected
		entry.Summary = "human rejected; case closed at " + string(state.Stage)
		if err := e.consumeAndPersist(ctx, state, row.ID, entry); err != nil {
			return nil, err
		}
		e.logger.Info("case rejected", "case_id", caseID, "stage", state.Stage, "by", decision.DecidedBy)
		return &RunOutcome{State: state, Halt: domain.HaltTerminal}, nil
	}

	// Approve path: edits first, then the stage advance.
	if len(decision.EditedFields) > 0 && state.LatestResult != nil {
		unknown := state.LatestResult.ApplyEdits(decision.EditedFields)
		if len(unknown) > 0 {
			entry.GuardrailEvents = append(entry.GuardrailEvents,
				"edit_skipped: unknown fields "+strings.Join(unknown, ", "))
		}
	}

	if len(snap.Policy.AllowedNextStages) == 0 {
		// Terminal stage: approval closes the case, no advance remains.
		if !state.Stage.Terminal() {
			return nil, domain.NewEngineError(domain.ErrInvalidTransition.Code,
				fmt.Sprintf("no legal stage advance from %s", state.Stage))
		}
		state.Status = domain.StatusCompleted
		e.archiveDecision(state)
		entry.Summary = "human approved; case completed at " + string(state.Stage)
		if err := e.consumeAndPersist(ctx, state, row.ID, entry); err != nil {
			return nil, err
		}
		e.logger.Info("case completed", "case_id", caseID, "by", decision.DecidedBy)
		return &RunOutcome{State: state, Halt: domain.HaltTerminal}, nil
	}

	// First-listed allowed stage wins when several are legal.
	next := snap.Policy.AllowedNextStages[0]
	if !snap.Policy.TransitionAllowed(next) || !domain.IsValidStage(next) {
		return nil, domain.NewEngineError(domain.ErrInvalidTransition.Code,
			fmt.Sprintf("transition %s -> %s not allowed by policy", state.Stage, next))
	}

	prior := state.Stage
	e.archiveDecision(state)
	state.Stage = next
	state.Status = domain.StatusInProgress
	state.LatestResult = nil
	entry.Summary = fmt.Sprintf("human approved; advanced %s -> %s", prior, next)

	if err := e.consumeAndPersist(ctx, state, row.ID, entry); err != nil {
		return nil, err
	}
	e.logger.Info("case advanced", "case_id", caseID, "from", prior, "to", next, "by", decision.DecidedBy)

	// Re-enter the loop so the new stage's work starts immediately.
	return e.loop(ctx, state)
}

// archiveDecision folds the approved result into the case summary. This is
// the only place worker output mutates the summary.
func (e *Engine) archiveDecision(state *domain.CaseState) {
	result := state.LatestResult
	if result == nil {
		return
	}
	if value := result.DecisionValue(); value != "" {
		state.Summary.RecommendedAction = value
	}
	finding := fmt.Sprintf("%s: %s approved at %s", result.Kind, result.DecisionValue(), state.Stage)
	state.Summary.KeyFindings = append(state.Summary.KeyFindings, finding)
	if result.Kind == domain.KindShortlist && result.Shortlist != nil && result.Shortlist.TopChoiceID != "" {
		state.Summary.SupplierID = result.Shortlist.TopChoiceID
	}
	if result.Kind == domain.KindNegotiation && result.Negotiation != nil && result.Negotiation.SupplierID != "" {
		state.Summary.SupplierID = result.Negotiation.SupplierID
	}
}

// consumeAndPersist marks the snapshot consumed and writes the new state and
// audit entry atomically, so a duplicate resume can never half-apply.
func (e *Engine) consumeAndPersist(ctx context.Context, state *domain.CaseState, snapshotID int64, entry domain.ActivityEntry) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "begin resume", err)
	}
	defer tx.Rollback()

	if err := e.snapshots.MarkConsumedTx(ctx, tx, snapshotID); err != nil {
		return err
	}
	if err := e.activity.AppendTx(ctx, tx, entry); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "append resume activity", err)
	}
	state.LastActionSeq = entry.SeqNo
	state.UpdatedAtUnix = e.nowFn()
	if err := e.cases.UpdateStateTx(ctx, tx, *state); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "commit resume", err)
	}
	state.StateVersion++
	return nil
}
