package engine

import (
	"context"
	"fmt"

	"github.com/atlasprocure/caseflow/internal/budget"
	"github.com/atlasprocure/caseflow/internal/cache"
	"github.com/atlasprocure/caseflow/internal/domain"
	"github.com/atlasprocure/caseflow/internal/guard"
	"github.com/atlasprocure/caseflow/internal/route"
	"github.com/atlasprocure/caseflow/internal/store"
	"github.com/atlasprocure/caseflow/internal/validate"
	"github.com/atlasprocure/caseflow/internal/worker"
)

// RunOutcome is the final state of one orchestrator invocation plus the
// typed reason it stopped.
type RunOutcome struct {
	State      *domain.CaseState
	Halt       domain.HaltReason
	GateReason string
}

// Run drives the case from its current state to the next stopping point:
// human gate, terminal completion, no further action, cycle detected, or
// the iteration-ceiling error. Only the iteration ceiling is surfaced as
// an error; every other halt is a valid outcome.
func (e *Engine) Run(ctx context.Context, caseID string) (*RunOutcome, error) {
	state, err := e.cases.GetByID(ctx, e.db, caseID)
	if err != nil {
		return nil, err
	}
	switch state.Status {
	case domain.StatusCompleted:
		return nil, domain.ErrCaseAlreadyDone
	case domain.StatusRejected:
		return nil, domain.ErrCaseRejected
	case domain.StatusWaitingHuman:
		return nil, domain.ErrAwaitingHuman
	}
	state.Status = domain.StatusInProgress

	return e.loop(ctx, state)
}

// loop is the shared run body, also re-entered by an approved resume. The
// guard, validator, and tracker are scoped to this single invocation; the
// budget state inside the tracker is the case's lifetime total.
func (e *Engine) loop(ctx context.Context, state *domain.CaseState) (*RunOutcome, error) {
	tracker := budget.NewTracker(e.opts.BudgetCeilingUnits, state.Budget, e.logger)
	keyFn := guard.CoarseKey
	if e.opts.FineCycleKey {
		keyFn = guard.FineKey
	}
	g := guard.New(e.opts.IterationCeiling, e.opts.VisitedWindow, keyFn)
	v := validate.New()

	for {
		if err := g.Step(); err != nil {
			e.logger.Error("iteration ceiling exceeded", "case_id", state.CaseID, "iterations", g.Iterations())
			outcome := &RunOutcome{State: state, Halt: domain.HaltMaxIterations}
			entry := e.newEntry(state, "", "iteration ceiling exceeded")
			entry.GuardrailEvents = []string{"max_iterations: run terminated"}
			if persistErr := e.persistStep(ctx, state, entry, nil, nil); persistErr != nil {
				return outcome, persistErr
			}
			return outcome, domain.ErrMaxIterations
		}

		pctx, err := e.policies.ForStage(state.Stage, state.Summary.CategoryID, isRenewal(state.Intent))
		if err != nil {
			return nil, err
		}

		decision := e.router.Decide(ctx, state.Stage, state.LatestResult, pctx, state.Intent)
		if decision.Action == route.ActionNone {
			// No worker left to run. If the case holds a real result and can
			// legally advance, the advance itself is a human decision.
			if state.LatestResult != nil && !state.LatestResult.Fallback &&
				state.LatestResult.Kind != domain.KindClarification && len(pctx.AllowedNextStages) > 0 {
				state.Status = domain.StatusWaitingHuman
				row, err := e.buildSnapshot(state, pctx, "", "")
				if err != nil {
					return nil, err
				}
				entry := e.newEntry(state, "", "awaiting approval to advance from "+string(state.Stage))
				entry.GuardrailEvents = []string{"human_gate: stage advance requires approval"}
				if err := e.persistStep(ctx, state, entry, nil, row); err != nil {
					return nil, err
				}
				e.logger.Info("suspended at human gate for stage advance",
					"case_id", state.CaseID, "stage", state.Stage)
				return &RunOutcome{State: state, Halt: domain.HaltHumanGate,
					GateReason: "stage advance requires approval"}, nil
			}

			e.logger.Info("no further action", "case_id", state.CaseID, "stage", state.Stage)
			entry := e.newEntry(state, "", "no further action at "+string(state.Stage))
			if err := e.persistStep(ctx, state, entry, nil, nil); err != nil {
				return nil, err
			}
			return &RunOutcome{State: state, Halt: domain.HaltNoFurtherAction}, nil
		}

		w, err := e.registry.Get(decision.Worker)
		if err != nil {
			return nil, err
		}

		// Routing away from a result the run has already seen means the loop
		// is ping-ponging. Fallback results are exempt so failures retry.
		if latest := state.LatestResult; latest != nil {
			if g.Blocked(latest.Worker, latest) {
				e.logger.Info("cycle detected", "case_id", state.CaseID,
					"worker", latest.Worker, "result_kind", latest.Kind)
				entry := e.newEntry(state, latest.Worker, "cycle detected, run terminated")
				entry.GuardrailEvents = []string{fmt.Sprintf("cycle_detected: %s already produced %s",
					latest.Worker, latest.Kind)}
				if err := e.persistStep(ctx, state, entry, nil, nil); err != nil {
					return nil, err
				}
				return &RunOutcome{State: state, Halt: domain.HaltCycleDetected}, nil
			}
			g.Record(latest.Worker, latest)
		}

		step, err := e.invokeStep(ctx, state, w, pctx, tracker, v, decision.Rule)
		if err != nil {
			return nil, err
		}
		state.LatestResult = step.result
		state.Budget = tracker.State()

		gateReason, needsHuman := requiresHuman(step.result, state.Stage, pctx)
		var snapshot *store.SnapshotRow
		if needsHuman {
			state.Status = domain.StatusWaitingHuman
			row, err := e.buildSnapshot(state, pctx, step.cacheKey, step.inputHash)
			if err != nil {
				return nil, err
			}
			snapshot = row
			step.entry.GuardrailEvents = append(step.entry.GuardrailEvents, "human_gate: "+gateReason)
		}

		if err := e.persistStep(ctx, state, step.entry, step.delta, snapshot); err != nil {
			return nil, err
		}

		if needsHuman {
			e.logger.Info("suspended at human gate", "case_id", state.CaseID,
				"stage", state.Stage, "reason", gateReason)
			return &RunOutcome{State: state, Halt: domain.HaltHumanGate, GateReason: gateReason}, nil
		}
	}
}

// stepResult bundles everything one worker step produced.
type stepResult struct {
	result    *domain.Result
	entry     domain.ActivityEntry
	delta     *domain.CostDelta
	cacheKey  string
	inputHash string
}

// invokeStep runs one worker call with the cache and budget wrapped around
// it. Worker failures and budget exhaustion degrade to the worker's
// fallback result; neither aborts the run.
func (e *Engine) invokeStep(ctx context.Context, state *domain.CaseState, w worker.Capability, pctx domain.PolicyContext, tracker *budget.Tracker, v *validate.Validator, rule string) (*stepResult, error) {
	in := worker.Input{
		CaseID:  state.CaseID,
		Stage:   state.Stage,
		Intent:  state.Intent,
		Summary: state.Summary,
		Policy:  pctx,
		Data:    e.fetchData(ctx, state.Summary),
		Prior:   state.LatestResult,
	}
	inputJSON := mustJSON(in)

	lookup, err := e.cache.Probe(ctx, state.CaseID, w.Name(), state.Intent, state.Stage, in)
	if err != nil {
		// A cache infrastructure failure downgrades to a miss.
		e.logger.Warn("cache probe failed", "case_id", state.CaseID, "worker", w.Name(), "error", err)
		lookup = cache.Lookup{}
	}

	step := &stepResult{cacheKey: lookup.Key, inputHash: lookup.Hash}
	entry := e.newEntry(state, w.Name(), "routed via "+rule)
	entry.InputSnapshot = inputJSON
	entry.CacheKey = lookup.Key
	entry.InputHash = lookup.Hash

	var budgetErr error
	if !lookup.Hit {
		budgetErr = tracker.CheckProjected(state.CaseID, w.Name(), w.EstimateUnits(in))
	}

	switch {
	case lookup.Hit:
		step.result = lookup.Result
		entry.CacheHit = true
		entry.Summary = fmt.Sprintf("%s served from cache", w.Name())

	case budgetErr != nil:
		step.result = w.Fallback(in, budgetErr)
		entry.GuardrailEvents = append(entry.GuardrailEvents, "budget_exceeded: fallback substituted")
		entry.Summary = fmt.Sprintf("%s skipped, budget ceiling would be exceeded", w.Name())

	default:
		inv, invokeErr := w.Invoke(ctx, in)
		if invokeErr != nil {
			e.logger.Warn("worker failed, substituting fallback",
				"case_id", state.CaseID, "worker", w.Name(), "error", invokeErr)
			step.result = w.Fallback(in, invokeErr)
			entry.GuardrailEvents = append(entry.GuardrailEvents,
				"worker_failure: "+invokeErr.Error())
			entry.Summary = fmt.Sprintf("%s failed: %v", w.Name(), invokeErr)
		} else {
			step.result = inv.Result
			delta := tracker.Charge(state.CaseID, w.Name(), w.Tier(), inv.UnitsIn, inv.UnitsOut, e.nowFn())
			step.delta = &delta
			entry.UnitsIn = inv.UnitsIn
			entry.UnitsOut = inv.UnitsOut
			entry.CostUSD = delta.AmountUSD
			entry.Summary = fmt.Sprintf("%s produced %s", w.Name(), inv.Result.Kind)
		}
	}

	if err := step.result.Validate(); err != nil {
		return nil, err
	}
	entry.OutputSnapshot = mustJSON(step.result)

	// Cache the outcome on every real invocation path; hits are already stored.
	if !entry.CacheHit && lookup.Key != "" {
		if err := e.cache.Store(ctx, lookup.Key, lookup.Hash, state.CaseID, w.Name(), step.result, inputJSON, entry.OutputSnapshot); err != nil {
			e.logger.Warn("cache store failed", "case_id", state.CaseID, "worker", w.Name(), "error", err)
		}
	}

	for _, finding := range v.Check(step.result, pctx, state.Summary) {
		entry.GuardrailEvents = append(entry.GuardrailEvents, finding.Event())
	}

	step.entry = entry
	return step, nil
}

// newEntry stamps a fresh activity entry with the next sequence number.
func (e *Engine) newEntry(state *domain.CaseState, workerName, summary string) domain.ActivityEntry {
	return domain.ActivityEntry{
		CaseID:    state.CaseID,
		SeqNo:     state.LastActionSeq + 1,
		Stage:     state.Stage,
		Worker:    workerName,
		Task:      state.Intent,
		Summary:   summary,
		CreatedAt: e.nowFn(),
	}
}

// persistStep writes the activity entry, the case state, and any cost delta
// and snapshot in a single transaction, so the audit log and the state can
// never disagree.
func (e *Engine) persistStep(ctx context.Context, state *domain.CaseState, entry domain.ActivityEntry, delta *domain.CostDelta, snapshot *store.SnapshotRow) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "begin step", err)
	}
	defer tx.Rollback()

	if err := e.activity.AppendTx(ctx, tx, entry); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "append activity", err)
	}
	if delta != nil {
		if err := e.costs.CreateTx(ctx, tx, *delta); err != nil {
			return domain.WrapEngineError(domain.ErrStoreWrite.Code, "record cost delta", err)
		}
	}
	if snapshot != nil {
		if err := e.snapshots.SaveTx(ctx, tx, *snapshot); err != nil {
			return domain.WrapEngineError(domain.ErrStoreWrite.Code, "save snapshot", err)
		}
	}

	state.LastActionSeq = entry.SeqNo
	state.UpdatedAtUnix = e.nowFn()
	if err := e.cases.UpdateStateTx(ctx, tx, *state); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "commit step", err)
	}
	state.StateVersion++
	return nil
}
