// Package budget enforces the per-case lifetime resource ceiling.
package budget

import (
	"fmt"
	"log/slog"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// DefaultCeilingUnits is the lifetime unit ceiling applied when the
// configuration does not override it.
const DefaultCeilingUnits = 3000

// Rate holds per-1000-unit USD prices for one cost tier.
type Rate struct {
	InPer1K  float64
	OutPer1K float64
}

// rates maps each tier to its price row. Tier 1 is the cheap/fast row,
// tier 2 the expensive/accurate one.
var rates = map[domain.CostTier]Rate{
	domain.TierFast:     {InPer1K: 0.15, OutPer1K: 0.60},
	domain.TierAccurate: {InPer1K: 5.00, OutPer1K: 15.00},
}

// Cost computes the USD cost of a call at the given tier.
func Cost(tier domain.CostTier, unitsIn, unitsOut int64) float64 {
	r, ok := rates[tier]
	if !ok {
		r = rates[domain.TierFast]
	}
	return float64(unitsIn)/1000.0*r.InPer1K + float64(unitsOut)/1000.0*r.OutPer1K
}

// Tracker accumulates usage against a fixed lifetime ceiling. It is bound
// to a single case and is not safe for concurrent use; the orchestrator
// serializes all access per case.
type Tracker struct {
	ceiling int64
	state   domain.BudgetState
	logger  *slog.Logger
}

// NewTracker creates a tracker seeded with previously persisted usage.
// A non-positive ceiling falls back to the default.
func NewTracker(ceiling int64, prior domain.BudgetState, logger *slog.Logger) *Tracker {
	if ceiling <= 0 {
		ceiling = DefaultCeilingUnits
	}
	return &Tracker{ceiling: ceiling, state: prior, logger: logger}
}

// State returns the current accumulated usage.
func (t *Tracker) State() domain.BudgetState {
	return t.state
}

// Ceiling returns the lifetime unit ceiling.
func (t *Tracker) Ceiling() int64 {
	return t.ceiling
}

// Exhausted reports whether accumulated usage has reached the ceiling.
func (t *Tracker) Exhausted() bool {
	return t.state.UnitsUsed >= t.ceiling
}

// WouldExceed reports whether charging the projected units would push usage
// past the ceiling. Checked before every worker invocation so the call is
// intercepted rather than billed and then rejected.
func (t *Tracker) WouldExceed(projectedUnits int64) bool {
	return t.state.UnitsUsed+projectedUnits > t.ceiling
}

// CheckProjected returns ErrBudgetExceeded when the projected call does not
// fit in the remaining budget.
func (t *Tracker) CheckProjected(caseID, worker string, projectedUnits int64) error {
	if !t.WouldExceed(projectedUnits) {
		return nil
	}
	t.logger.Warn("projected call exceeds budget ceiling",
		"case_id", caseID,
		"worker", worker,
		"units_used", t.state.UnitsUsed,
		"projected_units", projectedUnits,
		"ceiling", t.ceiling)
	return domain.NewEngineError(domain.ErrBudgetExceeded.Code,
		fmt.Sprintf("projected %d units would exceed ceiling %d (used %d)",
			projectedUnits, t.ceiling, t.state.UnitsUsed))
}

// Charge records actual consumption after a worker call and returns the
// cost delta for persistence. Cache hits must not be charged.
func (t *Tracker) Charge(caseID, worker string, tier domain.CostTier, unitsIn, unitsOut, now int64) domain.CostDelta {
	cost := Cost(tier, unitsIn, unitsOut)
	t.state.UnitsUsed += unitsIn + unitsOut
	t.state.CostUSD += cost
	t.state.Calls++
	switch tier {
	case domain.TierAccurate:
		t.state.Tier2Calls++
	default:
		t.state.Tier1Calls++
	}
	return domain.CostDelta{
		CaseID:    caseID,
		Worker:    worker,
		Tier:      tier,
		UnitsIn:   unitsIn,
		UnitsOut:  unitsOut,
		AmountUSD: cost,
		CreatedAt: now,
	}
}
