package budget

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasprocure/caseflow/internal/domain"
)

func TestCostRates(t *testing.T) {
	// Tier 1: 1000 in, 1000 out.
	assert.InDelta(t, 0.75, Cost(domain.TierFast, 1000, 1000), 1e-9)
	// Tier 2: 1000 in, 1000 out.
	assert.InDelta(t, 20.00, Cost(domain.TierAccurate, 1000, 1000), 1e-9)
	// Fractional units.
	assert.InDelta(t, 0.0135, Cost(domain.TierFast, 10, 20), 1e-9)
}

func TestChargeAccumulates(t *testing.T) {
	tr := NewTracker(3000, domain.BudgetState{}, slog.Default())

	d1 := tr.Charge("case-1", "strategy", domain.TierFast, 100, 200, 1)
	assert.Equal(t, int64(100), d1.UnitsIn)
	assert.InDelta(t, Cost(domain.TierFast, 100, 200), d1.AmountUSD, 1e-9)

	tr.Charge("case-1", "negotiation_support", domain.TierAccurate, 50, 50, 2)

	s := tr.State()
	assert.Equal(t, int64(400), s.UnitsUsed)
	assert.Equal(t, int64(2), s.Calls)
	assert.Equal(t, int64(1), s.Tier1Calls)
	assert.Equal(t, int64(1), s.Tier2Calls)
}

func TestProjectionInterceptsSecondCall(t *testing.T) {
	// Ceiling 100, two projected 60-unit calls: first fits, second is
	// intercepted before invocation.
	tr := NewTracker(100, domain.BudgetState{}, slog.Default())

	require.NoError(t, tr.CheckProjected("case-1", "strategy", 60))
	tr.Charge("case-1", "strategy", domain.TierFast, 30, 30, 1)

	err := tr.CheckProjected("case-1", "strategy", 60)
	assert.ErrorIs(t, err, domain.ErrBudgetExceeded)
	assert.Equal(t, int64(60), tr.State().UnitsUsed)
}

func TestExhausted(t *testing.T) {
	tr := NewTracker(100, domain.BudgetState{UnitsUsed: 100}, slog.Default())
	assert.True(t, tr.Exhausted())
	assert.True(t, tr.WouldExceed(1))
	assert.False(t, tr.WouldExceed(0))
}

func TestNewTrackerDefaultCeiling(t *testing.T) {
	tr := NewTracker(0, domain.BudgetState{}, slog.Default())
	assert.Equal(t, int64(DefaultCeilingUnits), tr.Ceiling())
}

func TestSeededFromPriorState(t *testing.T) {
	prior := domain.BudgetState{UnitsUsed: 2950, CostUSD: 1.0, Calls: 10}
	tr := NewTracker(3000, prior, slog.Default())
	assert.False(t, tr.Exhausted())
	assert.True(t, tr.WouldExceed(60))
}
