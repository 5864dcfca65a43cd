package guard

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasprocure/caseflow/internal/domain"
)

func result(strategy string, fallback bool) *domain.Result {
	return &domain.Result{
		Kind:     domain.KindStrategy,
		Worker:   "strategy",
		Fallback: fallback,
		Strategy: &domain.StrategyRecommendation{
			Strategy:   strategy,
			Confidence: 0.8,
			Impact:     domain.ImpactMedium,
		},
	}
}

func TestIterationCeiling(t *testing.T) {
	g := New(3, 5, nil)
	require.NoError(t, g.Step())
	require.NoError(t, g.Step())
	require.NoError(t, g.Step())
	assert.ErrorIs(t, g.Step(), domain.ErrMaxIterations)
	assert.Equal(t, 4, g.Iterations())
}

func TestRepeatBlocked(t *testing.T) {
	g := New(20, 5, nil)
	res := result(domain.StrategyRenew, false)

	assert.False(t, g.Blocked("strategy", res))
	g.Record("strategy", res)
	assert.True(t, g.Blocked("strategy", res))

	// A different worker with the same result kind is not blocked.
	assert.False(t, g.Blocked("clarifier", res))
}

func TestFallbackNeverBlocksRetry(t *testing.T) {
	g := New(20, 5, nil)
	fb := result(domain.StrategyMonitor, true)

	g.Record("strategy", fb)
	assert.False(t, g.Blocked("strategy", fb))

	// A real result afterwards is recorded and blocks normally.
	real := result(domain.StrategyRenew, false)
	g.Record("strategy", real)
	assert.True(t, g.Blocked("strategy", real))
}

func TestVisitedWindowTrims(t *testing.T) {
	g := New(20, 2, FineKey)

	for i := 0; i < 3; i++ {
		g.Record("strategy", result(fmt.Sprintf("S%d", i), false))
	}
	// The oldest entry fell out of the window.
	assert.False(t, g.Blocked("strategy", result("S0", false)))
	assert.True(t, g.Blocked("strategy", result("S2", false)))
}

func TestCoarseVsFineKey(t *testing.T) {
	coarse := New(20, 5, CoarseKey)
	coarse.Record("strategy", result(domain.StrategyRenew, false))
	// Coarse key blocks any strategy result from the same worker.
	assert.True(t, coarse.Blocked("strategy", result(domain.StrategyRFx, false)))

	fine := New(20, 5, FineKey)
	fine.Record("strategy", result(domain.StrategyRenew, false))
	assert.False(t, fine.Blocked("strategy", result(domain.StrategyRFx, false)))
	assert.True(t, fine.Blocked("strategy", result(domain.StrategyRenew, false)))
}

func TestDefaults(t *testing.T) {
	g := New(0, 0, nil)
	for i := 0; i < DefaultIterationCeiling; i++ {
		require.NoError(t, g.Step())
	}
	assert.ErrorIs(t, g.Step(), domain.ErrMaxIterations)
}
