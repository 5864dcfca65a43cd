package cache

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasprocure/caseflow/internal/domain"
	"github.com/atlasprocure/caseflow/internal/store"
)

func TestNormalizeIntent(t *testing.T) {
	assert.Equal(t, "review renewal", NormalizeIntent("  Review Renewal "))
	assert.Equal(t, NormalizeIntent("REVIEW RENEWAL"), NormalizeIntent("review renewal"))
}

func TestHashInputIgnoresKeyOrder(t *testing.T) {
	a, err := HashInput(map[string]any{"b": 2, "a": 1, "nested": map[string]any{"y": true, "x": false}})
	require.NoError(t, err)
	b, err := HashInput(map[string]any{"nested": map[string]any{"x": false, "y": true}, "a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := HashInput(map[string]any{"a": 1, "b": 3})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestKeyIncludesStage(t *testing.T) {
	k1 := Key("case-1", "strategy", "Intent", "hash", domain.StageStrategy)
	k2 := Key("case-1", "strategy", "intent", "hash", domain.StagePlanning)
	assert.NotEqual(t, k1, k2)
	assert.Contains(t, k1, "|DTP-01")
	assert.Contains(t, k1, "|intent|")
}

func newTestCache(t *testing.T) *ResultCache {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, slog.Default())
}

func strategyResult(fallback bool) *domain.Result {
	return &domain.Result{
		Kind:     domain.KindStrategy,
		Worker:   "strategy",
		Fallback: fallback,
		Strategy: &domain.StrategyRecommendation{
			Strategy:   domain.StrategyRenew,
			Confidence: 0.9,
			Impact:     domain.ImpactMedium,
		},
	}
}

func TestProbeMissThenHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	input := map[string]any{"contract_id": "CTR-1001"}

	lookup, err := c.Probe(ctx, "case-1", "strategy", "review renewal", domain.StageStrategy, input)
	require.NoError(t, err)
	assert.False(t, lookup.Hit)

	require.NoError(t, c.Store(ctx, lookup.Key, lookup.Hash, "case-1", "strategy", strategyResult(false), "{}", "{}"))

	again, err := c.Probe(ctx, "case-1", "strategy", "Review Renewal ", domain.StageStrategy, input)
	require.NoError(t, err)
	assert.True(t, again.Hit)
	assert.Equal(t, lookup.Key, again.Key)
	require.NotNil(t, again.Result)
	assert.Equal(t, domain.StrategyRenew, again.Result.Strategy.Strategy)
}

func TestProbeNeverServesFallback(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	input := map[string]any{"contract_id": "CTR-1001"}

	lookup, err := c.Probe(ctx, "case-1", "strategy", "review", domain.StageStrategy, input)
	require.NoError(t, err)
	require.NoError(t, c.Store(ctx, lookup.Key, lookup.Hash, "case-1", "strategy", strategyResult(true), "{}", "{}"))

	again, err := c.Probe(ctx, "case-1", "strategy", "review", domain.StageStrategy, input)
	require.NoError(t, err)
	assert.False(t, again.Hit)
	assert.True(t, again.Fallback)
	assert.Nil(t, again.Result)

	// A later real result overwrites the fallback and is then served.
	require.NoError(t, c.Store(ctx, lookup.Key, lookup.Hash, "case-1", "strategy", strategyResult(false), "{}", "{}"))
	final, err := c.Probe(ctx, "case-1", "strategy", "review", domain.StageStrategy, input)
	require.NoError(t, err)
	assert.True(t, final.Hit)
}

func TestProbeStageSeparation(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	input := map[string]any{"contract_id": "CTR-1001"}

	lookup, err := c.Probe(ctx, "case-1", "strategy", "review", domain.StageStrategy, input)
	require.NoError(t, err)
	require.NoError(t, c.Store(ctx, lookup.Key, lookup.Hash, "case-1", "strategy", strategyResult(false), "{}", "{}"))

	other, err := c.Probe(ctx, "case-1", "strategy", "review", domain.StagePlanning, input)
	require.NoError(t, err)
	assert.False(t, other.Hit)
}
