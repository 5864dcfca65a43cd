package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasprocure/caseflow/internal/domain"
)

func TestRegistryLookup(t *testing.T) {
	r := NewDefaultRegistry()

	w, err := r.Get(NameStrategy)
	require.NoError(t, err)
	assert.Equal(t, NameStrategy, w.Name())

	_, err = r.Get("nonexistent")
	assert.ErrorIs(t, err, domain.ErrWorkerNotFound)

	assert.Len(t, r.Names(), 8)
	assert.True(t, r.Has(NameClarifier))
}

func strategyInput(contract, performance map[string]any) Input {
	return Input{
		CaseID: "case-1",
		Stage:  domain.StageStrategy,
		Intent: "review renewal",
		Summary: domain.CaseSummary{
			CaseID:     "case-1",
			CategoryID: "CAT-IT-SW",
			ContractID: "CTR-1001",
		},
		Data: map[string]any{
			DataContract:    contract,
			DataPerformance: performance,
		},
	}
}

func TestStrategyRules(t *testing.T) {
	w := &StrategyWorker{}
	ctx := context.Background()

	tests := []struct {
		name        string
		contract    map[string]any
		performance map[string]any
		want        string
	}{
		{
			name:        "near expiry declining performance goes to market",
			contract:    map[string]any{"expiry_days": 45.0},
			performance: map[string]any{"trend": "declining", "overall_score": 5.0},
			want:        domain.StrategyRFx,
		},
		{
			name:        "near expiry acceptable performance renegotiates",
			contract:    map[string]any{"expiry_days": 45.0},
			performance: map[string]any{"trend": "stable", "overall_score": 7.0},
			want:        domain.StrategyRenegotiate,
		},
		{
			name:        "near expiry no performance data defaults to market",
			contract:    map[string]any{"expiry_days": 30.0},
			performance: nil,
			want:        domain.StrategyRFx,
		},
		{
			name:        "long runway strong performance renews",
			contract:    map[string]any{"expiry_days": 300.0},
			performance: map[string]any{"trend": "stable", "overall_score": 8.0},
			want:        domain.StrategyRenew,
		},
		{
			name:     "high value with incidents goes to market",
			contract: map[string]any{"expiry_days": 300.0, "annual_value_usd": 2_000_000.0},
			performance: map[string]any{
				"trend": "stable", "overall_score": 5.5,
				"incidents": []any{"i1", "i2", "i3"},
			},
			want: domain.StrategyRFx,
		},
		{
			name:        "mid term declining renegotiates",
			contract:    map[string]any{"expiry_days": 120.0},
			performance: map[string]any{"trend": "declining", "overall_score": 6.5},
			want:        domain.StrategyRenegotiate,
		},
		{
			name:        "no rule matched monitors",
			contract:    map[string]any{"expiry_days": 120.0},
			performance: map[string]any{"trend": "stable", "overall_score": 6.0},
			want:        domain.StrategyMonitor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := w.Invoke(ctx, strategyInput(tt.contract, tt.performance))
			require.NoError(t, err)
			require.NoError(t, inv.Result.Validate())
			assert.Equal(t, tt.want, inv.Result.Strategy.Strategy)
		})
	}
}

func TestStrategyRespectsPolicyWhitelist(t *testing.T) {
	w := &StrategyWorker{}
	in := strategyInput(
		map[string]any{"expiry_days": 45.0},
		map[string]any{"trend": "declining", "overall_score": 4.0},
	)
	// Renewal policy without RFx permission.
	in.Policy = domain.PolicyContext{
		Stage:                 domain.StageStrategy,
		AllowedDecisionValues: []string{domain.StrategyRenew, domain.StrategyRenegotiate, domain.StrategyTerminate},
	}

	inv, err := w.Invoke(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyRenegotiate, inv.Result.Strategy.Strategy)
	assert.NotEmpty(t, inv.Result.Strategy.ConstraintAcks)
}

func TestStrategyDeterministic(t *testing.T) {
	w := &StrategyWorker{}
	in := strategyInput(
		map[string]any{"expiry_days": 45.0},
		map[string]any{"trend": "stable", "overall_score": 7.0},
	)

	first, err := w.Invoke(context.Background(), in)
	require.NoError(t, err)
	second, err := w.Invoke(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first.Result.Strategy, second.Result.Strategy)
}

func TestSupplierScoringFiltersAndRanks(t *testing.T) {
	w := &SupplierScoringWorker{}
	in := Input{
		CaseID: "case-1",
		Stage:  domain.StageSourcing,
		Data: map[string]any{
			DataSuppliers: []any{
				map[string]any{"supplier_id": "SUP-1", "performance_score": 9.0, "capabilities": []any{"iso27001", "24x7"}},
				map[string]any{"supplier_id": "SUP-2", "performance_score": 7.0, "capabilities": []any{"iso27001", "24x7"}},
				map[string]any{"supplier_id": "SUP-3", "performance_score": 4.0, "capabilities": []any{"iso27001", "24x7"}},
				map[string]any{"supplier_id": "SUP-4", "performance_score": 8.0, "capabilities": []any{"24x7"}},
			},
			DataRequirements: map[string]any{"must_have": []any{"iso27001"}},
		},
	}

	inv, err := w.Invoke(context.Background(), in)
	require.NoError(t, err)
	require.NoError(t, inv.Result.Validate())

	shortlist := inv.Result.Shortlist
	require.Len(t, shortlist.Suppliers, 2)
	assert.Equal(t, "SUP-1", shortlist.TopChoiceID)
	assert.Equal(t, "SUP-1", shortlist.Suppliers[0].SupplierID)
	assert.Greater(t, shortlist.Confidence, 0.5)
}

func TestSupplierScoringEmptyPool(t *testing.T) {
	w := &SupplierScoringWorker{}
	inv, err := w.Invoke(context.Background(), Input{CaseID: "case-1", Stage: domain.StageSourcing})
	require.NoError(t, err)
	assert.Empty(t, inv.Result.Shortlist.Suppliers)
	assert.Empty(t, inv.Result.Shortlist.TopChoiceID)
	assert.Less(t, inv.Result.Shortlist.Confidence, 0.6)
}

func TestNegotiationUsesShortlistTopChoice(t *testing.T) {
	w := &NegotiationWorker{}
	in := Input{
		CaseID:  "case-1",
		Stage:   domain.StageNegotiation,
		Summary: domain.CaseSummary{SupplierID: "SUP-OLD"},
		Prior: &domain.Result{
			Kind:   domain.KindShortlist,
			Worker: NameSupplierScoring,
			Shortlist: &domain.SupplierShortlist{
				TopChoiceID: "SUP-1",
				Confidence:  0.9,
				Impact:      domain.ImpactMedium,
			},
		},
	}

	inv, err := w.Invoke(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "SUP-1", inv.Result.Negotiation.SupplierID)
	assert.Equal(t, domain.ImpactHigh, inv.Result.Impact())
}

func TestSignalSeverityTriage(t *testing.T) {
	w := &SignalWorker{}

	for severity, wantUrgency := range map[string]int{"critical": 9, "high": 7, "medium": 5, "low": 2} {
		in := Input{
			CaseID: "case-1",
			Data: map[string]any{
				DataSignal: map[string]any{"signal_id": "SIG-1", "type": "price_spike", "severity": severity},
			},
		}
		inv, err := w.Invoke(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, wantUrgency, inv.Result.Signal.UrgencyScore, "severity %s", severity)
	}
}

func TestClarifierAsksAboutMissingData(t *testing.T) {
	w := &ClarifierWorker{}
	inv, err := w.Invoke(context.Background(), Input{
		CaseID:  "case-1",
		Summary: domain.CaseSummary{CaseID: "case-1"},
	})
	require.NoError(t, err)
	questions := inv.Result.Clarification.Questions
	assert.Len(t, questions, 2)
}

func TestFallbacksAreMarked(t *testing.T) {
	cause := errors.New("upstream timeout")
	r := NewDefaultRegistry()
	for _, name := range r.Names() {
		w, err := r.Get(name)
		require.NoError(t, err)
		fb := w.Fallback(Input{Summary: domain.CaseSummary{SupplierID: "SUP-1"}}, cause)
		assert.True(t, fb.Fallback, "worker %s", name)
		assert.Equal(t, "upstream timeout", fb.FailureReason, "worker %s", name)
		require.NoError(t, fb.Validate(), "worker %s", name)
	}
}
