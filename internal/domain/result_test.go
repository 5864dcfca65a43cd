package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strategyResult(strategy string, confidence float64) *Result {
	return &Result{
		Kind:   KindStrategy,
		Worker: "strategy",
		Strategy: &StrategyRecommendation{
			Strategy:   strategy,
			Confidence: confidence,
			Impact:     ImpactMedium,
		},
	}
}

func TestResultValidate_ExactlyOneVariant(t *testing.T) {
	r := strategyResult(StrategyRenew, 0.8)
	require.NoError(t, r.Validate())

	r.Shortlist = &SupplierShortlist{}
	err := r.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResultInvalid)

	empty := &Result{Kind: KindStrategy, Worker: "strategy"}
	assert.ErrorIs(t, empty.Validate(), ErrResultInvalid)
}

func TestResultValidate_KindMustMatchVariant(t *testing.T) {
	r := &Result{
		Kind:   KindShortlist,
		Worker: "strategy",
		Strategy: &StrategyRecommendation{
			Strategy: StrategyRenew,
		},
	}
	assert.ErrorIs(t, r.Validate(), ErrResultInvalid)
}

func TestResultConfidence(t *testing.T) {
	conf, ok := strategyResult(StrategyRFx, 0.55).Confidence()
	require.True(t, ok)
	assert.Equal(t, 0.55, conf)

	clarification := &Result{
		Kind:          KindClarification,
		Worker:        "clarifier",
		Clarification: &ClarificationRequest{Reason: "missing category"},
	}
	_, ok = clarification.Confidence()
	assert.False(t, ok)
}

func TestResultDecisionValue(t *testing.T) {
	assert.Equal(t, StrategyRenegotiate, strategyResult(StrategyRenegotiate, 0.7).DecisionValue())

	shortlist := &Result{
		Kind:   KindShortlist,
		Worker: "supplier_scoring",
		Shortlist: &SupplierShortlist{
			TopChoiceID: "SUP-9",
		},
	}
	assert.Equal(t, "SUP-9", shortlist.DecisionValue())

	rfx := &Result{Kind: KindRFxDraft, Worker: "rfx_drafter", RFx: &RFxDraft{}}
	assert.Empty(t, rfx.DecisionValue())
}

func TestResultImpact_Defaults(t *testing.T) {
	contract := &Result{Kind: KindContract, Worker: "contract_support", Contract: &ContractExtraction{}}
	assert.Equal(t, ImpactMedium, contract.Impact())

	clarification := &Result{
		Kind:          KindClarification,
		Worker:        "clarifier",
		Clarification: &ClarificationRequest{},
	}
	assert.Equal(t, ImpactLow, clarification.Impact())
}

func TestApplyEdits(t *testing.T) {
	r := strategyResult(StrategyRenew, 0.8)

	unknown := r.ApplyEdits(map[string]any{
		"recommended_strategy": StrategyRenegotiate,
		"rationale":            []any{"pricing leverage", "stable incumbent"},
		"not_a_field":          true,
	})

	assert.Equal(t, []string{"not_a_field"}, unknown)
	assert.Equal(t, StrategyRenegotiate, r.Strategy.Strategy)
	assert.Equal(t, []string{"pricing leverage", "stable incumbent"}, r.Strategy.Rationale)
}

func TestApplyEdits_WrongValueTypeSkipped(t *testing.T) {
	r := strategyResult(StrategyRenew, 0.8)
	unknown := r.ApplyEdits(map[string]any{"recommended_strategy": 42})
	assert.Equal(t, []string{"recommended_strategy"}, unknown)
	assert.Equal(t, StrategyRenew, r.Strategy.Strategy)
}

func TestEncodeDecodeResult(t *testing.T) {
	r := strategyResult(StrategyTerminate, 0.9)
	r.Fallback = true
	r.FailureReason = "provider timeout"

	encoded, err := EncodeResult(r)
	require.NoError(t, err)

	decoded, err := DecodeResult(encoded)
	require.NoError(t, err)
	assert.Equal(t, r.Kind, decoded.Kind)
	assert.True(t, decoded.Fallback)
	assert.Equal(t, StrategyTerminate, decoded.Strategy.Strategy)

	_, err = DecodeResult(`{"kind":"strategy_recommendation","worker":"strategy"}`)
	assert.ErrorIs(t, err, ErrResultInvalid)
}
