package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasprocure/caseflow/internal/domain"
)

func strategy(value string) *domain.Result {
	return &domain.Result{
		Kind:   domain.KindStrategy,
		Worker: "strategy",
		Strategy: &domain.StrategyRecommendation{
			Strategy:   value,
			Confidence: 0.8,
			Impact:     domain.ImpactMedium,
		},
	}
}

func shortlist(top string, suppliers ...string) *domain.Result {
	var ranked []domain.RankedSupplier
	for _, s := range suppliers {
		ranked = append(ranked, domain.RankedSupplier{SupplierID: s, Score: 0.8})
	}
	return &domain.Result{
		Kind:   domain.KindShortlist,
		Worker: "supplier_scoring",
		Shortlist: &domain.SupplierShortlist{
			Suppliers:      ranked,
			TopChoiceID:    top,
			Recommendation: "proceed",
			Confidence:     0.8,
			Impact:         domain.ImpactMedium,
		},
	}
}

func negotiation(supplierID string) *domain.Result {
	return &domain.Result{
		Kind:   domain.KindNegotiation,
		Worker: "negotiation_support",
		Negotiation: &domain.NegotiationPlan{
			SupplierID: supplierID,
			Impact:     domain.ImpactHigh,
		},
	}
}

func TestPolicyViolationFlagged(t *testing.T) {
	v := New()
	policy := domain.PolicyContext{
		Stage:                 domain.StageStrategy,
		AllowedDecisionValues: []string{domain.StrategyRenew, domain.StrategyRenegotiate},
	}

	findings := v.Check(strategy(domain.StrategyRFx), policy, domain.CaseSummary{})
	require.Len(t, findings, 1)
	assert.Equal(t, "policy_violation", findings[0].Kind)
	assert.Equal(t, SeverityHigh, findings[0].Severity)

	// Allowed values pass clean.
	findings = v.Check(strategy(domain.StrategyRenew), policy, domain.CaseSummary{})
	assert.Empty(t, findings)
}

func TestEmptyWhitelistAllowsAll(t *testing.T) {
	v := New()
	findings := v.Check(strategy(domain.StrategyRFx), domain.PolicyContext{}, domain.CaseSummary{})
	assert.Empty(t, findings)
}

func TestStrategyReversalAgainstHistory(t *testing.T) {
	v := New()
	assert.Empty(t, v.Check(strategy(domain.StrategyRenew), domain.PolicyContext{}, domain.CaseSummary{}))

	findings := v.Check(strategy(domain.StrategyTerminate), domain.PolicyContext{}, domain.CaseSummary{})
	require.NotEmpty(t, findings)
	assert.Equal(t, "contradiction", findings[0].Kind)
	assert.Equal(t, SeverityHigh, findings[0].Severity)
}

func TestStrategyReversalAgainstCaseStance(t *testing.T) {
	v := New()
	summary := domain.CaseSummary{RecommendedAction: domain.StrategyTerminate}
	findings := v.Check(strategy(domain.StrategyRenew), domain.PolicyContext{}, summary)
	require.NotEmpty(t, findings)
	assert.Contains(t, findings[0].Message, "case stance")
}

func TestNonOpposingChangeNotFlagged(t *testing.T) {
	v := New()
	v.Check(strategy(domain.StrategyRenew), domain.PolicyContext{}, domain.CaseSummary{})
	findings := v.Check(strategy(domain.StrategyRenegotiate), domain.PolicyContext{}, domain.CaseSummary{})
	assert.Empty(t, findings)
}

func TestNegotiationSupplierNotOnShortlist(t *testing.T) {
	v := New()
	v.Check(shortlist("SUP-1", "SUP-1", "SUP-2"), domain.PolicyContext{}, domain.CaseSummary{})

	findings := v.Check(negotiation("SUP-9"), domain.PolicyContext{}, domain.CaseSummary{})
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityHigh, findings[0].Severity)
}

func TestNegotiationNotTopChoiceIsLowSeverity(t *testing.T) {
	v := New()
	v.Check(shortlist("SUP-1", "SUP-1", "SUP-2"), domain.PolicyContext{}, domain.CaseSummary{})

	findings := v.Check(negotiation("SUP-2"), domain.PolicyContext{}, domain.CaseSummary{})
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityLow, findings[0].Severity)

	// Top choice passes clean.
	assert.Empty(t, v.Check(negotiation("SUP-1"), domain.PolicyContext{}, domain.CaseSummary{}))
}

func TestShortlistDuringTerminateStance(t *testing.T) {
	v := New()
	v.Check(strategy(domain.StrategyTerminate), domain.PolicyContext{}, domain.CaseSummary{})

	findings := v.Check(shortlist("SUP-1", "SUP-1"), domain.PolicyContext{}, domain.CaseSummary{})
	require.NotEmpty(t, findings)
	assert.Equal(t, "contradiction", findings[0].Kind)
}

func TestFallbackResultsSkipped(t *testing.T) {
	v := New()
	fb := strategy(domain.StrategyTerminate)
	fb.Fallback = true
	assert.Empty(t, v.Check(fb, domain.PolicyContext{}, domain.CaseSummary{}))

	// The fallback was not recorded, so no reversal fires.
	findings := v.Check(strategy(domain.StrategyRenew), domain.PolicyContext{}, domain.CaseSummary{})
	assert.Empty(t, findings)
}

func TestHistoryWindowBounded(t *testing.T) {
	v := New()
	v.Check(strategy(domain.StrategyTerminate), domain.PolicyContext{}, domain.CaseSummary{})
	// Push the terminate result out of the window with neutral results.
	for i := 0; i < HistoryWindow; i++ {
		v.Check(strategy(domain.StrategyMonitor), domain.PolicyContext{}, domain.CaseSummary{})
	}
	findings := v.Check(strategy(domain.StrategyRenew), domain.PolicyContext{}, domain.CaseSummary{})
	assert.Empty(t, findings)
}
