// Package validate inspects worker results after each call: policy
// compliance and contradiction detection. Findings are advisory; they are
// logged as guardrail events and never hard-fail a step.
package validate

import (
	"fmt"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// Severity grades a finding.
type Severity string

const (
	SeverityLow  Severity = "low"
	SeverityHigh Severity = "high"
)

// Finding is one advisory validation outcome.
type Finding struct {
	Kind     string
	Severity Severity
	Message  string
}

// Event renders the finding as an activity-log guardrail entry.
func (f Finding) Event() string {
	return fmt.Sprintf("%s[%s]: %s", f.Kind, f.Severity, f.Message)
}

// HistoryWindow bounds how many prior results the contradiction check
// compares against.
const HistoryWindow = 5

// Validator accumulates a rolling result history per run.
type Validator struct {
	history []*domain.Result
}

// New creates a validator with an empty history.
func New() *Validator {
	return &Validator{}
}

// Check runs policy compliance and contradiction detection against the new
// result, then appends it to the rolling history. Fallback results are not
// validated or recorded; they carry no decision.
func (v *Validator) Check(result *domain.Result, policy domain.PolicyContext, summary domain.CaseSummary) []Finding {
	if result == nil || result.Fallback {
		return nil
	}

	var findings []Finding
	findings = append(findings, checkPolicy(result, policy)...)
	findings = append(findings, v.checkContradictions(result, summary)...)

	v.history = append(v.history, result)
	if len(v.history) > HistoryWindow {
		v.history = v.history[len(v.history)-HistoryWindow:]
	}
	return findings
}

// checkPolicy flags decision values outside the stage whitelist.
func checkPolicy(result *domain.Result, policy domain.PolicyContext) []Finding {
	value := result.DecisionValue()
	if value == "" || policy.DecisionAllowed(value) {
		return nil
	}
	return []Finding{{
		Kind:     "policy_violation",
		Severity: SeverityHigh,
		Message: fmt.Sprintf("decision %q is outside the allowed set %v for stage %s",
			value, policy.AllowedDecisionValues, policy.Stage),
	}}
}

func (v *Validator) checkContradictions(result *domain.Result, summary domain.CaseSummary) []Finding {
	var findings []Finding

	switch result.Kind {
	case domain.KindStrategy:
		findings = append(findings, v.checkStrategyReversal(result.Strategy, summary)...)
	case domain.KindNegotiation:
		findings = append(findings, v.checkNegotiationSupplier(result.Negotiation)...)
	case domain.KindShortlist:
		findings = append(findings, v.checkShortlistAgainstStance(result.Shortlist)...)
	}
	return findings
}

// opposing strategy pairs flagged as direct reversals.
var opposites = map[string]string{
	domain.StrategyRenew:     domain.StrategyTerminate,
	domain.StrategyTerminate: domain.StrategyRenew,
}

func (v *Validator) checkStrategyReversal(rec *domain.StrategyRecommendation, summary domain.CaseSummary) []Finding {
	if rec == nil {
		return nil
	}
	var findings []Finding

	flag := func(prior, source string) {
		if opposites[prior] == rec.Strategy {
			findings = append(findings, Finding{
				Kind:     "contradiction",
				Severity: SeverityHigh,
				Message: fmt.Sprintf("strategy reversed from %s to %s (%s) without justification",
					prior, rec.Strategy, source),
			})
		}
	}

	if summary.RecommendedAction != "" {
		flag(summary.RecommendedAction, "case stance")
	}
	for _, prior := range v.history {
		if prior.Kind == domain.KindStrategy && prior.Strategy != nil {
			flag(prior.Strategy.Strategy, "recent history")
		}
	}
	return findings
}

func (v *Validator) checkNegotiationSupplier(plan *domain.NegotiationPlan) []Finding {
	if plan == nil || plan.SupplierID == "" {
		return nil
	}
	shortlist := v.latestShortlist()
	if shortlist == nil || len(shortlist.Suppliers) == 0 {
		return nil
	}

	onList := false
	for _, s := range shortlist.Suppliers {
		if s.SupplierID == plan.SupplierID {
			onList = true
			break
		}
	}
	if !onList {
		return []Finding{{
			Kind:     "contradiction",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("negotiation targets %s, which is not on the current shortlist", plan.SupplierID),
		}}
	}
	if shortlist.TopChoiceID != "" && plan.SupplierID != shortlist.TopChoiceID {
		return []Finding{{
			Kind:     "contradiction",
			Severity: SeverityLow,
			Message: fmt.Sprintf("negotiation targets %s rather than shortlist top choice %s",
				plan.SupplierID, shortlist.TopChoiceID),
		}}
	}
	return nil
}

// A terminate stance with a non-empty shortlist means two workers are
// pulling the case in opposite directions.
func (v *Validator) checkShortlistAgainstStance(shortlist *domain.SupplierShortlist) []Finding {
	if shortlist == nil || len(shortlist.Suppliers) == 0 {
		return nil
	}
	for _, prior := range v.history {
		if prior.Kind == domain.KindStrategy && prior.Strategy != nil &&
			prior.Strategy.Strategy == domain.StrategyTerminate {
			return []Finding{{
				Kind:     "contradiction",
				Severity: SeverityHigh,
				Message:  "shortlist produced while the case stance is Terminate",
			}}
		}
	}
	return nil
}

func (v *Validator) latestShortlist() *domain.SupplierShortlist {
	for i := len(v.history) - 1; i >= 0; i-- {
		if v.history[i].Kind == domain.KindShortlist && v.history[i].Shortlist != nil {
			return v.history[i].Shortlist
		}
	}
	return nil
}
