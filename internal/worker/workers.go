package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// Data map keys the reference workers read from Input.Data.
const (
	DataContract     = "contract"
	DataPerformance  = "performance"
	DataMarket       = "market"
	DataSuppliers    = "suppliers"
	DataRequirements = "requirements"
	DataSignal       = "signal"
)

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asFloat(m map[string]any, key string, def float64) float64 {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func asString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func asSlice(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	s, _ := m[key].([]any)
	return s
}

func asStrings(m map[string]any, key string) []string {
	var out []string
	for _, v := range asSlice(m, key) {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// StrategyWorker recommends a sourcing strategy for DTP-01 from contract
// expiry, performance trend, and contract value. Rules are code, not
// narration, so the same input always yields the same recommendation.
type StrategyWorker struct{}

func (w *StrategyWorker) Name() string          { return NameStrategy }
func (w *StrategyWorker) Tier() domain.CostTier { return domain.TierFast }

func (w *StrategyWorker) EstimateUnits(in Input) int64 { return 60 }

func (w *StrategyWorker) Invoke(ctx context.Context, in Input) (Invocation, error) {
	contract := asMap(in.Data[DataContract])
	performance := asMap(in.Data[DataPerformance])

	strategy, rationale, confidence := recommendStrategy(contract, performance)

	var acks []string
	if !in.Policy.DecisionAllowed(strategy) {
		original := strategy
		strategy = constrainStrategy(in.Policy)
		acks = append(acks, fmt.Sprintf("policy disallows %s for this case; substituted %s", original, strategy))
		rationale = append(rationale, "strategy adjusted to satisfy stage policy")
	}

	impact := domain.ImpactMedium
	if strategy == domain.StrategyTerminate || strategy == domain.StrategyRFx {
		impact = domain.ImpactHigh
	}

	result := &domain.Result{
		Kind:   domain.KindStrategy,
		Worker: w.Name(),
		Strategy: &domain.StrategyRecommendation{
			Strategy:       strategy,
			Confidence:     confidence,
			Rationale:      rationale,
			RiskAssessment: riskForStrategy(strategy),
			Timeline:       timelineForContract(contract),
			Impact:         impact,
			ConstraintAcks: acks,
		},
	}
	return Invocation{Result: result, UnitsIn: 30, UnitsOut: 30}, nil
}

func (w *StrategyWorker) Fallback(in Input, cause error) *domain.Result {
	return &domain.Result{
		Kind:          domain.KindStrategy,
		Worker:        w.Name(),
		Fallback:      true,
		FailureReason: cause.Error(),
		Strategy: &domain.StrategyRecommendation{
			Strategy:   domain.StrategyMonitor,
			Confidence: 0.0,
			Rationale:  []string{"strategy analysis unavailable, defaulting to monitor"},
			Impact:     domain.ImpactLow,
		},
	}
}

func recommendStrategy(contract, performance map[string]any) (string, []string, float64) {
	if contract == nil {
		return domain.StrategyMonitor, []string{"no contract data available"}, 0.4
	}

	expiryDays := asFloat(contract, "expiry_days", 999)
	contractValue := asFloat(contract, "annual_value_usd", 0)
	trend := asString(performance, "trend")
	score := asFloat(performance, "overall_score", 0)
	incidents := asSlice(performance, "incidents")

	// Near-expiry contracts go to market unless the supplier is holding up.
	if expiryDays <= 60 {
		if performance == nil {
			return domain.StrategyRFx, []string{"contract expires within 60 days, no performance data"}, 0.7
		}
		if trend == "declining" || (trend == "stable" && score < 6.0) {
			return domain.StrategyRFx, []string{"contract expires within 60 days with weak supplier performance"}, 0.85
		}
		if trend == "stable" && score >= 6.0 {
			return domain.StrategyRenegotiate, []string{"contract expires within 60 days, supplier performance acceptable"}, 0.8
		}
		return domain.StrategyRFx, []string{"contract expires within 60 days"}, 0.7
	}

	if expiryDays > 180 && performance != nil {
		if (trend == "stable" && score >= 7.0) || (trend == "improving" && score >= 6.5) {
			return domain.StrategyRenew, []string{"long runway with strong, stable supplier performance"}, 0.85
		}
	}

	if contractValue > 1_000_000 && performance != nil {
		if score < 6.0 || len(incidents) > 2 {
			return domain.StrategyRFx, []string{"high-value contract with performance issues"}, 0.8
		}
	}

	if expiryDays >= 61 && expiryDays <= 180 && trend == "declining" {
		return domain.StrategyRenegotiate, []string{"mid-term expiry with declining performance"}, 0.75
	}

	return domain.StrategyMonitor, []string{"no actionable rule matched, continue monitoring"}, 0.5
}

func constrainStrategy(policy domain.PolicyContext) string {
	if policy.DecisionAllowed(domain.StrategyRenegotiate) {
		return domain.StrategyRenegotiate
	}
	if len(policy.AllowedDecisionValues) > 0 {
		return policy.AllowedDecisionValues[0]
	}
	return domain.StrategyMonitor
}

func riskForStrategy(strategy string) string {
	switch strategy {
	case domain.StrategyTerminate:
		return "high: transition and continuity risk"
	case domain.StrategyRFx:
		return "medium: switching cost and timeline risk"
	case domain.StrategyRenegotiate:
		return "low: incumbent relationship preserved"
	default:
		return "low"
	}
}

func timelineForContract(contract map[string]any) string {
	expiry := asFloat(contract, "expiry_days", 999)
	switch {
	case expiry <= 60:
		return "immediate action required"
	case expiry <= 180:
		return "initiate within 30 days"
	default:
		return "plan within the next quarter"
	}
}

// SupplierScoringWorker ranks candidate suppliers for DTP-02/03. Suppliers
// below the minimum performance threshold or missing must-have capabilities
// score zero and are excluded from the shortlist.
type SupplierScoringWorker struct{}

func (w *SupplierScoringWorker) Name() string          { return NameSupplierScoring }
func (w *SupplierScoringWorker) Tier() domain.CostTier { return domain.TierFast }

func (w *SupplierScoringWorker) EstimateUnits(in Input) int64 { return 80 }

func (w *SupplierScoringWorker) Invoke(ctx context.Context, in Input) (Invocation, error) {
	requirements := asMap(in.Data[DataRequirements])
	mustHaves := asStrings(requirements, "must_have")

	var ranked []domain.RankedSupplier
	for _, raw := range asSlice(in.Data, DataSuppliers) {
		supplier := asMap(raw)
		if supplier == nil {
			continue
		}
		entry := scoreSupplier(supplier, mustHaves)
		if entry.Score > 0 {
			ranked = append(ranked, entry)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	shortlist := &domain.SupplierShortlist{
		Suppliers:  ranked,
		Criteria:   append([]string{"performance score", "capability coverage"}, mustHaves...),
		Confidence: 0.5,
		Impact:     domain.ImpactMedium,
	}
	if len(ranked) > 0 {
		shortlist.TopChoiceID = ranked[0].SupplierID
		shortlist.Recommendation = "proceed with " + ranked[0].SupplierID
		shortlist.Confidence = shortlistConfidence(ranked)
	} else {
		shortlist.Recommendation = "no qualified suppliers; revisit requirements"
		shortlist.Confidence = 0.3
	}

	result := &domain.Result{
		Kind:      domain.KindShortlist,
		Worker:    w.Name(),
		Shortlist: shortlist,
	}
	return Invocation{Result: result, UnitsIn: 40, UnitsOut: 40}, nil
}

func (w *SupplierScoringWorker) Fallback(in Input, cause error) *domain.Result {
	return &domain.Result{
		Kind:          domain.KindShortlist,
		Worker:        w.Name(),
		Fallback:      true,
		FailureReason: cause.Error(),
		Shortlist: &domain.SupplierShortlist{
			Recommendation: "supplier scoring unavailable",
			Confidence:     0.0,
			Impact:         domain.ImpactLow,
		},
	}
}

func scoreSupplier(supplier map[string]any, mustHaves []string) domain.RankedSupplier {
	entry := domain.RankedSupplier{SupplierID: asString(supplier, "supplier_id")}

	perfScore := asFloat(supplier, "performance_score", 0)
	if perfScore < 5.0 {
		entry.Concerns = append(entry.Concerns, "performance below minimum threshold")
		return entry
	}

	capabilities := map[string]bool{}
	for _, c := range asStrings(supplier, "capabilities") {
		capabilities[c] = true
	}
	for _, req := range mustHaves {
		if !capabilities[req] {
			entry.Concerns = append(entry.Concerns, "missing must-have: "+req)
			return entry
		}
	}

	coverage := 1.0
	if wants := asStrings(supplier, "capabilities"); len(wants) > 0 && len(mustHaves) > 0 {
		covered := 0
		for _, req := range mustHaves {
			if capabilities[req] {
				covered++
			}
		}
		coverage = float64(covered) / float64(len(mustHaves))
	}

	entry.Score = perfScore/10.0*0.7 + coverage*0.3
	if perfScore >= 8.0 {
		entry.Strengths = append(entry.Strengths, "strong performance history")
	}
	if coverage == 1.0 && len(mustHaves) > 0 {
		entry.Strengths = append(entry.Strengths, "full must-have coverage")
	}
	return entry
}

func shortlistConfidence(ranked []domain.RankedSupplier) float64 {
	if len(ranked) == 1 {
		return 0.7
	}
	// A clear gap between first and second place means a confident pick.
	gap := ranked[0].Score - ranked[1].Score
	switch {
	case gap >= 0.15:
		return 0.9
	case gap >= 0.05:
		return 0.75
	default:
		return 0.55
	}
}

// RFxDrafterWorker assembles an RFx document skeleton for DTP-03.
type RFxDrafterWorker struct{}

func (w *RFxDrafterWorker) Name() string          { return NameRFxDrafter }
func (w *RFxDrafterWorker) Tier() domain.CostTier { return domain.TierAccurate }

func (w *RFxDrafterWorker) EstimateUnits(in Input) int64 { return 200 }

func (w *RFxDrafterWorker) Invoke(ctx context.Context, in Input) (Invocation, error) {
	requirements := asMap(in.Data[DataRequirements])

	sections := map[string]string{
		"scope":               in.Summary.SummaryText,
		"requirements":        strings.Join(asStrings(requirements, "must_have"), "; "),
		"evaluation_criteria": "performance score, capability coverage, commercial terms",
		"timeline":            "responses due within 21 days of issue",
	}
	completeness := map[string]bool{}
	for name, body := range sections {
		completeness[name] = body != ""
	}

	result := &domain.Result{
		Kind:   domain.KindRFxDraft,
		Worker: w.Name(),
		RFx: &domain.RFxDraft{
			Sections:       sections,
			Completeness:   completeness,
			TemplateSource: "standard-rfx-v2",
			Impact:         domain.ImpactMedium,
		},
	}
	return Invocation{Result: result, UnitsIn: 120, UnitsOut: 80}, nil
}

func (w *RFxDrafterWorker) Fallback(in Input, cause error) *domain.Result {
	return &domain.Result{
		Kind:          domain.KindRFxDraft,
		Worker:        w.Name(),
		Fallback:      true,
		FailureReason: cause.Error(),
		RFx: &domain.RFxDraft{
			Sections: map[string]string{"scope": in.Summary.SummaryText},
			Impact:   domain.ImpactLow,
		},
	}
}

// NegotiationWorker prepares a negotiation plan for DTP-04 against the
// shortlist's top choice or the case's bound supplier.
type NegotiationWorker struct{}

func (w *NegotiationWorker) Name() string          { return NameNegotiationSupport }
func (w *NegotiationWorker) Tier() domain.CostTier { return domain.TierAccurate }

func (w *NegotiationWorker) EstimateUnits(in Input) int64 { return 150 }

func (w *NegotiationWorker) Invoke(ctx context.Context, in Input) (Invocation, error) {
	supplierID := in.Summary.SupplierID
	if in.Prior != nil && in.Prior.Kind == domain.KindShortlist && in.Prior.Shortlist != nil {
		if in.Prior.Shortlist.TopChoiceID != "" {
			supplierID = in.Prior.Shortlist.TopChoiceID
		}
	}

	contract := asMap(in.Data[DataContract])
	value := asFloat(contract, "annual_value_usd", 0)

	objectives := []string{"price reduction vs current terms", "SLA uplift with credits"}
	if value > 1_000_000 {
		objectives = append(objectives, "volume-tiered pricing")
	}

	result := &domain.Result{
		Kind:   domain.KindNegotiation,
		Worker: w.Name(),
		Negotiation: &domain.NegotiationPlan{
			SupplierID: supplierID,
			Objectives: objectives,
			TargetTerms: map[string]any{
				"price_reduction_pct": 8.0,
				"term_months":         24,
			},
			LeveragePoints: []string{"competitive alternatives from shortlist", "contract expiry pressure"},
			RiskMitigation: []string{"retain incumbent exit clause", "stagger rollout milestones"},
			Impact:         domain.ImpactHigh,
		},
	}
	return Invocation{Result: result, UnitsIn: 90, UnitsOut: 60}, nil
}

func (w *NegotiationWorker) Fallback(in Input, cause error) *domain.Result {
	return &domain.Result{
		Kind:          domain.KindNegotiation,
		Worker:        w.Name(),
		Fallback:      true,
		FailureReason: cause.Error(),
		Negotiation: &domain.NegotiationPlan{
			SupplierID: in.Summary.SupplierID,
			Objectives: []string{"negotiation planning unavailable"},
			Impact:     domain.ImpactLow,
		},
	}
}

// ContractWorker extracts and validates contract terms for DTP-05.
type ContractWorker struct{}

func (w *ContractWorker) Name() string          { return NameContractSupport }
func (w *ContractWorker) Tier() domain.CostTier { return domain.TierAccurate }

func (w *ContractWorker) EstimateUnits(in Input) int64 { return 180 }

func (w *ContractWorker) Invoke(ctx context.Context, in Input) (Invocation, error) {
	contract := asMap(in.Data[DataContract])

	extracted := map[string]any{
		"annual_value_usd": asFloat(contract, "annual_value_usd", 0),
		"expiry_days":      asFloat(contract, "expiry_days", 0),
		"payment_terms":    asString(contract, "payment_terms"),
	}
	validation := map[string]bool{
		"value_present":   asFloat(contract, "annual_value_usd", 0) > 0,
		"term_present":    asFloat(contract, "expiry_days", 0) > 0,
		"payment_present": asString(contract, "payment_terms") != "",
	}
	var inconsistencies []string
	for check, ok := range validation {
		if !ok {
			inconsistencies = append(inconsistencies, check+" failed")
		}
	}
	sort.Strings(inconsistencies)

	result := &domain.Result{
		Kind:   domain.KindContract,
		Worker: w.Name(),
		Contract: &domain.ContractExtraction{
			SupplierID:      in.Summary.SupplierID,
			ExtractedTerms:  extracted,
			Validation:      validation,
			Inconsistencies: inconsistencies,
			Impact:          domain.ImpactMedium,
		},
	}
	return Invocation{Result: result, UnitsIn: 110, UnitsOut: 70}, nil
}

func (w *ContractWorker) Fallback(in Input, cause error) *domain.Result {
	return &domain.Result{
		Kind:          domain.KindContract,
		Worker:        w.Name(),
		Fallback:      true,
		FailureReason: cause.Error(),
		Contract: &domain.ContractExtraction{
			SupplierID: in.Summary.SupplierID,
			Impact:     domain.ImpactLow,
		},
	}
}

// ImplementationWorker produces the rollout plan for DTP-06.
type ImplementationWorker struct{}

func (w *ImplementationWorker) Name() string          { return NameImplementation }
func (w *ImplementationWorker) Tier() domain.CostTier { return domain.TierFast }

func (w *ImplementationWorker) EstimateUnits(in Input) int64 { return 70 }

func (w *ImplementationWorker) Invoke(ctx context.Context, in Input) (Invocation, error) {
	contract := asMap(in.Data[DataContract])
	value := asFloat(contract, "annual_value_usd", 0)

	result := &domain.Result{
		Kind:   domain.KindImplementation,
		Worker: w.Name(),
		Implementation: &domain.ImplementationPlan{
			SupplierID: in.Summary.SupplierID,
			RolloutSteps: []string{
				"finalize onboarding and access",
				"transition service ownership",
				"validate first invoicing cycle",
				"report realized savings",
			},
			ProjectedSavings: value * 0.08,
			Impact:           domain.ImpactMedium,
		},
	}
	return Invocation{Result: result, UnitsIn: 40, UnitsOut: 30}, nil
}

func (w *ImplementationWorker) Fallback(in Input, cause error) *domain.Result {
	return &domain.Result{
		Kind:          domain.KindImplementation,
		Worker:        w.Name(),
		Fallback:      true,
		FailureReason: cause.Error(),
		Implementation: &domain.ImplementationPlan{
			SupplierID: in.Summary.SupplierID,
			Impact:     domain.ImpactLow,
		},
	}
}

// SignalWorker assesses inbound market or performance signals and
// recommends whether the case needs action.
type SignalWorker struct{}

func (w *SignalWorker) Name() string          { return NameSignalInterpreter }
func (w *SignalWorker) Tier() domain.CostTier { return domain.TierFast }

func (w *SignalWorker) EstimateUnits(in Input) int64 { return 50 }

func (w *SignalWorker) Invoke(ctx context.Context, in Input) (Invocation, error) {
	signal := asMap(in.Data[DataSignal])
	severity := asString(signal, "severity")

	var action string
	var urgency int
	var confidence float64
	switch severity {
	case "critical":
		action, urgency, confidence = "escalate immediately", 9, 0.9
	case "high":
		action, urgency, confidence = "open review within 48 hours", 7, 0.8
	case "medium":
		action, urgency, confidence = "schedule review this cycle", 5, 0.7
	default:
		action, urgency, confidence = "no action, continue monitoring", 2, 0.65
	}

	result := &domain.Result{
		Kind:   domain.KindSignal,
		Worker: w.Name(),
		Signal: &domain.SignalAssessment{
			SignalID:     asString(signal, "signal_id"),
			Assessment:   asString(signal, "type") + " signal at severity " + severity,
			Action:       action,
			Confidence:   confidence,
			Rationale:    []string{"severity-driven triage"},
			UrgencyScore: urgency,
			Impact:       domain.ImpactMedium,
		},
	}
	return Invocation{Result: result, UnitsIn: 25, UnitsOut: 25}, nil
}

func (w *SignalWorker) Fallback(in Input, cause error) *domain.Result {
	return &domain.Result{
		Kind:          domain.KindSignal,
		Worker:        w.Name(),
		Fallback:      true,
		FailureReason: cause.Error(),
		Signal: &domain.SignalAssessment{
			Assessment:   "signal assessment unavailable",
			Action:       "no action, continue monitoring",
			Confidence:   0.0,
			UrgencyScore: 0,
			Impact:       domain.ImpactLow,
		},
	}
}

// ClarifierWorker turns a low-confidence or ambiguous state into targeted
// questions for the human instead of guessing.
type ClarifierWorker struct{}

func (w *ClarifierWorker) Name() string          { return NameClarifier }
func (w *ClarifierWorker) Tier() domain.CostTier { return domain.TierFast }

func (w *ClarifierWorker) EstimateUnits(in Input) int64 { return 30 }

func (w *ClarifierWorker) Invoke(ctx context.Context, in Input) (Invocation, error) {
	reason := "additional input needed before the case can proceed"
	var questions []string

	if in.Prior != nil {
		if conf, ok := in.Prior.Confidence(); ok && conf < 0.6 {
			reason = fmt.Sprintf("prior %s result had confidence %.2f", in.Prior.Kind, conf)
		}
	}
	if in.Summary.CategoryID == "" {
		questions = append(questions, "Which category does this case belong to?")
	}
	if in.Summary.ContractID == "" {
		questions = append(questions, "Is there an existing contract in scope?")
	}
	if len(questions) == 0 {
		questions = append(questions, "Please confirm the intended outcome for this case.")
	}

	result := &domain.Result{
		Kind:   domain.KindClarification,
		Worker: w.Name(),
		Clarification: &domain.ClarificationRequest{
			Reason:    reason,
			Questions: questions,
		},
	}
	return Invocation{Result: result, UnitsIn: 15, UnitsOut: 15}, nil
}

func (w *ClarifierWorker) Fallback(in Input, cause error) *domain.Result {
	return &domain.Result{
		Kind:          domain.KindClarification,
		Worker:        w.Name(),
		Fallback:      true,
		FailureReason: cause.Error(),
		Clarification: &domain.ClarificationRequest{
			Reason:    "clarification worker unavailable",
			Questions: []string{"Please review the case manually."},
		},
	}
}
