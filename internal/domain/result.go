package domain

import (
	"encoding/json"
	"fmt"
)

// ResultKind identifies the concrete variant carried by a Result. The set is
// closed: routing and validation switch on kind, never on untyped fields.
type ResultKind string

const (
	KindStrategy       ResultKind = "strategy_recommendation"
	KindShortlist      ResultKind = "supplier_shortlist"
	KindRFxDraft       ResultKind = "rfx_draft"
	KindNegotiation    ResultKind = "negotiation_plan"
	KindContract       ResultKind = "contract_extraction"
	KindImplementation ResultKind = "implementation_plan"
	KindSignal         ResultKind = "signal_assessment"
	KindClarification  ResultKind = "clarification_request"
)

// DecisionImpact grades the materiality of a worker result.
type DecisionImpact string

const (
	ImpactLow    DecisionImpact = "low"
	ImpactMedium DecisionImpact = "medium"
	ImpactHigh   DecisionImpact = "high"
)

// Strategy values a StrategyRecommendation may carry.
const (
	StrategyRenew       = "Renew"
	StrategyRenegotiate = "Renegotiate"
	StrategyRFx         = "RFx"
	StrategyTerminate   = "Terminate"
	StrategyMonitor     = "Monitor"
)

// StrategyRecommendation is the strategy worker's output (DTP-01).
type StrategyRecommendation struct {
	Strategy       string         `json:"recommended_strategy"`
	Confidence     float64        `json:"confidence"`
	Rationale      []string       `json:"rationale,omitempty"`
	RiskAssessment string         `json:"risk_assessment,omitempty"`
	Timeline       string         `json:"timeline_recommendation,omitempty"`
	Impact         DecisionImpact `json:"decision_impact"`
	ConstraintAcks []string       `json:"constraint_acknowledgments,omitempty"`
}

// RankedSupplier is one entry of a shortlist.
type RankedSupplier struct {
	SupplierID string   `json:"supplier_id"`
	Score      float64  `json:"score"`
	Strengths  []string `json:"strengths,omitempty"`
	Concerns   []string `json:"concerns,omitempty"`
}

// SupplierShortlist is the supplier scoring worker's output (DTP-02/03).
type SupplierShortlist struct {
	Suppliers      []RankedSupplier `json:"shortlisted_suppliers"`
	Criteria       []string         `json:"evaluation_criteria,omitempty"`
	Recommendation string           `json:"recommendation"`
	TopChoiceID    string           `json:"top_choice_supplier_id,omitempty"`
	Confidence     float64          `json:"confidence"`
	Impact         DecisionImpact   `json:"decision_impact"`
	ConstraintAcks []string         `json:"constraint_acknowledgments,omitempty"`
}

// RFxDraft is the RFx draft worker's output (DTP-03).
type RFxDraft struct {
	Sections       map[string]string `json:"rfx_sections"`
	Completeness   map[string]bool   `json:"completeness_check,omitempty"`
	TemplateSource string            `json:"template_source,omitempty"`
	Impact         DecisionImpact    `json:"decision_impact"`
	ConstraintAcks []string          `json:"constraint_acknowledgments,omitempty"`
}

// NegotiationPlan is the negotiation support worker's output (DTP-04).
type NegotiationPlan struct {
	SupplierID     string         `json:"supplier_id"`
	Objectives     []string       `json:"negotiation_objectives,omitempty"`
	TargetTerms    map[string]any `json:"target_terms,omitempty"`
	LeveragePoints []string       `json:"leverage_points,omitempty"`
	RiskMitigation []string       `json:"risk_mitigation,omitempty"`
	Impact         DecisionImpact `json:"decision_impact"`
	ConstraintAcks []string       `json:"constraint_acknowledgments,omitempty"`
}

// ContractExtraction is the contract support worker's output (DTP-04/05).
type ContractExtraction struct {
	SupplierID      string          `json:"supplier_id"`
	ExtractedTerms  map[string]any  `json:"extracted_terms,omitempty"`
	Validation      map[string]bool `json:"validation_results,omitempty"`
	Inconsistencies []string        `json:"inconsistencies,omitempty"`
	Impact          DecisionImpact  `json:"decision_impact"`
}

// ImplementationPlan is the implementation worker's output (DTP-05/06).
type ImplementationPlan struct {
	SupplierID       string         `json:"supplier_id"`
	RolloutSteps     []string       `json:"rollout_steps,omitempty"`
	ProjectedSavings float64        `json:"projected_savings,omitempty"`
	Impact           DecisionImpact `json:"decision_impact"`
}

// SignalAssessment is the signal interpretation worker's output.
type SignalAssessment struct {
	SignalID     string         `json:"signal_id"`
	Assessment   string         `json:"assessment"`
	Action       string         `json:"recommended_action"`
	Confidence   float64        `json:"confidence"`
	Rationale    []string       `json:"rationale,omitempty"`
	UrgencyScore int            `json:"urgency_score"`
	Impact       DecisionImpact `json:"decision_impact"`
}

// ClarificationRequest is the clarifier worker's output: targeted questions
// for the human instead of a decision.
type ClarificationRequest struct {
	Reason    string   `json:"reason"`
	Questions []string `json:"questions,omitempty"`
}

// Result is the tagged union over all worker result variants. Exactly one
// variant field is non-nil, matching Kind. Fallback marks degraded outputs
// substituted when the real worker call failed or was skipped; such results
// are never served from cache and never block a retry.
type Result struct {
	Kind           ResultKind               `json:"kind"`
	Worker         string                   `json:"worker"`
	Fallback       bool                     `json:"fallback,omitempty"`
	FailureReason  string                   `json:"failure_reason,omitempty"`
	Strategy       *StrategyRecommendation  `json:"strategy,omitempty"`
	Shortlist      *SupplierShortlist       `json:"shortlist,omitempty"`
	RFx            *RFxDraft                `json:"rfx,omitempty"`
	Negotiation    *NegotiationPlan         `json:"negotiation,omitempty"`
	Contract       *ContractExtraction      `json:"contract,omitempty"`
	Implementation *ImplementationPlan      `json:"implementation,omitempty"`
	Signal         *SignalAssessment        `json:"signal,omitempty"`
	Clarification  *ClarificationRequest    `json:"clarification,omitempty"`
}

// Validate checks that exactly one variant is populated and matches Kind.
func (r *Result) Validate() error {
	var populated int
	var match bool
	check := func(kind ResultKind, set bool) {
		if set {
			populated++
			if r.Kind == kind {
				match = true
			}
		}
	}
	check(KindStrategy, r.Strategy != nil)
	check(KindShortlist, r.Shortlist != nil)
	check(KindRFxDraft, r.RFx != nil)
	check(KindNegotiation, r.Negotiation != nil)
	check(KindContract, r.Contract != nil)
	check(KindImplementation, r.Implementation != nil)
	check(KindSignal, r.Signal != nil)
	check(KindClarification, r.Clarification != nil)

	if populated != 1 {
		return NewEngineError(ErrResultInvalid.Code,
			fmt.Sprintf("result must carry exactly one variant, has %d", populated))
	}
	if !match {
		return NewEngineError(ErrResultInvalid.Code,
			fmt.Sprintf("result kind %q does not match populated variant", r.Kind))
	}
	return nil
}

// Confidence returns the variant's confidence score where applicable.
func (r *Result) Confidence() (float64, bool) {
	switch r.Kind {
	case KindStrategy:
		if r.Strategy != nil {
			return r.Strategy.Confidence, true
		}
	case KindShortlist:
		if r.Shortlist != nil {
			return r.Shortlist.Confidence, true
		}
	case KindSignal:
		if r.Signal != nil {
			return r.Signal.Confidence, true
		}
	}
	return 0, false
}

// DecisionValue returns the variant's primary decision value, used for
// policy whitelist validation and contradiction checks.
func (r *Result) DecisionValue() string {
	switch r.Kind {
	case KindStrategy:
		if r.Strategy != nil {
			return r.Strategy.Strategy
		}
	case KindShortlist:
		if r.Shortlist != nil {
			return r.Shortlist.TopChoiceID
		}
	case KindNegotiation:
		if r.Negotiation != nil {
			return r.Negotiation.SupplierID
		}
	case KindSignal:
		if r.Signal != nil {
			return r.Signal.Action
		}
	}
	return ""
}

// Impact returns the variant's declared materiality, defaulting to medium.
func (r *Result) Impact() DecisionImpact {
	switch r.Kind {
	case KindStrategy:
		if r.Strategy != nil && r.Strategy.Impact != "" {
			return r.Strategy.Impact
		}
	case KindShortlist:
		if r.Shortlist != nil && r.Shortlist.Impact != "" {
			return r.Shortlist.Impact
		}
	case KindRFxDraft:
		if r.RFx != nil && r.RFx.Impact != "" {
			return r.RFx.Impact
		}
	case KindNegotiation:
		if r.Negotiation != nil && r.Negotiation.Impact != "" {
			return r.Negotiation.Impact
		}
	case KindContract:
		if r.Contract != nil && r.Contract.Impact != "" {
			return r.Contract.Impact
		}
	case KindImplementation:
		if r.Implementation != nil && r.Implementation.Impact != "" {
			return r.Implementation.Impact
		}
	case KindSignal:
		if r.Signal != nil && r.Signal.Impact != "" {
			return r.Signal.Impact
		}
	case KindClarification:
		return ImpactLow
	}
	return ImpactMedium
}

// ApplyEdits applies human field-level edits to the active variant.
// Unknown fields are reported back so the caller can surface them without
// failing the approval.
func (r *Result) ApplyEdits(edits map[string]any) []string {
	var unknown []string
	for field, value := range edits {
		if !r.applyEdit(field, value) {
			unknown = append(unknown, field)
		}
	}
	return unknown
}

func (r *Result) applyEdit(field string, value any) bool {
	switch r.Kind {
	case KindStrategy:
		if r.Strategy == nil {
			return false
		}
		switch field {
		case "recommended_strategy":
			if s, ok := value.(string); ok {
				r.Strategy.Strategy = s
				return true
			}
		case "rationale":
			if ss, ok := toStringSlice(value); ok {
				r.Strategy.Rationale = ss
				return true
			}
		case "timeline_recommendation":
			if s, ok := value.(string); ok {
				r.Strategy.Timeline = s
				return true
			}
		}
	case KindShortlist:
		if r.Shortlist == nil {
			return false
		}
		switch field {
		case "top_choice_supplier_id":
			if s, ok := value.(string); ok {
				r.Shortlist.TopChoiceID = s
				return true
			}
		case "recommendation":
			if s, ok := value.(string); ok {
				r.Shortlist.Recommendation = s
				return true
			}
		}
	case KindNegotiation:
		if r.Negotiation == nil {
			return false
		}
		switch field {
		case "supplier_id":
			if s, ok := value.(string); ok {
				r.Negotiation.SupplierID = s
				return true
			}
		case "negotiation_objectives":
			if ss, ok := toStringSlice(value); ok {
				r.Negotiation.Objectives = ss
				return true
			}
		}
	}
	return false
}

func toStringSlice(v any) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// EncodeResult serializes a result for snapshots and cache entries.
func EncodeResult(r *Result) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}

// DecodeResult deserializes a result and validates the variant invariant.
func DecodeResult(data string) (*Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
