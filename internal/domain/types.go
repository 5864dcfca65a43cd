// Package domain defines the core types for the Caseflow orchestration engine.
package domain

// Stage represents the DTP stages a sourcing case moves through.
type Stage string

const (
	StageStrategy    Stage = "DTP-01"
	StagePlanning    Stage = "DTP-02"
	StageSourcing    Stage = "DTP-03"
	StageNegotiation Stage = "DTP-04"
	StageContracting Stage = "DTP-05"
	StageExecution   Stage = "DTP-06"
)

// StageNames maps each stage to its display name.
var StageNames = map[Stage]string{
	StageStrategy:    "Strategy",
	StagePlanning:    "Planning",
	StageSourcing:    "Sourcing",
	StageNegotiation: "Negotiation",
	StageContracting: "Contracting",
	StageExecution:   "Execution",
}

// IsValidStage reports whether s is one of the defined DTP stages.
func IsValidStage(s Stage) bool {
	_, ok := StageNames[s]
	return ok
}

// Terminal reports whether the stage is the last in the progression.
func (s Stage) Terminal() bool {
	return s == StageExecution
}

// CaseStatus represents the lifecycle status of a case.
type CaseStatus string

const (
	StatusOpen         CaseStatus = "open"
	StatusInProgress   CaseStatus = "in_progress"
	StatusWaitingHuman CaseStatus = "waiting_human"
	StatusCompleted    CaseStatus = "completed"
	StatusRejected     CaseStatus = "rejected"
)

// TriggerSource identifies what initiated a case.
type TriggerSource string

const (
	TriggerUser   TriggerSource = "user"
	TriggerSignal TriggerSource = "signal"
	TriggerSystem TriggerSource = "system"
)

// CaseSummary is the compact structured summary owned by the orchestrator.
// Workers receive it read-only; only accepted transitions may mutate it.
type CaseSummary struct {
	CaseID            string   `json:"case_id"`
	CategoryID        string   `json:"category_id"`
	ContractID        string   `json:"contract_id,omitempty"`
	SupplierID        string   `json:"supplier_id,omitempty"`
	SummaryText       string   `json:"summary_text"`
	KeyFindings       []string `json:"key_findings,omitempty"`
	RecommendedAction string   `json:"recommended_action,omitempty"`
}

// CaseState holds the full persisted state of a sourcing case.
type CaseState struct {
	CaseID        string        `json:"case_id"`
	Stage         Stage         `json:"stage"`
	Status        CaseStatus    `json:"status"`
	Trigger       TriggerSource `json:"trigger"`
	Intent        string        `json:"intent"`
	Summary       CaseSummary   `json:"summary"`
	LatestResult  *Result       `json:"latest_result,omitempty"`
	Budget        BudgetState   `json:"budget"`
	StateVersion  int64         `json:"state_version"`
	LastActionSeq int64         `json:"last_action_seq"`
	UpdatedAtUnix int64         `json:"updated_at_unix"`
}

// BudgetState tracks resource consumption over a case's entire lifetime.
// Created once at case start, never reset.
type BudgetState struct {
	UnitsUsed  int64   `json:"units_used"`
	CostUSD    float64 `json:"cost_usd"`
	Calls      int64   `json:"calls"`
	Tier1Calls int64   `json:"tier_1_calls"`
	Tier2Calls int64   `json:"tier_2_calls"`
}

// CostTier selects between the cheap/fast and expensive/accurate rate rows.
type CostTier int

const (
	TierFast     CostTier = 1
	TierAccurate CostTier = 2
)

// CostDelta records a single budget increment.
type CostDelta struct {
	CaseID    string   `json:"case_id"`
	Worker    string   `json:"worker"`
	Tier      CostTier `json:"tier"`
	UnitsIn   int64    `json:"units_in"`
	UnitsOut  int64    `json:"units_out"`
	AmountUSD float64  `json:"amount_usd"`
	CreatedAt int64    `json:"created_at"`
}

// PolicyContext carries the per-stage constraints injected into the router
// and the human gate.
type PolicyContext struct {
	Stage                 Stage    `json:"stage"`
	AllowedNextStages     []Stage  `json:"allowed_next_stages"`
	MandatoryChecks       []string `json:"mandatory_checks,omitempty"`
	HumanRequiredFor      []string `json:"human_required_for,omitempty"`
	AllowedDecisionValues []string `json:"allowed_decision_values,omitempty"`
	RequiresClarification bool     `json:"requires_clarification,omitempty"`
}

// TransitionAllowed reports whether advancing to next is permitted from the
// context's stage.
func (p PolicyContext) TransitionAllowed(next Stage) bool {
	for _, s := range p.AllowedNextStages {
		if s == next {
			return true
		}
	}
	return false
}

// DecisionAllowed reports whether value passes the stage whitelist.
// An empty whitelist allows everything.
func (p PolicyContext) DecisionAllowed(value string) bool {
	if len(p.AllowedDecisionValues) == 0 {
		return true
	}
	for _, v := range p.AllowedDecisionValues {
		if v == value {
			return true
		}
	}
	return false
}

// HumanDecision is an externally supplied approval, consumed exactly once
// to unblock a case suspended at the human gate.
type HumanDecision struct {
	Decision     Decision       `json:"decision"`
	Reason       string         `json:"reason,omitempty"`
	EditedFields map[string]any `json:"edited_fields,omitempty"`
	DecidedBy    string         `json:"decided_by,omitempty"`
	Timestamp    int64          `json:"timestamp"`
}

// Decision is the approve/reject verdict of a HumanDecision.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ActivityEntry is one immutable record of the audit log, appended by the
// orchestrator after every step.
type ActivityEntry struct {
	ID              int64    `json:"id"`
	CaseID          string   `json:"case_id"`
	SeqNo           int64    `json:"seq_no"`
	Stage           Stage    `json:"stage"`
	Worker          string   `json:"worker,omitempty"`
	Task            string   `json:"task,omitempty"`
	UnitsIn         int64    `json:"units_in"`
	UnitsOut        int64    `json:"units_out"`
	CostUSD         float64  `json:"cost_usd"`
	CacheHit        bool     `json:"cache_hit"`
	CacheKey        string   `json:"cache_key,omitempty"`
	InputHash       string   `json:"input_hash,omitempty"`
	InputSnapshot   string   `json:"input_snapshot,omitempty"`
	OutputSnapshot  string   `json:"output_snapshot,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	GuardrailEvents []string `json:"guardrail_events,omitempty"`
	CreatedAt       int64    `json:"created_at"`
}

// HaltReason explains why an orchestrator run stopped.
type HaltReason string

const (
	HaltHumanGate       HaltReason = "human_gate"
	HaltTerminal        HaltReason = "terminal"
	HaltNoFurtherAction HaltReason = "no_further_action"
	HaltMaxIterations   HaltReason = "max_iterations"
	HaltCycleDetected   HaltReason = "cycle_detected"
)

// Fatal reports whether the halt is surfaced to the caller as a terminal
// error state rather than a normal completion.
func (h HaltReason) Fatal() bool {
	return h == HaltMaxIterations
}

// CaseSnapshot is the minimal serializable state needed to resume a case
// after a process restart while it sits at the human gate.
type CaseSnapshot struct {
	CaseID       string        `json:"case_id"`
	Stage        Stage         `json:"stage"`
	Status       CaseStatus    `json:"status"`
	Summary      CaseSummary   `json:"summary"`
	LatestResult *Result       `json:"latest_result,omitempty"`
	Policy       PolicyContext `json:"policy"`
	Budget       BudgetState   `json:"budget"`
	CacheKey     string        `json:"cache_key,omitempty"`
	InputHash    string        `json:"input_hash,omitempty"`
	CreatedAt    int64         `json:"created_at"`
}
