// Package worker defines the capability interface implemented by every
// decision worker, plus a deterministic reference set used in tests and
// local runs.
package worker

import (
	"context"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// Canonical worker names used by routing tables and the registry.
const (
	NameStrategy           = "strategy"
	NameSupplierScoring    = "supplier_scoring"
	NameRFxDrafter         = "rfx_drafter"
	NameNegotiationSupport = "negotiation_support"
	NameContractSupport    = "contract_support"
	NameImplementation     = "implementation"
	NameSignalInterpreter  = "signal_interpreter"
	NameClarifier          = "clarifier"
)

// Input is the read-only view of case state handed to a worker. Workers
// never mutate the summary; only accepted transitions do.
type Input struct {
	CaseID  string                `json:"case_id"`
	Stage   domain.Stage          `json:"stage"`
	Intent  string                `json:"intent"`
	Summary domain.CaseSummary    `json:"summary"`
	Policy  domain.PolicyContext  `json:"policy"`
	Data    map[string]any        `json:"data,omitempty"`
	Prior   *domain.Result        `json:"prior,omitempty"`
}

// Invocation is what a worker call produces: the typed result plus the raw
// unit counts needed for budget charging and audit snapshots.
type Invocation struct {
	Result   *domain.Result
	UnitsIn  int64
	UnitsOut int64
}

// Capability is the contract every worker implements. EstimateUnits lets the
// budget tracker project cost before the call is made; Fallback supplies the
// degraded result substituted when Invoke fails.
type Capability interface {
	Name() string
	Tier() domain.CostTier
	EstimateUnits(in Input) int64
	Invoke(ctx context.Context, in Input) (Invocation, error)
	Fallback(in Input, cause error) *domain.Result
}
