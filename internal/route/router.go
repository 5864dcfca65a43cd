// Package route implements the deterministic routing core: given the current
// stage, the latest result, policy, and user intent, pick the next worker,
// halt, or escalate to the clarifier.
package route

import (
	"context"
	"log/slog"
	"strings"

	"github.com/atlasprocure/caseflow/internal/domain"
	"github.com/atlasprocure/caseflow/internal/worker"
)

// Confidence thresholds used by the precedence rules.
const (
	LowConfidenceThreshold  = 0.6
	HighConfidenceThreshold = 0.8
)

// Action is the router's verdict for one step.
type Action string

const (
	ActionInvoke   Action = "invoke"
	ActionNone     Action = "none"
	ActionEscalate Action = "escalate"
)

// Decision is the routed outcome: which worker to invoke (for invoke and
// escalate actions) and why the rule fired.
type Decision struct {
	Action Action
	Worker string
	Rule   string
}

// defaultWorkers maps each stage to the worker invoked on first entry.
var defaultWorkers = map[domain.Stage]string{
	domain.StageStrategy:    worker.NameStrategy,
	domain.StagePlanning:    worker.NameSupplierScoring,
	domain.StageSourcing:    worker.NameSupplierScoring,
	domain.StageNegotiation: worker.NameNegotiationSupport,
	domain.StageContracting: worker.NameContractSupport,
	domain.StageExecution:   worker.NameImplementation,
}

// keywordTable routes explicit free-text requests. Bounded and deterministic;
// first match in declaration order wins.
var keywordTable = []struct {
	keyword string
	worker  string
}{
	{"compare suppliers", worker.NameSupplierScoring},
	{"shortlist", worker.NameSupplierScoring},
	{"rfx", worker.NameRFxDrafter},
	{"tender", worker.NameRFxDrafter},
	{"negotiate", worker.NameNegotiationSupport},
	{"contract", worker.NameContractSupport},
	{"rollout", worker.NameImplementation},
	{"implementation", worker.NameImplementation},
	{"signal", worker.NameSignalInterpreter},
}

// FallbackRouter is the optional nondeterministic router consulted only
// after every deterministic rule has declined. Its proposal is validated
// against the registry before use and never bypasses the guard or budget.
type FallbackRouter interface {
	Propose(ctx context.Context, stage domain.Stage, latest *domain.Result, intent string) (string, error)
}

// Router evaluates the fixed precedence rules.
type Router struct {
	registry      *worker.Registry
	fallback      FallbackRouter
	escalateBelow float64
	logger        *slog.Logger
}

// New creates a router. fallback may be nil.
func New(registry *worker.Registry, fallback FallbackRouter, logger *slog.Logger) *Router {
	return &Router{
		registry:      registry,
		fallback:      fallback,
		escalateBelow: LowConfidenceThreshold,
		logger:        logger,
	}
}

// SetEscalationThreshold overrides the confidence cutoff below which results
// escalate to the clarifier. Values outside (0, 1] keep the default.
func (r *Router) SetEscalationThreshold(v float64) {
	if v > 0 && v <= 1 {
		r.escalateBelow = v
	}
}

// Decide applies the precedence rules in order, first match wins:
//  1. no result yet and the stage has a default worker
//  2. the result's variant forces a specific next worker
//  3. low confidence or policy-required clarification escalates
//  4. explicit keyword in the user intent
//  5. otherwise none (stage advance belongs to the human gate)
//
// The nondeterministic fallback, when configured, runs only after all of
// the above return nothing.
func (r *Router) Decide(ctx context.Context, stage domain.Stage, latest *domain.Result, policy domain.PolicyContext, intent string) Decision {
	// Rule 1: first entry into a stage.
	if latest == nil {
		if name, ok := defaultWorkers[stage]; ok && r.registry.Has(name) {
			return Decision{Action: ActionInvoke, Worker: name, Rule: "stage_default"}
		}
	}

	if latest != nil {
		// Rule 2: variant-forced next worker.
		if name, ok := forcedNext(latest); ok {
			if r.registry.Has(name) {
				return Decision{Action: ActionInvoke, Worker: name, Rule: "forced_next"}
			}
		}

		// Rule 3: low confidence or policy-required clarification.
		if conf, ok := latest.Confidence(); ok && conf < r.escalateBelow {
			return Decision{Action: ActionEscalate, Worker: worker.NameClarifier, Rule: "low_confidence"}
		}
		if policy.RequiresClarification {
			return Decision{Action: ActionEscalate, Worker: worker.NameClarifier, Rule: "policy_clarification"}
		}
	}

	// Rule 4: explicit keyword request.
	lowered := strings.ToLower(intent)
	for _, entry := range keywordTable {
		if strings.Contains(lowered, entry.keyword) && r.registry.Has(entry.worker) {
			// The worker that just produced the result is not re-routed to
			// by its own keyword.
			if latest != nil && latest.Worker == entry.worker {
				continue
			}
			return Decision{Action: ActionInvoke, Worker: entry.worker, Rule: "keyword"}
		}
	}

	// Rules 5 and 6: nothing left for a worker to do.
	if r.fallback != nil {
		if name, err := r.fallback.Propose(ctx, stage, latest, intent); err == nil && name != "" {
			if r.registry.Has(name) {
				return Decision{Action: ActionInvoke, Worker: name, Rule: "fallback_router"}
			}
			r.logger.Warn("fallback router proposed unregistered worker, ignoring",
				"stage", stage, "proposed", name)
		} else if err != nil {
			r.logger.Warn("fallback router failed, ignoring", "stage", stage, "error", err)
		}
	}

	return Decision{Action: ActionNone, Rule: "no_rule"}
}

// forcedNext is the fixed variant-to-worker table. An RFx strategy needs the
// supplier comparison before anything else; an actionable signal opens a
// strategy review.
func forcedNext(latest *domain.Result) (string, bool) {
	if latest.Fallback {
		return "", false
	}
	switch latest.Kind {
	case domain.KindStrategy:
		if latest.Strategy != nil && latest.Strategy.Strategy == domain.StrategyRFx {
			return worker.NameSupplierScoring, true
		}
	case domain.KindSignal:
		if latest.Signal != nil && latest.Signal.Action != "no action, continue monitoring" {
			return worker.NameStrategy, true
		}
	}
	return "", false
}
