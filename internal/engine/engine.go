// Package engine implements the orchestrator: the Router -> Worker ->
// Validator -> Cycle Guard loop, with the budget tracker and result cache
// wrapped around every worker call, and the human gate as the only
// suspension point.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atlasprocure/caseflow/internal/cache"
	"github.com/atlasprocure/caseflow/internal/domain"
	"github.com/atlasprocure/caseflow/internal/policy"
	"github.com/atlasprocure/caseflow/internal/route"
	"github.com/atlasprocure/caseflow/internal/store"
	"github.com/atlasprocure/caseflow/internal/worker"
)

// KnowledgeSource supplies auxiliary data (contracts, performance, supplier
// pools) to workers. Opaque to the orchestrator; its payload is passed
// through untouched.
type KnowledgeSource interface {
	Fetch(ctx context.Context, summary domain.CaseSummary) (map[string]any, error)
}

// Options tunes the engine's halting guarantees and cycle-key granularity.
type Options struct {
	BudgetCeilingUnits      int64
	IterationCeiling        int
	VisitedWindow           int
	FineCycleKey            bool
	EscalateBelowConfidence float64
}

// Engine is the top-level orchestrator. One Engine serves many cases; each
// Run processes exactly one case synchronously to its next stopping point.
type Engine struct {
	db        *sql.DB
	cases     *store.CaseRepo
	activity  *store.ActivityRepo
	snapshots *store.SnapshotRepo
	costs     *store.CostDeltaRepo
	cache     *cache.ResultCache
	policies  *policy.Provider
	registry  *worker.Registry
	router    *route.Router
	knowledge KnowledgeSource
	opts      Options
	logger    *slog.Logger
	nowFn     func() int64
}

// New wires an engine. knowledge and the router's fallback may be nil.
func New(db *sql.DB, policies *policy.Provider, registry *worker.Registry, fallback route.FallbackRouter, knowledge KnowledgeSource, opts Options, logger *slog.Logger) *Engine {
	router := route.New(registry, fallback, logger)
	router.SetEscalationThreshold(opts.EscalateBelowConfidence)
	return &Engine{
		db:        db,
		cases:     &store.CaseRepo{},
		activity:  &store.ActivityRepo{},
		snapshots: &store.SnapshotRepo{},
		costs:     &store.CostDeltaRepo{},
		cache:     cache.New(db, logger),
		policies:  policies,
		registry:  registry,
		router:    router,
		knowledge: knowledge,
		opts:      opts,
		logger:    logger,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// StartCaseRequest carries everything needed to open a new case.
type StartCaseRequest struct {
	CaseID     string               `json:"case_id,omitempty"`
	Trigger    domain.TriggerSource `json:"trigger"`
	Intent     string               `json:"intent"`
	CategoryID string               `json:"category_id"`
	ContractID string               `json:"contract_id,omitempty"`
	SupplierID string               `json:"supplier_id,omitempty"`
	Summary    string               `json:"summary,omitempty"`
}

// StartCase creates a case at DTP-01 with a fresh lifetime budget.
func (e *Engine) StartCase(ctx context.Context, req StartCaseRequest) (*domain.CaseState, error) {
	caseID := req.CaseID
	if caseID == "" {
		caseID = "case-" + uuid.NewString()
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = domain.TriggerUser
	}

	state := domain.CaseState{
		CaseID:  caseID,
		Stage:   domain.StageStrategy,
		Status:  domain.StatusOpen,
		Trigger: trigger,
		Intent:  req.Intent,
		Summary: domain.CaseSummary{
			CaseID:      caseID,
			CategoryID:  req.CategoryID,
			ContractID:  req.ContractID,
			SupplierID:  req.SupplierID,
			SummaryText: req.Summary,
		},
		StateVersion:  1,
		UpdatedAtUnix: e.nowFn(),
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreWrite.Code, "begin start case", err)
	}
	defer tx.Rollback()

	if existing, err := e.cases.GetByID(ctx, e.db, caseID); err == nil && existing != nil {
		return nil, domain.ErrDuplicateCase
	}
	if err := e.cases.CreateTx(ctx, tx, state); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreWrite.Code, "create case", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreWrite.Code, "commit start case", err)
	}

	e.logger.Info("case started", "case_id", caseID, "trigger", trigger, "category", req.CategoryID)
	return &state, nil
}

// GetCase returns the current persisted state.
func (e *Engine) GetCase(ctx context.Context, caseID string) (*domain.CaseState, error) {
	return e.cases.GetByID(ctx, e.db, caseID)
}

// Activity returns the audit log for a case, after sinceSeq.
func (e *Engine) Activity(ctx context.Context, caseID string, sinceSeq int64) ([]domain.ActivityEntry, error) {
	if _, err := e.cases.GetByID(ctx, e.db, caseID); err != nil {
		return nil, err
	}
	return e.activity.ListByCase(ctx, e.db, caseID, sinceSeq)
}

// CostDeltas returns the per-call budget increments for a case.
func (e *Engine) CostDeltas(ctx context.Context, caseID string) ([]domain.CostDelta, error) {
	if _, err := e.cases.GetByID(ctx, e.db, caseID); err != nil {
		return nil, err
	}
	return e.costs.ListByCase(ctx, e.db, caseID)
}

// isRenewal reports whether the case intent describes a contract renewal,
// which restricts DTP-01 strategy options.
func isRenewal(intent string) bool {
	return strings.Contains(strings.ToLower(intent), "renew")
}

func (e *Engine) fetchData(ctx context.Context, summary domain.CaseSummary) map[string]any {
	if e.knowledge == nil {
		return nil
	}
	data, err := e.knowledge.Fetch(ctx, summary)
	if err != nil {
		e.logger.Warn("knowledge fetch failed, workers run without auxiliary data",
			"case_id", summary.CaseID, "error", err)
		return nil
	}
	return data
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
