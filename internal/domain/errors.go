package domain

import "fmt"

// EngineError is the unified error type for the engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Is allows errors.Is matching on the numeric code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && t.Code == e.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Case / Router / Orchestrator errors (-32010 to -32039) ----

var (
	ErrInvalidTransition = &EngineError{Code: -32010, Message: "invalid stage transition"}
	ErrCaseNotFound      = &EngineError{Code: -32011, Message: "case not found"}
	ErrCaseAlreadyDone   = &EngineError{Code: -32012, Message: "case already completed"}
	ErrCaseRejected      = &EngineError{Code: -32013, Message: "case was rejected"}
	ErrOptimisticLock    = &EngineError{Code: -32014, Message: "optimistic lock conflict: state was modified concurrently"}
	ErrInvalidStage      = &EngineError{Code: -32015, Message: "invalid stage value"}
	ErrDuplicateCase     = &EngineError{Code: -32016, Message: "case already exists"}
	ErrResultInvalid     = &EngineError{Code: -32017, Message: "result variant invariant violated"}
	ErrMaxIterations     = &EngineError{Code: -32018, Message: "maximum orchestrator iterations exceeded"}
)

// ---- Worker / Registry errors (-32040 to -32069) ----

var (
	ErrWorkerNotFound   = &EngineError{Code: -32040, Message: "worker not registered"}
	ErrWorkerFailed     = &EngineError{Code: -32041, Message: "worker invocation failed"}
	ErrUnknownResult    = &EngineError{Code: -32042, Message: "worker returned unknown result kind"}
	ErrRouteUnavailable = &EngineError{Code: -32043, Message: "fallback router proposed an unregistered worker"}
)

// ---- Human gate errors (-32070 to -32099) ----

var (
	ErrNotAwaitingHuman = &EngineError{Code: -32070, Message: "case is not awaiting a human decision"}
	ErrAlreadyResumed   = &EngineError{Code: -32071, Message: "case was already resumed"}
	ErrDecisionInvalid  = &EngineError{Code: -32072, Message: "human decision is invalid"}
	ErrAwaitingHuman    = &EngineError{Code: -32073, Message: "case is awaiting a human decision"}
)

// ---- Guard / Budget errors (-32100 to -32129) ----

var (
	ErrBudgetExceeded = &EngineError{Code: -32100, Message: "budget ceiling exceeded"}
	ErrCycleDetected  = &EngineError{Code: -32101, Message: "worker/result cycle detected"}
)

// ---- Store / Config errors (-32130 to -32159) ----

var (
	ErrStoreInit       = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery      = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite      = &EngineError{Code: -32132, Message: "store write failed"}
	ErrSnapshotCorrupt = &EngineError{Code: -32133, Message: "snapshot checksum mismatch"}
	ErrSnapshotMissing = &EngineError{Code: -32134, Message: "no resume snapshot for case"}
	ErrConfigInvalid   = &EngineError{Code: -32135, Message: "invalid configuration"}
	ErrPolicyInvalid   = &EngineError{Code: -32136, Message: "invalid policy definition"}
)
