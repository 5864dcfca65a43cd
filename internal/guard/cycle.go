// Package guard bounds the orchestrator loop: a hard iteration ceiling plus
// a visited set that stops worker/result ping-pong.
package guard

import (
	"github.com/atlasprocure/caseflow/internal/domain"
)

// Defaults applied when the configuration does not override them.
const (
	DefaultIterationCeiling = 20
	DefaultVisitedWindow    = 5
)

// KeyFunc derives the visited-set key for a result. The default uses
// (worker, result kind); callers needing finer dedup can include the
// decision value.
type KeyFunc func(workerName string, result *domain.Result) string

// CoarseKey keys on worker and result kind only, matching the engine's
// historical loop-prevention behavior.
func CoarseKey(workerName string, result *domain.Result) string {
	return workerName + "|" + string(result.Kind)
}

// FineKey additionally folds in the decision value, so two different
// recommendations of the same kind do not block each other.
func FineKey(workerName string, result *domain.Result) string {
	return CoarseKey(workerName, result) + "|" + result.DecisionValue()
}

// CycleGuard is scoped to a single orchestrator run and is not shared
// across cases.
type CycleGuard struct {
	ceiling    int
	window     int
	keyFn      KeyFunc
	iterations int
	visited    []string
}

// New creates a guard. Non-positive ceiling/window fall back to defaults;
// a nil keyFn uses CoarseKey.
func New(ceiling, window int, keyFn KeyFunc) *CycleGuard {
	if ceiling <= 0 {
		ceiling = DefaultIterationCeiling
	}
	if window <= 0 {
		window = DefaultVisitedWindow
	}
	if keyFn == nil {
		keyFn = CoarseKey
	}
	return &CycleGuard{ceiling: ceiling, window: window, keyFn: keyFn}
}

// Iterations returns the number of loop iterations counted so far.
func (g *CycleGuard) Iterations() int {
	return g.iterations
}

// Step counts one loop iteration. Returns ErrMaxIterations once the ceiling
// is crossed; this is the run's only fatal halt.
func (g *CycleGuard) Step() error {
	g.iterations++
	if g.iterations > g.ceiling {
		return domain.ErrMaxIterations
	}
	return nil
}

// Blocked reports whether re-invoking workerName against result would repeat
// an already-visited pair. Fallback and failed results never block: a
// transient failure must stay retryable.
func (g *CycleGuard) Blocked(workerName string, result *domain.Result) bool {
	if result == nil || result.Fallback {
		return false
	}
	key := g.keyFn(workerName, result)
	for _, v := range g.visited {
		if v == key {
			return true
		}
	}
	return false
}

// Record inserts a successful invocation into the visited set, trimming to
// the most recent window entries. Fallback results are never recorded.
func (g *CycleGuard) Record(workerName string, result *domain.Result) {
	if result == nil || result.Fallback {
		return
	}
	g.visited = append(g.visited, g.keyFn(workerName, result))
	if len(g.visited) > g.window {
		g.visited = g.visited[len(g.visited)-g.window:]
	}
}
