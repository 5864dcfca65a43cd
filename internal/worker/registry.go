package worker

import (
	"sort"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// Registry holds the workers available to the router. Registration happens
// at startup; lookups afterward are read-only, so no lock is needed.
type Registry struct {
	workers map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: map[string]Capability{}}
}

// Register adds a worker, replacing any prior registration under the name.
func (r *Registry) Register(w Capability) {
	r.workers[w.Name()] = w
}

// Get returns the worker registered under name.
func (r *Registry) Get(name string) (Capability, error) {
	w, ok := r.workers[name]
	if !ok {
		return nil, domain.NewEngineError(domain.ErrWorkerNotFound.Code, "worker not registered: "+name)
	}
	return w, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.workers[name]
	return ok
}

// Names returns all registered worker names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDefaultRegistry returns a registry populated with the deterministic
// reference workers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&StrategyWorker{})
	r.Register(&SupplierScoringWorker{})
	r.Register(&RFxDrafterWorker{})
	r.Register(&NegotiationWorker{})
	r.Register(&ContractWorker{})
	r.Register(&ImplementationWorker{})
	r.Register(&SignalWorker{})
	r.Register(&ClarifierWorker{})
	return r
}
