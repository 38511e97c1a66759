package registry

import (
	"sort"
	"sync"

	"iaicore/domain/core"
	"iaicore/domain/hypothesis"
)

// Registry tracks candidate hypotheses and enforces the lifecycle state
// machine. Identifiers are unique and immutable once registered; parameter
// changes always go through Supersede, which creates a new version with a
// new identifier and preserves full history.
type Registry struct {
	mu         sync.RWMutex
	hypotheses map[core.HypothesisID]*hypothesis.Hypothesis
	order      []core.HypothesisID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		hypotheses: make(map[core.HypothesisID]*hypothesis.Hypothesis),
	}
}

// Register adds a new hypothesis.
func (r *Registry) Register(h *hypothesis.Hypothesis) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.ID == "" {
		return core.NewInvalidTransitionError("", "", string(h.Status))
	}
	if _, exists := r.hypotheses[h.ID]; exists {
		return core.ErrDuplicateID
	}

	stored := *h
	r.hypotheses[h.ID] = &stored
	r.order = append(r.order, h.ID)
	return nil
}

// Transition moves a hypothesis along a lifecycle edge. Any edge outside
// {PROPOSED->EVALUATING, EVALUATING->ACCEPTED, EVALUATING->REJECTED} fails
// with ErrInvalidTransition.
func (r *Registry) Transition(id core.HypothesisID, next hypothesis.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hypotheses[id]
	if !ok {
		return core.ErrHypothesisNotFound
	}
	if !hypothesis.CanTransition(h.Status, next) {
		return core.NewInvalidTransitionError(id, string(h.Status), string(next))
	}
	h.Status = next
	return nil
}

// AttachEvidence records the evidence package reference on a hypothesis.
func (r *Registry) AttachEvidence(id core.HypothesisID, evidenceID core.EvidenceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hypotheses[id]
	if !ok {
		return core.ErrHypothesisNotFound
	}
	h.EvidenceID = evidenceID
	return nil
}

// Get returns a copy of the hypothesis.
func (r *Registry) Get(id core.HypothesisID) (*hypothesis.Hypothesis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hypotheses[id]
	if !ok {
		return nil, core.ErrHypothesisNotFound
	}
	out := *h
	return &out, nil
}

// ListByStatus returns copies of hypotheses in the given status, in
// registration order.
func (r *Registry) ListByStatus(status hypothesis.Status) []*hypothesis.Hypothesis {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*hypothesis.Hypothesis
	for _, id := range r.order {
		if h := r.hypotheses[id]; h.Status == status {
			copy := *h
			out = append(out, &copy)
		}
	}
	return out
}

// All returns copies of every registered hypothesis ordered by creation
// generation then registration order.
func (r *Registry) All() []*hypothesis.Hypothesis {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*hypothesis.Hypothesis, 0, len(r.order))
	for _, id := range r.order {
		copy := *r.hypotheses[id]
		out = append(out, &copy)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedGen < out[j].CreatedGen
	})
	return out
}

// Supersede clones an existing hypothesis into a new PROPOSED version with
// updated parameters. The original keeps its terminal status and records
// which version replaced it; nothing is removed.
func (r *Registry) Supersede(id core.HypothesisID, params hypothesis.Params, gen core.Generation) (*hypothesis.Hypothesis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	orig, ok := r.hypotheses[id]
	if !ok {
		return nil, core.ErrHypothesisNotFound
	}

	clone := orig.CloneWithParams(params, gen)
	stored := *clone
	r.hypotheses[clone.ID] = &stored
	r.order = append(r.order, clone.ID)
	orig.SupersededBy = clone.ID

	out := *clone
	return &out, nil
}
