package hypothesis

import (
	"fmt"

	"iaicore/domain/core"
)

// Status represents the lifecycle state of a hypothesis
type Status string

const (
	StatusProposed   Status = "PROPOSED"
	StatusEvaluating Status = "EVALUATING"
	StatusAccepted   Status = "ACCEPTED"
	StatusRejected   Status = "REJECTED"
)

// validTransitions is the complete lifecycle state machine. Transitions are
// monotonic: a hypothesis never re-enters PROPOSED; supersession happens by
// cloning a new version, never by rewinding status.
var validTransitions = map[Status][]Status{
	StatusProposed:   {StatusEvaluating},
	StatusEvaluating: {StatusAccepted, StatusRejected},
}

// CanTransition reports whether the edge from -> to is in the state machine.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing edges.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// Param is a single named parameter of a hypothesis. Parameters are kept as
// an ordered slice rather than a map so two hypotheses with the same values
// in a different declaration order are distinguishable and serialization is
// deterministic.
type Param struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Params is an ordered parameter list
type Params []Param

// Get returns the value for name and whether it was present.
func (p Params) Get(name string) (float64, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return 0, false
}

// With returns a copy of the parameter list with name set to value,
// preserving order. Unknown names are appended.
func (p Params) With(name string, value float64) Params {
	out := make(Params, len(p))
	copy(out, p)
	for i, param := range out {
		if param.Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Param{Name: name, Value: value})
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	copy(out, p)
	return out
}

// Hypothesis is a named, versioned formulation of a strategy or evaluation
// metric under lifecycle management.
type Hypothesis struct {
	ID           core.HypothesisID `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Version      int               `json:"version"`
	Params       Params            `json:"params"`
	Status       Status            `json:"status"`
	CreatedGen   core.Generation   `json:"created_generation"`
	EvidenceID   core.EvidenceID   `json:"evidence_id,omitempty"`
	SupersededBy core.HypothesisID `json:"superseded_by,omitempty"`
	CreatedAt    core.Timestamp    `json:"created_at"`
}

// New creates a PROPOSED hypothesis at version 1.
func New(name, description string, params Params, gen core.Generation) *Hypothesis {
	return &Hypothesis{
		ID:          core.HypothesisID(core.NewID()),
		Name:        name,
		Description: description,
		Version:     1,
		Params:      params.Clone(),
		Status:      StatusProposed,
		CreatedGen:  gen,
		CreatedAt:   core.Now(),
	}
}

// CloneWithParams creates a successor version of h with new parameters. The
// clone gets a fresh identifier and starts its own lifecycle at PROPOSED;
// the original is untouched (supersession is recorded by the caller, not
// destructive).
func (h *Hypothesis) CloneWithParams(params Params, gen core.Generation) *Hypothesis {
	return &Hypothesis{
		ID:          core.HypothesisID(core.NewID()),
		Name:        h.Name,
		Description: fmt.Sprintf("%s (v%d)", h.Description, h.Version+1),
		Version:     h.Version + 1,
		Params:      params.Clone(),
		Status:      StatusProposed,
		CreatedGen:  gen,
		CreatedAt:   core.Now(),
	}
}
