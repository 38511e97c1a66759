package ports

import (
	"iaicore/domain/core"
	"iaicore/domain/hypothesis"
)

// RegistryPort tracks hypotheses and enforces the lifecycle state machine.
type RegistryPort interface {
	// Register adds a new hypothesis; fails with ErrDuplicateID when the
	// identifier is already known.
	Register(h *hypothesis.Hypothesis) error

	// Transition moves a hypothesis along a valid lifecycle edge; any other
	// edge fails with ErrInvalidTransition.
	Transition(id core.HypothesisID, next hypothesis.Status) error

	// AttachEvidence records the latest evidence package reference.
	AttachEvidence(id core.HypothesisID, evidenceID core.EvidenceID) error

	// Get returns the hypothesis or ErrHypothesisNotFound.
	Get(id core.HypothesisID) (*hypothesis.Hypothesis, error)

	// All returns every registered hypothesis, past and present.
	All() []*hypothesis.Hypothesis

	// ListByStatus returns hypotheses currently in the given status.
	ListByStatus(status hypothesis.Status) []*hypothesis.Hypothesis

	// Supersede clones an accepted hypothesis into a new PROPOSED version
	// with updated parameters, records the supersession on the original,
	// and registers the clone.
	Supersede(id core.HypothesisID, params hypothesis.Params, gen core.Generation) (*hypothesis.Hypothesis, error)
}
