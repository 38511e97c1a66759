package orchestrator

import "iaicore/domain/verdict"

// Metrics counts governance outcomes across a run. Reported once at the end
// of the run; the audit log remains the source of truth for per-generation
// detail.
type Metrics struct {
	GenerationsCompleted int
	ProposalsMade        int
	Accepted             int
	Rejected             int
	Modified             int
	NoChange             int
	EvidenceRequested    int
	InvariantRevisions   int
	HypothesesRegistered int
	HypothesesSuperseded int
}

func (m *Metrics) countDecision(d verdict.Decision) {
	switch d {
	case verdict.DecisionAccept:
		m.Accepted++
	case verdict.DecisionReject:
		m.Rejected++
	case verdict.DecisionModify:
		m.Modified++
	case verdict.DecisionNoChange:
		m.NoChange++
	case verdict.DecisionRequestEvidence:
		m.EvidenceRequested++
	}
}

// Snapshot returns a copy for reporting.
func (m Metrics) Snapshot() Metrics { return m }
