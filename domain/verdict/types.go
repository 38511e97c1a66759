package verdict

import (
	"iaicore/domain/core"
)

// Decision is the Authority's ruling on one proposal.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
	DecisionModify Decision = "MODIFY"
	// DecisionNoChange acknowledges a no_change heartbeat proposal. It is
	// the only valid decision for that proposal type.
	DecisionNoChange Decision = "NO_CHANGE"
	// DecisionRequestEvidence defers judgment until more data exists,
	// typically after an insufficient-sample evaluation.
	DecisionRequestEvidence Decision = "REQUEST_EVIDENCE"
)

// AppliesChange reports whether the decision ratifies a state mutation.
func (d Decision) AppliesChange() bool {
	return d == DecisionAccept || d == DecisionModify
}

// Concern is a named reservation the Authority attaches to a verdict.
type Concern struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Verdict is an Authority output: an append-only audit record, never
// revised in place. SuggestedAdjustment is only set on MODIFY and carries
// the Authority's bounded counter-proposal.
type Verdict struct {
	ID         core.VerdictID  `json:"id"`
	ProposalID core.ProposalID `json:"proposal_id"`
	Generation core.Generation `json:"generation"`
	Decision   Decision        `json:"decision"`
	Rationale  string          `json:"rationale"`
	Confidence float64         `json:"confidence"`
	Concerns   []Concern       `json:"concerns,omitempty"`

	SuggestedAdjustment map[string]float64 `json:"suggested_adjustment,omitempty"`

	Backend   string         `json:"backend,omitempty"`
	CreatedAt core.Timestamp `json:"created_at"`
}

// New creates a verdict with a fresh identifier. Confidence is clamped to
// [0,1] so no backend can emit an out-of-range score.
func New(proposalID core.ProposalID, gen core.Generation, decision Decision, rationale string, confidence float64) Verdict {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Verdict{
		ID:         core.VerdictID(core.NewID()),
		ProposalID: proposalID,
		Generation: gen,
		Decision:   decision,
		Rationale:  rationale,
		Confidence: confidence,
		CreatedAt:  core.Now(),
	}
}

// HasHighSeverityConcern reports whether any attached concern is graded
// high or critical.
func (v Verdict) HasHighSeverityConcern() bool {
	for _, c := range v.Concerns {
		if c.Severity == "high" || c.Severity == "critical" {
			return true
		}
	}
	return false
}
