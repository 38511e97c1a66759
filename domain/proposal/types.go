package proposal

import (
	"encoding/json"
	"fmt"

	"iaicore/domain/core"
	"iaicore/domain/hypothesis"
)

// Type is the closed set of proposal kinds a Challenger may emit. Anything
// else is rejected at the boundary.
type Type string

const (
	TypeNoChange            Type = "no_change"
	TypeParameterAdjustment Type = "parameter_adjustment"
	TypeNewHypothesis       Type = "new_hypothesis"
	TypeExploration         Type = "exploration"
	TypeInvariantRevision   Type = "invariant_revision"
)

// KnownType reports whether t is in the closed set.
func KnownType(t Type) bool {
	switch t {
	case TypeNoChange, TypeParameterAdjustment, TypeNewHypothesis, TypeExploration, TypeInvariantRevision:
		return true
	}
	return false
}

// Severity classifies a critique
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// StrainSignal is a single detected strain indicator from the optimizer
// trace, with the observed value and the threshold it was compared against.
type StrainSignal struct {
	Name        string  `json:"name"`
	Detected    bool    `json:"detected"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	Description string  `json:"description,omitempty"`
}

// SeverityFor grades a signal by how far its value exceeds the threshold.
func SeverityFor(s StrainSignal) Severity {
	if s.Threshold == 0 {
		return SeverityMedium
	}
	ratio := s.Value / s.Threshold
	switch {
	case ratio >= 2.0:
		return SeverityCritical
	case ratio >= 1.5:
		return SeverityHigh
	case ratio >= 1.2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Critique is a natural-language assessment of why the current invariants
// or parameters may be mis-specified, tied to the signal that triggered it.
type Critique struct {
	Severity    Severity           `json:"severity"`
	Signal      string             `json:"signal"`
	Description string             `json:"description"`
	Evidence    map[string]float64 `json:"evidence,omitempty"`
}

// RiskAssessment states how risky and how reversible a proposed change is.
type RiskAssessment struct {
	Risk       Severity `json:"risk"`
	Reversible bool     `json:"reversible"`
	Notes      string   `json:"notes,omitempty"`
}

// Per-variant payloads. Exactly one must be present and it must match Type.

// NoChangePayload carries the heartbeat metrics summary for a cycle in
// which no strain fired.
type NoChangePayload struct {
	MetricsSummary map[string]float64 `json:"metrics_summary"`
}

// ParameterAdjustmentPayload proposes a bounded delta on one parameter of
// an existing hypothesis.
type ParameterAdjustmentPayload struct {
	HypothesisID  core.HypothesisID `json:"hypothesis_id"`
	ParamName     string            `json:"param_name"`
	CurrentValue  float64           `json:"current_value"`
	ProposedValue float64           `json:"proposed_value"`
	DeltaPct      float64           `json:"delta_pct"`
}

// NewHypothesisPayload proposes registering a fresh hypothesis formulation.
type NewHypothesisPayload struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Params      hypothesis.Params `json:"params"`
}

// ExplorationPayload proposes spending budget probing a parameter range
// before committing to an adjustment.
type ExplorationPayload struct {
	ParamName string     `json:"param_name"`
	Range     [2]float64 `json:"range"`
	Budget    int        `json:"budget"`
}

// InvariantRevisionPayload proposes threshold updates to the binding
// invariant set. Advisory only: the Challenger never applies these.
type InvariantRevisionPayload struct {
	ThresholdUpdates map[string]float64 `json:"threshold_updates"`
	Rationale        string             `json:"rationale"`
}

// Proposal is a Challenger output. The payload is a tagged union keyed by
// Type; Validate enforces that exactly the matching variant is set.
type Proposal struct {
	ID            core.ProposalID     `json:"id"`
	Type          Type                `json:"type"`
	Generation    core.Generation     `json:"generation"`
	HypothesisIDs []core.HypothesisID `json:"hypothesis_ids,omitempty"`
	Signals       []StrainSignal      `json:"signals,omitempty"`
	Critiques     []Critique          `json:"critiques,omitempty"`
	Risk          RiskAssessment      `json:"risk"`
	CreatedAt     core.Timestamp      `json:"created_at"`

	NoChange            *NoChangePayload            `json:"no_change,omitempty"`
	ParameterAdjustment *ParameterAdjustmentPayload `json:"parameter_adjustment,omitempty"`
	NewHypothesis       *NewHypothesisPayload       `json:"new_hypothesis,omitempty"`
	Exploration         *ExplorationPayload         `json:"exploration,omitempty"`
	InvariantRevision   *InvariantRevisionPayload   `json:"invariant_revision,omitempty"`
}

// Validate checks the tagged-union invariant: a known type with exactly the
// matching payload present.
func (p Proposal) Validate() error {
	if !KnownType(p.Type) {
		return fmt.Errorf("%w: %q", core.ErrUnknownProposalType, p.Type)
	}

	present := 0
	var match bool
	if p.NoChange != nil {
		present++
		match = match || p.Type == TypeNoChange
	}
	if p.ParameterAdjustment != nil {
		present++
		match = match || p.Type == TypeParameterAdjustment
	}
	if p.NewHypothesis != nil {
		present++
		match = match || p.Type == TypeNewHypothesis
	}
	if p.Exploration != nil {
		present++
		match = match || p.Type == TypeExploration
	}
	if p.InvariantRevision != nil {
		present++
		match = match || p.Type == TypeInvariantRevision
	}

	if present != 1 || !match {
		return fmt.Errorf("proposal %s: type %q requires exactly its own payload, found %d payload(s)", p.ID, p.Type, present)
	}
	return nil
}

// Set is the per-cycle proposal collection. The heartbeat invariant says it
// is never empty: cycles without strain carry a single no_change proposal.
type Set []Proposal

// Validate enforces the heartbeat invariant and per-proposal validity.
func (s Set) Validate() error {
	if len(s) == 0 {
		return core.ErrEmptyProposalSet
	}
	for _, p := range s {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses a proposal from JSON and rejects malformed or unknown-typed
// payloads at the boundary.
func Decode(data []byte) (Proposal, error) {
	var p Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return Proposal{}, fmt.Errorf("decode proposal: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Proposal{}, err
	}
	return p, nil
}
