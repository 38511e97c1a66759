package proposal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaicore/domain/core"
	"iaicore/domain/hypothesis"
)

func base(typ Type) Proposal {
	return Proposal{
		ID:        core.ProposalID(core.NewID()),
		Type:      typ,
		CreatedAt: core.Now(),
	}
}

func TestValidateAcceptsEachVariant(t *testing.T) {
	tests := []struct {
		name string
		p    Proposal
	}{
		{"no change", func() Proposal {
			p := base(TypeNoChange)
			p.NoChange = &NoChangePayload{MetricsSummary: map[string]float64{"total_steps": 10}}
			return p
		}()},
		{"parameter adjustment", func() Proposal {
			p := base(TypeParameterAdjustment)
			p.ParameterAdjustment = &ParameterAdjustmentPayload{ParamName: "odds_min", CurrentValue: 1.5, ProposedValue: 1.65, DeltaPct: 10}
			return p
		}()},
		{"new hypothesis", func() Proposal {
			p := base(TypeNewHypothesis)
			p.NewHypothesis = &NewHypothesisPayload{Name: "edge-filter", Params: hypothesis.Params{{Name: "odds_min", Value: 1.5}}}
			return p
		}()},
		{"exploration", func() Proposal {
			p := base(TypeExploration)
			p.Exploration = &ExplorationPayload{ParamName: "odds_min", Range: [2]float64{1.2, 1.8}, Budget: 100}
			return p
		}()},
		{"invariant revision", func() Proposal {
			p := base(TypeInvariantRevision)
			p.InvariantRevision = &InvariantRevisionPayload{ThresholdUpdates: map[string]float64{"min_stability": 0.66}}
			return p
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.p.Validate())
		})
	}
}

func TestValidateRejectsMalformedUnions(t *testing.T) {
	missing := base(TypeNoChange)

	mismatched := base(TypeNoChange)
	mismatched.Exploration = &ExplorationPayload{ParamName: "odds_min"}

	double := base(TypeNoChange)
	double.NoChange = &NoChangePayload{}
	double.Exploration = &ExplorationPayload{ParamName: "odds_min"}

	unknown := base(Type("rewrite_everything"))
	unknown.NoChange = &NoChangePayload{}

	assert.Error(t, missing.Validate())
	assert.Error(t, mismatched.Validate())
	assert.Error(t, double.Validate())
	assert.ErrorIs(t, unknown.Validate(), core.ErrUnknownProposalType)
}

func TestSetValidateEnforcesHeartbeat(t *testing.T) {
	assert.ErrorIs(t, Set{}.Validate(), core.ErrEmptyProposalSet)

	quiet := base(TypeNoChange)
	quiet.NoChange = &NoChangePayload{MetricsSummary: map[string]float64{"total_steps": 10}}
	assert.NoError(t, Set{quiet}.Validate())

	bad := base(TypeExploration) // payload missing
	assert.Error(t, Set{quiet, bad}.Validate())
}

func TestDecodeRejectsBadInput(t *testing.T) {
	valid := base(TypeNoChange)
	valid.NoChange = &NoChangePayload{MetricsSummary: map[string]float64{"total_steps": 10}}
	data, err := json.Marshal(valid)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, valid.ID, decoded.ID)
	assert.Equal(t, TypeNoChange, decoded.Type)

	_, err = Decode([]byte(`{"type": "no_change", "no_change":`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type": "rewrite_everything"}`))
	assert.ErrorIs(t, err, core.ErrUnknownProposalType)
}

func TestSeverityForLadder(t *testing.T) {
	tests := []struct {
		name     string
		signal   StrainSignal
		expected Severity
	}{
		{"double the threshold", StrainSignal{Value: 2.4, Threshold: 1.2}, SeverityCritical},
		{"half again over", StrainSignal{Value: 1.8, Threshold: 1.2}, SeverityHigh},
		{"fifth over", StrainSignal{Value: 1.5, Threshold: 1.2}, SeverityMedium},
		{"barely over", StrainSignal{Value: 1.25, Threshold: 1.2}, SeverityLow},
		{"zero threshold defaults medium", StrainSignal{Value: 0.3, Threshold: 0}, SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SeverityFor(tt.signal))
		})
	}
}
