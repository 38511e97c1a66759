package authority

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaicore/domain/core"
	"iaicore/domain/evidence"
	"iaicore/domain/invariant"
	"iaicore/domain/proposal"
	"iaicore/domain/verdict"
	"iaicore/internal/config"
)

func newAuthority(strictness string) *Authority {
	return New(config.AuthorityConfig{Strictness: strictness}, 30)
}

func bindingSet() invariant.Set {
	return invariant.Bootstrap("mean_payoff", map[string]float64{
		invariant.ThresholdMinEdge:       0.0,
		invariant.ThresholdMinSample:     30,
		invariant.ThresholdStability:     0.60,
		invariant.ThresholdMaxParamDelta: 20.0,
	})
}

func firedSignal() proposal.StrainSignal {
	return proposal.StrainSignal{Name: "outcome_variance_spike", Detected: true, Value: 2.0, Threshold: 1.5}
}

func adjustmentProposal(hypID core.HypothesisID, current, proposed float64) proposal.Proposal {
	return proposal.Proposal{
		ID:         core.ProposalID(core.NewID()),
		Type:       proposal.TypeParameterAdjustment,
		Generation: 2,
		Signals:    []proposal.StrainSignal{firedSignal()},
		ParameterAdjustment: &proposal.ParameterAdjustmentPayload{
			HypothesisID:  hypID,
			ParamName:     "odds_min",
			CurrentValue:  current,
			ProposedValue: proposed,
			DeltaPct:      100 * (proposed - current) / current,
		},
		CreatedAt: core.Now(),
	}
}

func strongEvidence(hypID core.HypothesisID) evidence.Package {
	return evidence.Package{
		ID:             core.EvidenceID(core.NewID()),
		HypothesisID:   hypID,
		PointEstimate:  0.05,
		CILower:        0.01,
		CIUpper:        0.09,
		Confidence:     0.95,
		SampleSize:     120,
		PValue:         0.002,
		Significant:    true,
		Stable:         true,
		StabilityScore: 0.75,
		ComputedAt:     core.Now(),
	}
}

func TestReview_StrongEvidenceAcceptedStrict(t *testing.T) {
	a := newAuthority("strict")
	hypID := core.HypothesisID(core.NewID())
	p := adjustmentProposal(hypID, 1.5, 1.65)

	v, err := a.Review(context.Background(), p, []evidence.Package{strongEvidence(hypID)}, bindingSet())

	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionAccept, v.Decision)
	assert.Equal(t, p.ID, v.ProposalID)
	assert.Equal(t, 0.8, v.Confidence)
	assert.Equal(t, "rules/strict", v.Backend)
	assert.NotEmpty(t, v.Rationale)
}

func TestReview_UnstableEvidenceRejectedStrictAcceptedBalanced(t *testing.T) {
	hypID := core.HypothesisID(core.NewID())
	p := adjustmentProposal(hypID, 1.5, 1.65)

	ev := strongEvidence(hypID)
	ev.Stable = false
	ev.StabilityScore = 0.50

	vStrict, err := newAuthority("strict").Review(context.Background(), p, []evidence.Package{ev}, bindingSet())
	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionReject, vStrict.Decision)
	assert.True(t, vStrict.HasHighSeverityConcern())
	assert.NotEmpty(t, vStrict.Rationale, "rejection must carry a rationale")

	vBalanced, err := newAuthority("balanced").Review(context.Background(), p, []evidence.Package{ev}, bindingSet())
	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionAccept, vBalanced.Decision)
	assert.Equal(t, 0.6, vBalanced.Confidence)
}

func TestReview_CINotClearingEdgeRejectedStrict(t *testing.T) {
	hypID := core.HypothesisID(core.NewID())
	p := adjustmentProposal(hypID, 1.5, 1.65)

	ev := strongEvidence(hypID)
	ev.CILower = -0.01 // estimate positive but interval straddles zero

	v, err := newAuthority("strict").Review(context.Background(), p, []evidence.Package{ev}, bindingSet())
	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionReject, v.Decision)
}

func TestReview_MissingEvidenceRequestsMore(t *testing.T) {
	a := newAuthority("strict")
	p := adjustmentProposal(core.HypothesisID(core.NewID()), 1.5, 1.65)

	v, err := a.Review(context.Background(), p, nil, bindingSet())
	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionRequestEvidence, v.Decision)
}

func TestReview_SmallSampleRequestsMore(t *testing.T) {
	a := newAuthority("strict")
	hypID := core.HypothesisID(core.NewID())
	p := adjustmentProposal(hypID, 1.5, 1.65)

	ev := strongEvidence(hypID)
	ev.SampleSize = 12

	v, err := a.Review(context.Background(), p, []evidence.Package{ev}, bindingSet())
	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionRequestEvidence, v.Decision)
}

func TestReview_MalformedEvidenceRejected(t *testing.T) {
	a := newAuthority("permissive")
	hypID := core.HypothesisID(core.NewID())
	p := adjustmentProposal(hypID, 1.5, 1.65)

	ev := strongEvidence(hypID)
	ev.CILower = 0.2 // lower bound above the point estimate

	v, err := a.Review(context.Background(), p, []evidence.Package{ev}, bindingSet())
	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionReject, v.Decision, "fail-safe: malformed evidence never passes")
}

func TestReview_OversizedDeltaModified(t *testing.T) {
	a := newAuthority("strict")
	hypID := core.HypothesisID(core.NewID())
	p := adjustmentProposal(hypID, 1.0, 1.5) // +50%, bound is 20%

	v, err := a.Review(context.Background(), p, []evidence.Package{strongEvidence(hypID)}, bindingSet())
	require.NoError(t, err)
	require.Equal(t, verdict.DecisionModify, v.Decision)
	require.Contains(t, v.SuggestedAdjustment, "odds_min")
	assert.InDelta(t, 1.2, v.SuggestedAdjustment["odds_min"], 1e-9)
}

func TestReview_NoChangeAcknowledged(t *testing.T) {
	a := newAuthority("strict")
	p := proposal.Proposal{
		ID:         core.ProposalID(core.NewID()),
		Type:       proposal.TypeNoChange,
		Generation: 1,
		NoChange:   &proposal.NoChangePayload{MetricsSummary: map[string]float64{"total_steps": 300}},
		CreatedAt:  core.Now(),
	}

	v, err := a.Review(context.Background(), p, nil, bindingSet())
	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionNoChange, v.Decision)
	assert.False(t, v.Decision.AppliesChange())
}

func TestReview_MalformedProposalRejected(t *testing.T) {
	a := newAuthority("permissive")
	p := proposal.Proposal{
		ID:         core.ProposalID(core.NewID()),
		Type:       proposal.TypeNoChange,
		Generation: 1,
		// payload does not match the declared type
		Exploration: &proposal.ExplorationPayload{ParamName: "odds_min", Range: [2]float64{1, 2}, Budget: 100},
		CreatedAt:   core.Now(),
	}

	v, err := a.Review(context.Background(), p, nil, bindingSet())
	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionReject, v.Decision)
}

func TestReview_InvariantRevision(t *testing.T) {
	a := newAuthority("balanced")
	active := bindingSet()

	t.Run("signal-backed within bound accepts", func(t *testing.T) {
		p := proposal.Proposal{
			ID:         core.ProposalID(core.NewID()),
			Type:       proposal.TypeInvariantRevision,
			Generation: 3,
			Signals:    []proposal.StrainSignal{firedSignal()},
			InvariantRevision: &proposal.InvariantRevisionPayload{
				ThresholdUpdates: map[string]float64{invariant.ThresholdStability: 0.66},
				Rationale:        "demand stronger cross-period consistency",
			},
			CreatedAt: core.Now(),
		}
		v, err := a.Review(context.Background(), p, nil, active)
		require.NoError(t, err)
		assert.Equal(t, verdict.DecisionAccept, v.Decision)
	})

	t.Run("oversized move is clamped", func(t *testing.T) {
		p := proposal.Proposal{
			ID:         core.ProposalID(core.NewID()),
			Type:       proposal.TypeInvariantRevision,
			Generation: 3,
			Signals:    []proposal.StrainSignal{firedSignal()},
			InvariantRevision: &proposal.InvariantRevisionPayload{
				ThresholdUpdates: map[string]float64{invariant.ThresholdStability: 0.90},
				Rationale:        "tighten hard",
			},
			CreatedAt: core.Now(),
		}
		v, err := a.Review(context.Background(), p, nil, active)
		require.NoError(t, err)
		require.Equal(t, verdict.DecisionModify, v.Decision)
		assert.InDelta(t, 0.72, v.SuggestedAdjustment[invariant.ThresholdStability], 1e-9)
	})

	t.Run("unbacked revision rejected", func(t *testing.T) {
		p := proposal.Proposal{
			ID:         core.ProposalID(core.NewID()),
			Type:       proposal.TypeInvariantRevision,
			Generation: 3,
			InvariantRevision: &proposal.InvariantRevisionPayload{
				ThresholdUpdates: map[string]float64{invariant.ThresholdStability: 0.66},
				Rationale:        "just because",
			},
			CreatedAt: core.Now(),
		}
		v, err := a.Review(context.Background(), p, nil, active)
		require.NoError(t, err)
		assert.Equal(t, verdict.DecisionReject, v.Decision)
	})
}

func TestReview_UnknownStrictnessFallsBackToStrict(t *testing.T) {
	a := newAuthority("reckless")
	assert.Equal(t, "rules/strict", a.Name())
}

// --- fail-safe wrapper ---

type stubAuthority struct {
	verdict verdict.Verdict
	err     error
	delay   time.Duration
}

func (s *stubAuthority) Name() string { return "stub" }

func (s *stubAuthority) Review(ctx context.Context, p proposal.Proposal, ev []evidence.Package, active invariant.Set) (verdict.Verdict, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return verdict.Verdict{}, ctx.Err()
		}
	}
	return s.verdict, s.err
}

func TestFailsafe_BackendErrorBecomesReject(t *testing.T) {
	f := NewFailsafe(&stubAuthority{err: errors.New("connection refused")}, time.Second)
	p := adjustmentProposal(core.HypothesisID(core.NewID()), 1.5, 1.65)

	v, err := f.Review(context.Background(), p, nil, bindingSet())

	require.NoError(t, err, "the fail-safe never propagates errors")
	assert.Equal(t, verdict.DecisionReject, v.Decision)
	assert.Contains(t, v.Rationale, "connection refused")
}

func TestFailsafe_TimeoutBecomesReject(t *testing.T) {
	f := NewFailsafe(&stubAuthority{delay: time.Second}, 10*time.Millisecond)
	p := adjustmentProposal(core.HypothesisID(core.NewID()), 1.5, 1.65)

	v, err := f.Review(context.Background(), p, nil, bindingSet())

	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionReject, v.Decision)
}

func TestFailsafe_PassesThroughGoodVerdict(t *testing.T) {
	want := verdict.New(core.ProposalID(core.NewID()), 1, verdict.DecisionAccept, "fine", 0.9)
	f := NewFailsafe(&stubAuthority{verdict: want}, time.Second)
	p := adjustmentProposal(core.HypothesisID(core.NewID()), 1.5, 1.65)

	v, err := f.Review(context.Background(), p, nil, bindingSet())

	require.NoError(t, err)
	assert.Equal(t, want.Decision, v.Decision)
	assert.Equal(t, want.ID, v.ID)
}

func TestFailsafe_EmptyDecisionBecomesReject(t *testing.T) {
	f := NewFailsafe(&stubAuthority{}, time.Second)
	p := adjustmentProposal(core.HypothesisID(core.NewID()), 1.5, 1.65)

	v, err := f.Review(context.Background(), p, nil, bindingSet())

	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionReject, v.Decision)
}

func TestFailsafe_HeartbeatDecisionPinnedToNoChange(t *testing.T) {
	// Backends come and go; the wrapper guarantees a no_change proposal can
	// never carry a state-changing decision into the loop.
	p := proposal.Proposal{
		ID:         core.ProposalID(core.NewID()),
		Type:       proposal.TypeNoChange,
		Generation: 1,
		NoChange:   &proposal.NoChangePayload{MetricsSummary: map[string]float64{"total_steps": 300}},
		CreatedAt:  core.Now(),
	}
	stray := verdict.New(p.ID, p.Generation, verdict.DecisionAccept, "looks fine", 0.9)
	stray.Backend = "stub"
	f := NewFailsafe(&stubAuthority{verdict: stray}, time.Second)

	v, err := f.Review(context.Background(), p, nil, bindingSet())

	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionNoChange, v.Decision, "a no_change proposal never yields ACCEPT")
	assert.Contains(t, v.Rationale, "ACCEPT")
}

func TestFailsafe_NoChangeOnStateChangeBecomesReject(t *testing.T) {
	p := adjustmentProposal(core.HypothesisID(core.NewID()), 1.5, 1.65)
	stray := verdict.New(p.ID, p.Generation, verdict.DecisionNoChange, "nothing to do", 0.9)
	stray.Backend = "stub"
	f := NewFailsafe(&stubAuthority{verdict: stray}, time.Second)

	v, err := f.Review(context.Background(), p, nil, bindingSet())

	require.NoError(t, err)
	assert.Equal(t, verdict.DecisionReject, v.Decision)
	assert.Contains(t, v.Rationale, "parameter_adjustment")
}
