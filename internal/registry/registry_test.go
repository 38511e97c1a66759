package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaicore/domain/core"
	"iaicore/domain/hypothesis"
)

func newHypothesis(name string, gen core.Generation) *hypothesis.Hypothesis {
	return hypothesis.New(name, "test hypothesis", hypothesis.Params{{Name: "odds_min", Value: 1.5}}, gen)
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	h := newHypothesis("edge-filter", 0)
	require.NoError(t, r.Register(h))

	got, err := r.Get(h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
	assert.Equal(t, hypothesis.StatusProposed, got.Status)

	// Get returns a copy: mutating it must not leak into the registry.
	got.Status = hypothesis.StatusAccepted
	again, err := r.Get(h.ID)
	require.NoError(t, err)
	assert.Equal(t, hypothesis.StatusProposed, again.Status)
}

func TestRegisterRejectsDuplicateAndEmptyID(t *testing.T) {
	r := New()
	h := newHypothesis("edge-filter", 0)
	require.NoError(t, r.Register(h))

	assert.ErrorIs(t, r.Register(h), core.ErrDuplicateID)

	blank := newHypothesis("blank", 0)
	blank.ID = ""
	assert.ErrorIs(t, r.Register(blank), core.ErrInvalidTransition)
}

func TestTransitionLifecycle(t *testing.T) {
	r := New()
	h := newHypothesis("edge-filter", 0)
	require.NoError(t, r.Register(h))

	require.NoError(t, r.Transition(h.ID, hypothesis.StatusEvaluating))
	require.NoError(t, r.Transition(h.ID, hypothesis.StatusAccepted))

	got, err := r.Get(h.ID)
	require.NoError(t, err)
	assert.Equal(t, hypothesis.StatusAccepted, got.Status)
}

func TestTransitionRejectsInvalidEdges(t *testing.T) {
	tests := []struct {
		name string
		path []hypothesis.Status
		next hypothesis.Status
	}{
		{"skip evaluation", nil, hypothesis.StatusAccepted},
		{"rewind to proposed", []hypothesis.Status{hypothesis.StatusEvaluating}, hypothesis.StatusProposed},
		{"leave accepted", []hypothesis.Status{hypothesis.StatusEvaluating, hypothesis.StatusAccepted}, hypothesis.StatusEvaluating},
		{"leave rejected", []hypothesis.Status{hypothesis.StatusEvaluating, hypothesis.StatusRejected}, hypothesis.StatusEvaluating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			h := newHypothesis("edge-filter", 0)
			require.NoError(t, r.Register(h))
			for _, status := range tt.path {
				require.NoError(t, r.Transition(h.ID, status))
			}

			err := r.Transition(h.ID, tt.next)
			assert.ErrorIs(t, err, core.ErrInvalidTransition)
		})
	}
}

func TestTransitionUnknownHypothesis(t *testing.T) {
	r := New()
	err := r.Transition(core.HypothesisID("missing"), hypothesis.StatusEvaluating)
	assert.ErrorIs(t, err, core.ErrHypothesisNotFound)
}

func TestAttachEvidence(t *testing.T) {
	r := New()
	h := newHypothesis("edge-filter", 0)
	require.NoError(t, r.Register(h))

	evID := core.EvidenceID(core.NewID())
	require.NoError(t, r.AttachEvidence(h.ID, evID))

	got, err := r.Get(h.ID)
	require.NoError(t, err)
	assert.Equal(t, evID, got.EvidenceID)

	assert.ErrorIs(t, r.AttachEvidence(core.HypothesisID("missing"), evID), core.ErrHypothesisNotFound)
}

func TestListByStatusKeepsRegistrationOrder(t *testing.T) {
	r := New()
	first := newHypothesis("first", 0)
	second := newHypothesis("second", 0)
	third := newHypothesis("third", 0)
	for _, h := range []*hypothesis.Hypothesis{first, second, third} {
		require.NoError(t, r.Register(h))
	}
	require.NoError(t, r.Transition(second.ID, hypothesis.StatusEvaluating))

	proposed := r.ListByStatus(hypothesis.StatusProposed)
	require.Len(t, proposed, 2)
	assert.Equal(t, first.ID, proposed[0].ID)
	assert.Equal(t, third.ID, proposed[1].ID)

	evaluating := r.ListByStatus(hypothesis.StatusEvaluating)
	require.Len(t, evaluating, 1)
	assert.Equal(t, second.ID, evaluating[0].ID)
}

func TestAllOrdersByCreationGeneration(t *testing.T) {
	r := New()
	later := newHypothesis("later", 3)
	earlier := newHypothesis("earlier", 1)
	require.NoError(t, r.Register(later))
	require.NoError(t, r.Register(earlier))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, earlier.ID, all[0].ID)
	assert.Equal(t, later.ID, all[1].ID)
}

func TestSupersedePreservesHistory(t *testing.T) {
	r := New()
	h := newHypothesis("edge-filter", 0)
	require.NoError(t, r.Register(h))
	require.NoError(t, r.Transition(h.ID, hypothesis.StatusEvaluating))
	require.NoError(t, r.Transition(h.ID, hypothesis.StatusAccepted))

	next, err := r.Supersede(h.ID, h.Params.With("odds_min", 1.8), 2)
	require.NoError(t, err)

	assert.NotEqual(t, h.ID, next.ID)
	assert.Equal(t, 2, next.Version)
	assert.Equal(t, hypothesis.StatusProposed, next.Status)
	assert.Equal(t, core.Generation(2), next.CreatedGen)
	value, ok := next.Params.Get("odds_min")
	require.True(t, ok)
	assert.InDelta(t, 1.8, value, 1e-9)

	orig, err := r.Get(h.ID)
	require.NoError(t, err)
	assert.Equal(t, hypothesis.StatusAccepted, orig.Status)
	assert.Equal(t, next.ID, orig.SupersededBy)
	value, ok = orig.Params.Get("odds_min")
	require.True(t, ok)
	assert.InDelta(t, 1.5, value, 1e-9)

	_, err = r.Supersede(core.HypothesisID("missing"), nil, 2)
	assert.ErrorIs(t, err, core.ErrHypothesisNotFound)
}
