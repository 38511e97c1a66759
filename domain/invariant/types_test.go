package invariant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaicore/domain/core"
)

func TestBootstrapStartsAtVersionZero(t *testing.T) {
	s := Bootstrap("mean_payoff", map[string]float64{ThresholdMinEdge: 0.01})

	assert.Equal(t, core.InvariantVersion(0), s.Version)
	assert.Equal(t, "mean_payoff", s.PrimaryMetric)
	assert.InDelta(t, 0.01, s.Thresholds[ThresholdMinEdge], 1e-9)
	assert.Empty(t, s.VerdictID)
}

func TestThresholdFallback(t *testing.T) {
	s := Bootstrap("mean_payoff", map[string]float64{ThresholdMinSample: 50})

	assert.InDelta(t, 50, s.Threshold(ThresholdMinSample, 30), 1e-9)
	assert.InDelta(t, 30, s.Threshold("nonexistent", 30), 1e-9)
}

func TestReviseLeavesOriginalIntact(t *testing.T) {
	s := Bootstrap("mean_payoff", map[string]float64{
		ThresholdMinEdge:   0.01,
		ThresholdStability: 0.60,
	})
	verdictID := core.VerdictID(core.NewID())

	next := s.Revise(map[string]float64{ThresholdStability: 0.66}, 3, verdictID)

	assert.Equal(t, core.InvariantVersion(1), next.Version)
	assert.Equal(t, core.Generation(3), next.CreatedGen)
	assert.Equal(t, verdictID, next.VerdictID)
	assert.InDelta(t, 0.66, next.Thresholds[ThresholdStability], 1e-9)
	assert.InDelta(t, 0.01, next.Thresholds[ThresholdMinEdge], 1e-9)

	// Prior version is untouched.
	assert.Equal(t, core.InvariantVersion(0), s.Version)
	assert.InDelta(t, 0.60, s.Thresholds[ThresholdStability], 1e-9)
}

func TestFingerprintIgnoresTimestamps(t *testing.T) {
	thresholds := map[string]float64{ThresholdMinEdge: 0.01, ThresholdStability: 0.60}
	a := Bootstrap("mean_payoff", thresholds)
	b := Bootstrap("mean_payoff", thresholds)
	b.CreatedAt = core.Now()

	require.Equal(t, a.Fingerprint(), b.Fingerprint())

	c := a.Revise(map[string]float64{ThresholdStability: 0.66}, 1, "")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
