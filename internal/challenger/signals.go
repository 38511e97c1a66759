package challenger

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"iaicore/domain/proposal"
	"iaicore/domain/trace"
)

// Signal names emitted by strain detection.
const (
	SignalSlopeIncreasing    = "regret_slope_increasing"
	SignalVarianceSpike      = "outcome_variance_spike"
	SignalSwitchRateUnstable = "switch_rate_unstable"
	SignalSlowRecovery       = "post_shift_recovery_slow"
)

const epsilon = 1e-9

// detectSignals computes all strain signals from an optimizer trace,
// comparing early-window against recent-window behavior.
func (c *Challenger) detectSignals(tr trace.Trace) []proposal.StrainSignal {
	n := tr.Len()
	signals := make([]proposal.StrainSignal, 0, 4)

	earlyEnd := c.windowSize
	if third := n / 3; third < earlyEnd {
		earlyEnd = third
	}
	recentStart := n - c.windowSize
	if recentStart < 0 {
		recentStart = 0
	}

	signals = append(signals, c.slopeSignal(tr, earlyEnd, recentStart))
	signals = append(signals, c.varianceSignal(tr, earlyEnd, recentStart))
	signals = append(signals, c.switchRateSignal(tr))
	if tr.ShiftStep >= 0 {
		signals = append(signals, c.recoverySignal(tr))
	}
	return signals
}

// slopeSignal fits a line to the cumulative regret of the early and recent
// windows and fires when the recent slope exceeds the early slope by the
// configured ratio. Accelerating regret means the current invariants do not
// penalize whatever started going wrong.
func (c *Challenger) slopeSignal(tr trace.Trace, earlyEnd, recentStart int) proposal.StrainSignal {
	cum := tr.CumulativeRegret()

	earlySlope := regressionSlope(cum[:clamp(earlyEnd, len(cum))])
	recentSlope := regressionSlope(cum[clamp(recentStart, len(cum)):])

	detected := earlySlope > 0 && recentSlope > c.slopeRatio*earlySlope
	value := 0.0
	if earlySlope > epsilon {
		value = recentSlope / earlySlope
	}
	return proposal.StrainSignal{
		Name:        SignalSlopeIncreasing,
		Detected:    detected,
		Value:       value,
		Threshold:   c.slopeRatio,
		Description: fmt.Sprintf("cumulative regret slope early=%.4f recent=%.4f", earlySlope, recentSlope),
	}
}

// varianceSignal fires when recent outcome variance exceeds the early
// baseline variance by the configured ratio.
func (c *Challenger) varianceSignal(tr trace.Trace, earlyEnd, recentStart int) proposal.StrainSignal {
	outcomes := tr.Outcomes()
	earlyVar := sampleVariance(outcomes[:clamp(earlyEnd, len(outcomes))])
	recentVar := sampleVariance(outcomes[clamp(recentStart, len(outcomes)):])

	detected := earlyVar > epsilon && recentVar > c.varianceRatio*earlyVar
	value := 0.0
	if earlyVar > epsilon {
		value = recentVar / earlyVar
	}
	return proposal.StrainSignal{
		Name:        SignalVarianceSpike,
		Detected:    detected,
		Value:       value,
		Threshold:   c.varianceRatio,
		Description: fmt.Sprintf("outcome variance early=%.4f recent=%.4f", earlyVar, recentVar),
	}
}

// switchRateSignal fires when the coefficient of variation of the
// per-window behavioral switch rate exceeds the configured bound. Erratic
// switching suggests the optimizer is thrashing rather than exploring.
func (c *Challenger) switchRateSignal(tr trace.Trace) proposal.StrainSignal {
	window := c.windowSize / 5
	if window < 10 {
		window = 10
	}
	rates := tr.SwitchRates(window)

	cov := 0.0
	if len(rates) >= 2 {
		mean, _ := stats.Mean(rates)
		sd, _ := stats.StandardDeviationSample(rates)
		if mean > epsilon {
			cov = sd / mean
		}
	}
	return proposal.StrainSignal{
		Name:        SignalSwitchRateUnstable,
		Detected:    cov > c.switchRateCoV,
		Value:       cov,
		Threshold:   c.switchRateCoV,
		Description: fmt.Sprintf("switch rate CoV over %d windows of %d steps", len(rates), window),
	}
}

// recoverySignal fires when mean per-step regret in the window after the
// known regime-change marker stays above the recovery bound.
func (c *Challenger) recoverySignal(tr trace.Trace) proposal.StrainSignal {
	post := tr.PostShift()
	window := c.windowSize
	if window > len(post) {
		window = len(post)
	}

	meanRegret := 0.0
	if window > 0 {
		sum := 0.0
		for _, r := range post[:window] {
			sum += r.Regret
		}
		meanRegret = sum / float64(window)
	}
	return proposal.StrainSignal{
		Name:        SignalSlowRecovery,
		Detected:    meanRegret > c.recoveryBound,
		Value:       meanRegret,
		Threshold:   c.recoveryBound,
		Description: fmt.Sprintf("mean regret over %d steps after shift at step %d", window, tr.ShiftStep),
	}
}

// regressionSlope fits y = a + b*t over the series and returns b.
func regressionSlope(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	xs := make([]float64, len(series))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, series, nil, false)
	return slope
}

func sampleVariance(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	v, _ := stats.VarS(series)
	return v
}

func clamp(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}
