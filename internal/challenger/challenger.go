package challenger

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"iaicore/domain/core"
	"iaicore/domain/evidence"
	"iaicore/domain/hypothesis"
	"iaicore/domain/invariant"
	"iaicore/domain/proposal"
	"iaicore/domain/trace"
	"iaicore/internal/config"
)

// Challenger inspects optimizer traces and evaluator output for strain and
// emits a proposal set every cycle. It is advisory only: it never applies a
// change, never marks a proposal as applied, and knows nothing about how
// the Authority decides.
type Challenger struct {
	windowSize    int
	slopeRatio    float64
	varianceRatio float64
	switchRateCoV float64
	recoveryBound float64
	maxDeltaPct   float64
}

// New creates a challenger from configuration.
func New(cfg config.ChallengerConfig) *Challenger {
	return &Challenger{
		windowSize:    cfg.WindowSize,
		slopeRatio:    cfg.SlopeRatio,
		varianceRatio: cfg.VarianceRatio,
		switchRateCoV: cfg.SwitchRateCoV,
		recoveryBound: cfg.RecoveryBound,
		maxDeltaPct:   cfg.MaxParamDeltaPct,
	}
}

// Analyze detects strain and builds the cycle's proposal set. The returned
// set is never empty: when nothing fires it carries exactly one no_change
// proposal with a metrics summary, so the Authority is still invoked and
// the cycle is still audited.
func (c *Challenger) Analyze(tr trace.Trace, ev []evidence.Package, active invariant.Set, hyps []*hypothesis.Hypothesis, gen core.Generation) proposal.Set {
	signals := c.detectSignals(tr)

	var fired []proposal.StrainSignal
	for _, s := range signals {
		if s.Detected {
			fired = append(fired, s)
		}
	}

	if len(fired) == 0 {
		return proposal.Set{c.heartbeat(tr, signals, gen)}
	}

	critiques := buildCritiques(fired)
	var set proposal.Set
	for _, s := range fired {
		if p, ok := c.proposalFor(s, critiques, active, hyps, gen); ok {
			set = append(set, p)
		}
	}
	if len(set) == 0 {
		// Every fired signal failed to map to a concrete change; the
		// heartbeat still guarantees Authority review of the cycle.
		set = append(set, c.heartbeat(tr, signals, gen))
	}
	return set
}

// heartbeat builds the mandatory no_change proposal for a quiet cycle.
func (c *Challenger) heartbeat(tr trace.Trace, signals []proposal.StrainSignal, gen core.Generation) proposal.Proposal {
	return proposal.Proposal{
		ID:         core.ProposalID(core.NewID()),
		Type:       proposal.TypeNoChange,
		Generation: gen,
		Signals:    signals,
		Risk: proposal.RiskAssessment{
			Risk:       proposal.SeverityLow,
			Reversible: true,
			Notes:      "no state change requested",
		},
		NoChange: &proposal.NoChangePayload{
			MetricsSummary: metricsSummary(tr),
		},
		CreatedAt: core.Now(),
	}
}

// proposalFor maps one fired strain signal to a concrete, bounded proposal.
func (c *Challenger) proposalFor(s proposal.StrainSignal, critiques []proposal.Critique, active invariant.Set, hyps []*hypothesis.Hypothesis, gen core.Generation) (proposal.Proposal, bool) {
	base := proposal.Proposal{
		ID:         core.ProposalID(core.NewID()),
		Generation: gen,
		Signals:    []proposal.StrainSignal{s},
		Critiques:  critiquesFor(critiques, s.Name),
		CreatedAt:  core.Now(),
	}

	switch s.Name {
	case SignalSlopeIncreasing:
		// Accelerating regret: propose tightening the stability bar so the
		// next evaluation round demands more consistent evidence.
		current := active.Threshold(invariant.ThresholdStability, 0.60)
		proposed := c.boundedIncrease(current, 10)
		if proposed > 0.95 {
			proposed = 0.95
		}
		base.Type = proposal.TypeInvariantRevision
		base.Risk = proposal.RiskAssessment{Risk: proposal.SeverityMedium, Reversible: true, Notes: "threshold change, prior version retained"}
		base.InvariantRevision = &proposal.InvariantRevisionPayload{
			ThresholdUpdates: map[string]float64{invariant.ThresholdStability: proposed},
			Rationale:        fmt.Sprintf("regret slope ratio %.2f exceeds %.2f; demand stronger cross-period consistency", s.Value, s.Threshold),
		}
		return base, true

	case SignalVarianceSpike:
		h, param, ok := adjustableParam(hyps)
		if !ok {
			return proposal.Proposal{}, false
		}
		proposed := c.boundedDecrease(param.Value, 10)
		base.Type = proposal.TypeParameterAdjustment
		base.HypothesisIDs = []core.HypothesisID{h.ID}
		base.Risk = proposal.RiskAssessment{Risk: proposal.SeverityMedium, Reversible: true, Notes: "bounded delta on one parameter"}
		base.ParameterAdjustment = &proposal.ParameterAdjustmentPayload{
			HypothesisID:  h.ID,
			ParamName:     param.Name,
			CurrentValue:  param.Value,
			ProposedValue: proposed,
			DeltaPct:      100 * (proposed - param.Value) / param.Value,
		}
		return base, true

	case SignalSwitchRateUnstable:
		h, param, ok := adjustableParam(hyps)
		if !ok {
			return proposal.Proposal{}, false
		}
		base.Type = proposal.TypeExploration
		base.HypothesisIDs = []core.HypothesisID{h.ID}
		base.Risk = proposal.RiskAssessment{Risk: proposal.SeverityLow, Reversible: true, Notes: "probe only, no binding change"}
		base.Exploration = &proposal.ExplorationPayload{
			ParamName: param.Name,
			Range:     [2]float64{c.boundedDecrease(param.Value, c.maxDeltaPct), c.boundedIncrease(param.Value, c.maxDeltaPct)},
			Budget:    c.windowSize,
		}
		return base, true

	case SignalSlowRecovery:
		h, param, ok := adjustableParam(hyps)
		if !ok {
			return proposal.Proposal{}, false
		}
		base.Type = proposal.TypeNewHypothesis
		base.HypothesisIDs = []core.HypothesisID{h.ID}
		base.Risk = proposal.RiskAssessment{Risk: proposal.SeverityHigh, Reversible: true, Notes: "new formulation enters lifecycle at PROPOSED"}
		base.NewHypothesis = &proposal.NewHypothesisPayload{
			Name:        h.Name + "-post-shift",
			Description: fmt.Sprintf("variant of %s tuned for the post-shift regime", h.Name),
			Params:      h.Params.With(param.Name, c.boundedIncrease(param.Value, c.maxDeltaPct)),
		}
		return base, true
	}
	return proposal.Proposal{}, false
}

// boundedIncrease raises value by pct, clamped to the configured maximum
// delta. Proposals must stay bounded no matter how loud the signal.
func (c *Challenger) boundedIncrease(value, pct float64) float64 {
	if pct > c.maxDeltaPct {
		pct = c.maxDeltaPct
	}
	return value * (1 + pct/100)
}

func (c *Challenger) boundedDecrease(value, pct float64) float64 {
	if pct > c.maxDeltaPct {
		pct = c.maxDeltaPct
	}
	return value * (1 - pct/100)
}

// buildCritiques grades each fired signal by how far it exceeds threshold.
func buildCritiques(fired []proposal.StrainSignal) []proposal.Critique {
	critiques := make([]proposal.Critique, 0, len(fired))
	for _, s := range fired {
		ev := map[string]float64{"value": s.Value, "threshold": s.Threshold}
		if s.Threshold != 0 {
			ev["ratio"] = s.Value / s.Threshold
		}
		critiques = append(critiques, proposal.Critique{
			Severity:    proposal.SeverityFor(s),
			Signal:      s.Name,
			Description: s.Description,
			Evidence:    ev,
		})
	}
	return critiques
}

func critiquesFor(critiques []proposal.Critique, signal string) []proposal.Critique {
	var out []proposal.Critique
	for _, c := range critiques {
		if c.Signal == signal {
			out = append(out, c)
		}
	}
	return out
}

// adjustableParam picks the hypothesis and parameter a bounded adjustment
// should target: the first accepted hypothesis with a nonzero parameter,
// falling back to any hypothesis.
func adjustableParam(hyps []*hypothesis.Hypothesis) (*hypothesis.Hypothesis, hypothesis.Param, bool) {
	pick := func(status hypothesis.Status) (*hypothesis.Hypothesis, hypothesis.Param, bool) {
		for _, h := range hyps {
			if status != "" && h.Status != status {
				continue
			}
			for _, p := range h.Params {
				if p.Value != 0 {
					return h, p, true
				}
			}
		}
		return nil, hypothesis.Param{}, false
	}
	if h, p, ok := pick(hypothesis.StatusAccepted); ok {
		return h, p, ok
	}
	return pick("")
}

func metricsSummary(tr trace.Trace) map[string]float64 {
	outcomes := tr.Outcomes()
	summary := map[string]float64{
		"total_steps": float64(tr.Len()),
	}
	if len(outcomes) > 0 {
		cumOutcome := tr.CumulativeOutcomes()
		mean, _ := stats.Mean(outcomes)
		summary["cum_outcome"] = cumOutcome[len(cumOutcome)-1]
		summary["mean_outcome"] = mean

		cumRegret := tr.CumulativeRegret()
		summary["cum_regret"] = cumRegret[len(cumRegret)-1]

		switched := 0
		for _, r := range tr.Records {
			if r.Switched {
				switched++
			}
		}
		summary["switch_rate"] = float64(switched) / float64(tr.Len())
	}
	return summary
}
