package authority

import (
	"context"
	"fmt"

	"iaicore/domain/core"
	"iaicore/domain/evidence"
	"iaicore/domain/invariant"
	"iaicore/domain/proposal"
	"iaicore/domain/verdict"
	"iaicore/internal/config"
)

// Policy is one strictness mode's review criteria. Strict demands the full
// statistical bar (CI clear of the edge threshold, significance, stability);
// balanced drops the CI and stability requirements; permissive only asks
// that the point estimate points the right way.
type Policy struct {
	Mode                string
	Confidence          float64
	RequireSignificance bool
	RequireStability    bool
	RequireCIClearance  bool
}

var policies = map[string]Policy{
	"strict":     {Mode: "strict", Confidence: 0.8, RequireSignificance: true, RequireStability: true, RequireCIClearance: true},
	"balanced":   {Mode: "balanced", Confidence: 0.6, RequireSignificance: true},
	"permissive": {Mode: "permissive", Confidence: 0.4},
}

// Authority is the rule-based reviewer. It holds review power and nothing
// else: it never originates proposals and never touches engine state. Every
// rejection carries a rationale; silent denial is not a valid outcome.
type Authority struct {
	policy        Policy
	minSampleSize int
}

// New creates a rule-based authority in the configured strictness mode.
// Unknown modes fall back to strict, the fail-safe direction.
func New(cfg config.AuthorityConfig, minSampleSize int) *Authority {
	p, ok := policies[cfg.Strictness]
	if !ok {
		p = policies["strict"]
	}
	return &Authority{policy: p, minSampleSize: minSampleSize}
}

func (a *Authority) Name() string { return "rules/" + a.policy.Mode }

// Review rules on one proposal. The error return is reserved for backend
// failures; a proposal this authority can parse always gets a verdict, and
// anything it cannot justify accepting is rejected with the reason.
func (a *Authority) Review(ctx context.Context, p proposal.Proposal, ev []evidence.Package, active invariant.Set) (verdict.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return verdict.Verdict{}, err
	}
	if err := p.Validate(); err != nil {
		return a.reject(p, fmt.Sprintf("malformed proposal: %v", err)), nil
	}

	switch p.Type {
	case proposal.TypeNoChange:
		v := verdict.New(p.ID, p.Generation, verdict.DecisionNoChange, "no strain detected, holding current invariants", 1.0)
		v.Backend = a.Name()
		return v, nil
	case proposal.TypeParameterAdjustment:
		return a.reviewParameterAdjustment(p, ev, active), nil
	case proposal.TypeInvariantRevision:
		return a.reviewInvariantRevision(p, active), nil
	case proposal.TypeNewHypothesis:
		return a.reviewLowStakes(p, "new hypothesis enters the lifecycle at PROPOSED and must earn acceptance through evaluation"), nil
	case proposal.TypeExploration:
		return a.reviewLowStakes(p, "exploration probe is budget-bounded and does not alter binding state"), nil
	}
	return a.reject(p, fmt.Sprintf("unknown proposal type %q", p.Type)), nil
}

// reviewParameterAdjustment applies the statistical gate to the evidence for
// the targeted hypothesis, then bounds the delta.
func (a *Authority) reviewParameterAdjustment(p proposal.Proposal, ev []evidence.Package, active invariant.Set) verdict.Verdict {
	adj := p.ParameterAdjustment

	pkg, ok := evidenceFor(ev, adj.HypothesisID)
	if !ok {
		v := verdict.New(p.ID, p.Generation, verdict.DecisionRequestEvidence,
			"no evidence package for the targeted hypothesis; evaluate before adjusting", a.policy.Confidence)
		v.Backend = a.Name()
		return v
	}
	if !pkg.IsWellFormed() {
		return a.reject(p, "evidence package is malformed; refusing to rule on it")
	}
	minSample := int(active.Threshold(invariant.ThresholdMinSample, float64(a.minSampleSize)))
	if pkg.SampleSize < minSample {
		v := verdict.New(p.ID, p.Generation, verdict.DecisionRequestEvidence,
			fmt.Sprintf("sample size %d below the binding minimum %d", pkg.SampleSize, minSample), a.policy.Confidence)
		v.Backend = a.Name()
		return v
	}

	minEdge := active.Threshold(invariant.ThresholdMinEdge, 0)
	if concerns, pass := a.statisticalGate(pkg, minEdge); !pass {
		v := a.reject(p, "evidence does not clear the binding statistical criteria")
		v.Concerns = concerns
		return v
	}

	maxDelta := active.Threshold(invariant.ThresholdMaxParamDelta, 20.0)
	if abs(adj.DeltaPct) > maxDelta {
		// Partial pass: evidence supports moving, but not this far.
		bounded := boundedValue(adj.CurrentValue, adj.ProposedValue, maxDelta)
		v := verdict.New(p.ID, p.Generation, verdict.DecisionModify,
			fmt.Sprintf("delta %.1f%% exceeds the %.1f%% bound; approving the bounded move", adj.DeltaPct, maxDelta), a.policy.Confidence)
		v.Backend = a.Name()
		v.SuggestedAdjustment = map[string]float64{adj.ParamName: bounded}
		v.Concerns = []verdict.Concern{{Severity: "medium", Description: "proposed delta exceeded the bound and was clamped"}}
		return v
	}

	v := verdict.New(p.ID, p.Generation, verdict.DecisionAccept,
		fmt.Sprintf("evidence clears the %s policy: estimate %.4f, CI [%.4f, %.4f], p=%.4f, n=%d",
			a.policy.Mode, pkg.PointEstimate, pkg.CILower, pkg.CIUpper, pkg.PValue, pkg.SampleSize),
		a.policy.Confidence)
	v.Backend = a.Name()
	return v
}

// reviewInvariantRevision bounds each threshold update relative to the
// current value. Revisions must be signal-backed: a challenger asking to
// move the goalposts without detected strain is refused.
func (a *Authority) reviewInvariantRevision(p proposal.Proposal, active invariant.Set) verdict.Verdict {
	if !hasDetectedSignal(p) {
		return a.reject(p, "invariant revision without a detected strain signal")
	}

	maxDelta := active.Threshold(invariant.ThresholdMaxParamDelta, 20.0)
	clamped := make(map[string]float64)
	exceeded := false
	for name, proposed := range p.InvariantRevision.ThresholdUpdates {
		current := active.Threshold(name, proposed)
		if current != 0 && abs(pctDelta(current, proposed)) > maxDelta {
			exceeded = true
			clamped[name] = boundedValue(current, proposed, maxDelta)
		} else {
			clamped[name] = proposed
		}
	}

	if exceeded {
		v := verdict.New(p.ID, p.Generation, verdict.DecisionModify,
			fmt.Sprintf("threshold move exceeds the %.1f%% bound; approving the bounded revision", maxDelta), a.policy.Confidence)
		v.Backend = a.Name()
		v.SuggestedAdjustment = clamped
		v.Concerns = []verdict.Concern{{Severity: "medium", Description: "revision clamped to the per-generation bound"}}
		return v
	}

	v := verdict.New(p.ID, p.Generation, verdict.DecisionAccept,
		p.InvariantRevision.Rationale, a.policy.Confidence)
	v.Backend = a.Name()
	return v
}

// reviewLowStakes handles new_hypothesis and exploration proposals, which
// do not change binding state. They still need a detected signal behind
// them; in strict mode a critical critique blocks even these.
func (a *Authority) reviewLowStakes(p proposal.Proposal, rationale string) verdict.Verdict {
	if !hasDetectedSignal(p) {
		return a.reject(p, "proposal lacks a detected strain signal")
	}
	if a.policy.Mode == "strict" {
		for _, c := range p.Critiques {
			if c.Severity == proposal.SeverityCritical {
				v := a.reject(p, "critical strain present; stabilize before expanding the candidate set")
				v.Concerns = []verdict.Concern{{Severity: "critical", Description: c.Description}}
				return v
			}
		}
	}
	v := verdict.New(p.ID, p.Generation, verdict.DecisionAccept, rationale, a.policy.Confidence)
	v.Backend = a.Name()
	return v
}

// statisticalGate applies the mode's evidence criteria and returns the
// concerns for whichever checks failed.
func (a *Authority) statisticalGate(pkg evidence.Package, minEdge float64) ([]verdict.Concern, bool) {
	var concerns []verdict.Concern

	if a.policy.RequireCIClearance {
		if pkg.CILower <= minEdge {
			concerns = append(concerns, verdict.Concern{
				Severity:    "high",
				Description: fmt.Sprintf("CI lower bound %.4f does not clear the edge threshold %.4f", pkg.CILower, minEdge),
			})
		}
	} else if pkg.PointEstimate <= minEdge {
		concerns = append(concerns, verdict.Concern{
			Severity:    "high",
			Description: fmt.Sprintf("point estimate %.4f does not clear the edge threshold %.4f", pkg.PointEstimate, minEdge),
		})
	}
	if a.policy.RequireSignificance && !pkg.Significant {
		concerns = append(concerns, verdict.Concern{
			Severity:    "high",
			Description: fmt.Sprintf("not statistically significant (p=%.4f)", pkg.PValue),
		})
	}
	if a.policy.RequireStability && !pkg.Stable {
		concerns = append(concerns, verdict.Concern{
			Severity:    "high",
			Description: fmt.Sprintf("unstable across sub-periods (score %.2f)", pkg.StabilityScore),
		})
	}
	return concerns, len(concerns) == 0
}

func (a *Authority) reject(p proposal.Proposal, rationale string) verdict.Verdict {
	v := verdict.New(p.ID, p.Generation, verdict.DecisionReject, rationale, a.policy.Confidence)
	v.Backend = a.Name()
	return v
}

func evidenceFor(ev []evidence.Package, id core.HypothesisID) (evidence.Package, bool) {
	for _, pkg := range ev {
		if pkg.HypothesisID == id {
			return pkg, true
		}
	}
	return evidence.Package{}, false
}

func hasDetectedSignal(p proposal.Proposal) bool {
	for _, s := range p.Signals {
		if s.Detected {
			return true
		}
	}
	return false
}

// boundedValue moves current toward proposed, at most maxDeltaPct percent.
func boundedValue(current, proposed, maxDeltaPct float64) float64 {
	if current == 0 {
		return proposed
	}
	delta := pctDelta(current, proposed)
	if delta > maxDeltaPct {
		delta = maxDeltaPct
	}
	if delta < -maxDeltaPct {
		delta = -maxDeltaPct
	}
	return current * (1 + delta/100)
}

func pctDelta(current, proposed float64) float64 {
	return 100 * (proposed - current) / current
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
