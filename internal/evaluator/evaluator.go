package evaluator

import (
	"context"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"iaicore/domain/core"
	"iaicore/domain/dataset"
	"iaicore/domain/evidence"
	"iaicore/domain/hypothesis"
	"iaicore/internal/config"
)

// Evaluator runs a hypothesis's decision rule over historical outcome data
// and produces an immutable evidence package. It has no side effects: no
// logging, no status mutation, nothing but the returned package.
type Evaluator struct {
	confidenceLevel    float64
	alpha              float64
	minSampleSize      int
	subPeriods         int
	stabilityThreshold float64
}

// New creates an evaluator from configuration.
func New(cfg config.EvaluatorConfig) *Evaluator {
	return &Evaluator{
		confidenceLevel:    cfg.ConfidenceLevel,
		alpha:              cfg.Alpha,
		minSampleSize:      cfg.MinSampleSize,
		subPeriods:         cfg.SubPeriods,
		stabilityThreshold: cfg.StabilityThreshold,
	}
}

// NewDefault creates an evaluator with the standard thresholds: 95% CI,
// alpha 0.05, minimum sample 30, 4 sub-periods, 60% stability.
func NewDefault() *Evaluator {
	return &Evaluator{
		confidenceLevel:    0.95,
		alpha:              0.05,
		minSampleSize:      30,
		subPeriods:         4,
		stabilityThreshold: 0.60,
	}
}

// Evaluate simulates the hypothesis over the dataset window and computes
// the evidence statistics. Pure function of its inputs aside from the
// generated package ID and timestamp: identical inputs produce identical
// point estimate, CI, p-value, and stability.
func (e *Evaluator) Evaluate(ctx context.Context, h hypothesis.Hypothesis, ds dataset.Dataset, w evidence.Window) (evidence.Package, error) {
	if err := ctx.Err(); err != nil {
		return evidence.Package{}, core.NewInsufficientSampleError(0, e.minSampleSize)
	}
	if w.Span() < e.minSampleSize {
		// A narrower window cannot qualify enough records to evaluate.
		return evidence.Package{}, core.NewInsufficientSampleError(w.Span(), e.minSampleSize)
	}

	outcomes := simulate(h, ds.Slice(w.Start, w.End))
	n := len(outcomes)
	if n < e.minSampleSize {
		return evidence.Package{}, core.NewInsufficientSampleError(n, e.minSampleSize)
	}

	mean, _ := stats.Mean(outcomes)
	sd, _ := stats.StandardDeviationSample(outcomes)
	se := sd / math.Sqrt(float64(n))

	ciLower, ciUpper := mean, mean
	pValue := 1.0
	if se > 0 {
		tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
		tCrit := tDist.Quantile(1 - (1-e.confidenceLevel)/2)
		ciLower = mean - tCrit*se
		ciUpper = mean + tCrit*se

		// One-sample t-test against zero
		tStat := mean / se
		pValue = 2 * (1 - tDist.CDF(math.Abs(tStat)))
	}

	k := w.SubPeriods
	if k < 3 {
		k = e.subPeriods
	}
	score, subEstimates := stabilityScore(outcomes, mean, k)

	minVal, _ := stats.Min(outcomes)
	maxVal, _ := stats.Max(outcomes)

	return evidence.Package{
		ID:             core.EvidenceID(core.NewID()),
		HypothesisID:   h.ID,
		PointEstimate:  mean,
		CILower:        ciLower,
		CIUpper:        ciUpper,
		Confidence:     e.confidenceLevel,
		SampleSize:     n,
		PValue:         pValue,
		Significant:    pValue < e.alpha,
		Stable:         score >= e.stabilityThreshold,
		StabilityScore: score,
		SubEstimates:   subEstimates,
		Support: map[string]float64{
			"std_dev": sd,
			"std_err": se,
			"min":     minVal,
			"max":     maxVal,
		},
		Window:     evidence.Window{Start: w.Start, End: w.End, SubPeriods: k},
		ComputedAt: core.Now(),
	}, nil
}

// simulate applies the hypothesis's decision rule over the records and
// returns the per-unit outcome sample. The rule qualifies a record when
// every "<feature>_min"/"<feature>_max" parameter bound holds for the
// record's features; parameters without those suffixes are strategy
// internals and do not gate qualification.
func simulate(h hypothesis.Hypothesis, records []dataset.Record) []float64 {
	var outcomes []float64
	for _, rec := range records {
		if qualifies(h.Params, rec) {
			outcomes = append(outcomes, rec.Payoff)
		}
	}
	return outcomes
}

func qualifies(params hypothesis.Params, rec dataset.Record) bool {
	for _, p := range params {
		if feature, kind, ok := boundFor(p.Name); ok {
			value, present := rec.Feature(feature)
			if !present {
				return false
			}
			if kind == boundMin && value < p.Value {
				return false
			}
			if kind == boundMax && value > p.Value {
				return false
			}
		}
	}
	return true
}

type boundKind int

const (
	boundMin boundKind = iota
	boundMax
)

func boundFor(name string) (feature string, kind boundKind, ok bool) {
	const minSuffix, maxSuffix = "_min", "_max"
	if len(name) > len(minSuffix) && name[len(name)-len(minSuffix):] == minSuffix {
		return name[:len(name)-len(minSuffix)], boundMin, true
	}
	if len(name) > len(maxSuffix) && name[len(name)-len(maxSuffix):] == maxSuffix {
		return name[:len(name)-len(maxSuffix)], boundMax, true
	}
	return "", 0, false
}

// stabilityScore partitions the chronological outcome sample into k
// disjoint sub-periods and returns the fraction whose mean sign agrees
// with the full-window mean, plus the per-period means.
func stabilityScore(outcomes []float64, fullMean float64, k int) (float64, []float64) {
	if k <= 0 || len(outcomes) < k {
		return 0, nil
	}

	size := len(outcomes) / k
	subEstimates := make([]float64, 0, k)
	agree := 0
	for i := 0; i < k; i++ {
		start := i * size
		end := start + size
		if i == k-1 {
			end = len(outcomes) // last period absorbs the remainder
		}
		subMean, _ := stats.Mean(outcomes[start:end])
		subEstimates = append(subEstimates, subMean)
		if sameSign(subMean, fullMean) {
			agree++
		}
	}
	return float64(agree) / float64(k), subEstimates
}

func sameSign(a, b float64) bool {
	if a == 0 && b == 0 {
		return true
	}
	return a*b > 0
}
