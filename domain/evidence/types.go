package evidence

import (
	"iaicore/domain/core"
)

// Package is the immutable result of evaluating one hypothesis against a
// dataset. Re-evaluation produces a new Package, never an edit; all fields
// are value types and the struct is passed by value across component
// boundaries to keep it that way.
type Package struct {
	ID           core.EvidenceID   `json:"id"`
	HypothesisID core.HypothesisID `json:"hypothesis_id"`

	// Point estimate of the tracked metric (edge, reward, regret delta)
	// with its two-sided confidence interval.
	PointEstimate float64 `json:"point_estimate"`
	CILower       float64 `json:"ci_lower"`
	CIUpper       float64 `json:"ci_upper"`
	Confidence    float64 `json:"confidence_level"`

	SampleSize  int     `json:"sample_size"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`

	// Stability across K disjoint sub-periods: fraction whose point
	// estimate sign matches the full-window estimate.
	Stable         bool      `json:"stable"`
	StabilityScore float64   `json:"stability_score"`
	SubEstimates   []float64 `json:"sub_estimates,omitempty"`

	// Free-form supporting statistics (std dev, min, max, windows used).
	Support map[string]float64 `json:"support,omitempty"`

	Window     Window         `json:"window"`
	ComputedAt core.Timestamp `json:"computed_at"`
}

// Window describes the slice of the dataset an evaluation covered.
type Window struct {
	Start      int `json:"start"`
	End        int `json:"end"` // exclusive
	SubPeriods int `json:"sub_periods"`
}

// Span returns the number of records the window covers.
func (w Window) Span() int {
	if w.End < w.Start {
		return 0
	}
	return w.End - w.Start
}

// FullWindow covers an entire dataset of n records with k stability
// sub-periods.
func FullWindow(n, k int) Window {
	return Window{Start: 0, End: n, SubPeriods: k}
}

// IsWellFormed reports whether the package carries the fields the Authority
// requires for review. A package failing this check triggers the fail-safe
// REJECT path, never an ACCEPT.
func (p Package) IsWellFormed() bool {
	if p.HypothesisID == "" || p.SampleSize <= 0 {
		return false
	}
	if p.CILower > p.PointEstimate || p.CIUpper < p.PointEstimate {
		return false
	}
	if p.PValue < 0 || p.PValue > 1 {
		return false
	}
	return true
}
