package trace

import (
	"iaicore/domain/core"
)

// OutcomeRecord is one (decision, realized outcome, timestamp) tuple from
// the optimizer collaborator. Switched marks a behavioral change relative
// to the previous step.
type OutcomeRecord struct {
	Step      int            `json:"step"`
	Decision  string         `json:"decision"`
	Outcome   float64        `json:"outcome"`
	// Regret is the per-step shortfall against the best decision in
	// hindsight, when the collaborator can compute it; zero otherwise.
	Regret    float64        `json:"regret"`
	Switched  bool           `json:"switched"`
	Timestamp core.Timestamp `json:"timestamp"`
}

// Trace is the ordered outcome sequence for one generation. ShiftStep marks
// a known regime-change point for recovery analysis, -1 when none.
type Trace struct {
	Records   []OutcomeRecord `json:"records"`
	ShiftStep int             `json:"shift_step"`
}

// New creates a trace without a regime-shift marker.
func New(records []OutcomeRecord) Trace {
	return Trace{Records: records, ShiftStep: -1}
}

// Len returns the number of steps.
func (t Trace) Len() int { return len(t.Records) }

// Outcomes extracts the per-step outcome values in order.
func (t Trace) Outcomes() []float64 {
	out := make([]float64, len(t.Records))
	for i, r := range t.Records {
		out[i] = r.Outcome
	}
	return out
}

// CumulativeOutcomes returns the running sum of outcomes.
func (t Trace) CumulativeOutcomes() []float64 {
	out := make([]float64, len(t.Records))
	var sum float64
	for i, r := range t.Records {
		sum += r.Outcome
		out[i] = sum
	}
	return out
}

// CumulativeRegret returns the running sum of per-step regret.
func (t Trace) CumulativeRegret() []float64 {
	out := make([]float64, len(t.Records))
	var sum float64
	for i, r := range t.Records {
		sum += r.Regret
		out[i] = sum
	}
	return out
}

// Slice returns the records in [start, end), clamped to the trace bounds.
func (t Trace) Slice(start, end int) []OutcomeRecord {
	if start < 0 {
		start = 0
	}
	if end > len(t.Records) {
		end = len(t.Records)
	}
	if start >= end {
		return nil
	}
	return t.Records[start:end]
}

// SwitchRates computes the fraction of switched steps per disjoint window
// of the given size. Trailing partial windows are dropped.
func (t Trace) SwitchRates(windowSize int) []float64 {
	if windowSize <= 0 || len(t.Records) < windowSize {
		return nil
	}
	n := len(t.Records) / windowSize
	rates := make([]float64, 0, n)
	for w := 0; w < n; w++ {
		var switched int
		for _, r := range t.Records[w*windowSize : (w+1)*windowSize] {
			if r.Switched {
				switched++
			}
		}
		rates = append(rates, float64(switched)/float64(windowSize))
	}
	return rates
}

// PostShift returns the records after the regime-shift marker, or nil when
// no shift is recorded.
func (t Trace) PostShift() []OutcomeRecord {
	if t.ShiftStep < 0 || t.ShiftStep >= len(t.Records) {
		return nil
	}
	return t.Records[t.ShiftStep:]
}
