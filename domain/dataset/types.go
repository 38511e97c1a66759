package dataset

import (
	"iaicore/domain/core"
)

// Record is one historical outcome observation. Features hold the
// observable context a decision rule filters on (odds, price, arm index);
// Payoff is the realized per-unit outcome had the rule acted on it.
type Record struct {
	Timestamp core.Timestamp     `json:"timestamp"`
	Features  map[string]float64 `json:"features"`
	Payoff    float64            `json:"payoff"`
}

// Feature returns the named feature and whether it is present.
func (r Record) Feature(name string) (float64, bool) {
	v, ok := r.Features[name]
	return v, ok
}

// Dataset is an ordered-by-time collection of historical outcome records.
// It is read-only for the engine: providers source it from the environment
// and the core never writes it back.
type Dataset struct {
	Name    string   `json:"name"`
	Records []Record `json:"records"`
}

// Len returns the record count.
func (d Dataset) Len() int { return len(d.Records) }

// Slice returns records in [start, end), clamped to bounds.
func (d Dataset) Slice(start, end int) []Record {
	if start < 0 {
		start = 0
	}
	if end > len(d.Records) {
		end = len(d.Records)
	}
	if start >= end {
		return nil
	}
	return d.Records[start:end]
}
