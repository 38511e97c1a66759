package invariant

import (
	"encoding/json"
	"sort"

	"iaicore/domain/core"
)

// Threshold names shared between the invariant set and its reviewers.
const (
	ThresholdMinEdge       = "min_edge"
	ThresholdAlpha         = "alpha"
	ThresholdMinSample     = "min_sample"
	ThresholdStability     = "min_stability"
	ThresholdMaxParamDelta = "max_param_delta_pct"
)

// Set is one version of the binding evaluation criteria. Exactly one Set is
// active at any time; every version is retained for audit and rollback. A
// Set is immutable once created - revision produces a successor version via
// Revise, and only the orchestrator acting on an ACCEPT/MODIFY verdict may
// do that.
type Set struct {
	Version       core.InvariantVersion `json:"version"`
	PrimaryMetric string                `json:"primary_metric"`
	Thresholds    map[string]float64    `json:"thresholds"`
	Constraints   map[string]string     `json:"constraints,omitempty"`
	CreatedGen    core.Generation       `json:"created_generation"`
	CreatedAt     core.Timestamp        `json:"created_at"`
	VerdictID     core.VerdictID        `json:"verdict_id,omitempty"`
}

// Bootstrap creates the generation-0 invariant set, version 0.
func Bootstrap(primaryMetric string, thresholds map[string]float64) Set {
	return Set{
		Version:       0,
		PrimaryMetric: primaryMetric,
		Thresholds:    cloneThresholds(thresholds),
		CreatedGen:    0,
		CreatedAt:     core.Now(),
	}
}

// Threshold returns the named threshold, or fallback when absent.
func (s Set) Threshold(name string, fallback float64) float64 {
	if v, ok := s.Thresholds[name]; ok {
		return v
	}
	return fallback
}

// Revise creates the successor version with updated thresholds. The verdict
// that ratified the change is recorded on the new version.
func (s Set) Revise(updates map[string]float64, gen core.Generation, verdictID core.VerdictID) Set {
	next := Set{
		Version:       s.Version.Next(),
		PrimaryMetric: s.PrimaryMetric,
		Thresholds:    cloneThresholds(s.Thresholds),
		Constraints:   s.Constraints,
		CreatedGen:    gen,
		CreatedAt:     core.Now(),
		VerdictID:     verdictID,
	}
	for name, value := range updates {
		next.Thresholds[name] = value
	}
	return next
}

// Fingerprint is a deterministic hash of the set's semantic content,
// independent of creation time.
func (s Set) Fingerprint() core.Hash {
	type semantic struct {
		Version       core.InvariantVersion `json:"version"`
		PrimaryMetric string                `json:"primary_metric"`
		Names         []string              `json:"names"`
		Values        []float64             `json:"values"`
	}
	names := make([]string, 0, len(s.Thresholds))
	for name := range s.Thresholds {
		names = append(names, name)
	}
	sort.Strings(names)
	values := make([]float64, len(names))
	for i, name := range names {
		values[i] = s.Thresholds[name]
	}
	data, _ := json.Marshal(semantic{s.Version, s.PrimaryMetric, names, values})
	return core.NewHash(data)
}

func cloneThresholds(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
