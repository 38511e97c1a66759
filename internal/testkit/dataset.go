package testkit

import (
	"context"
	"math/rand"

	"iaicore/domain/core"
	"iaicore/domain/dataset"
)

// StaticDataset serves a fixed dataset through the provider port.
type StaticDataset struct {
	Dataset dataset.Dataset
	Err     error
}

func (s *StaticDataset) Load(ctx context.Context) (dataset.Dataset, error) {
	if s.Err != nil {
		return dataset.Dataset{}, s.Err
	}
	return s.Dataset, nil
}

// GenerateOutcomes builds a synthetic dataset of n records whose payoffs
// center on mean with the given noise. Each record carries an "odds"
// feature spread across [1.2, 3.2] so bound parameters have something to
// filter on. Deterministic for a given seed.
func GenerateOutcomes(seed int64, n int, mean, noise float64) dataset.Dataset {
	rng := rand.New(rand.NewSource(seed))
	records := make([]dataset.Record, n)
	for i := range records {
		records[i] = dataset.Record{
			Timestamp: core.Now(),
			Features:  map[string]float64{"odds": 1.2 + 2.0*rng.Float64()},
			Payoff:    mean + noise*rng.NormFloat64(),
		}
	}
	return dataset.Dataset{Name: "synthetic", Records: records}
}
