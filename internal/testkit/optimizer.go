package testkit

import (
	"context"
	"math"
	"math/rand"

	"iaicore/domain/core"
	"iaicore/domain/invariant"
	"iaicore/domain/trace"
)

// ScriptedOptimizer replays pre-built traces, one per generation, and
// records the invariant set each run was handed so tests can assert what
// was active when.
type ScriptedOptimizer struct {
	Traces []trace.Trace
	Err    error

	SeenSets []invariant.Set
}

func (s *ScriptedOptimizer) Run(ctx context.Context, gen core.Generation, active invariant.Set) (trace.Trace, error) {
	if s.Err != nil {
		return trace.Trace{}, s.Err
	}
	s.SeenSets = append(s.SeenSets, active)
	if int(gen) < len(s.Traces) {
		return s.Traces[int(gen)], nil
	}
	return SteadyTrace(200), nil
}

// SteadyTrace builds a quiet trace: flat regret, symmetric outcomes, a
// uniform switch cadence. No strain signal fires on it.
func SteadyTrace(n int) trace.Trace {
	records := make([]trace.OutcomeRecord, n)
	for i := range records {
		outcome := 0.1
		if i%2 == 1 {
			outcome = -0.1
		}
		records[i] = trace.OutcomeRecord{
			Step:      i,
			Decision:  "arm-0",
			Outcome:   outcome,
			Regret:    0.05,
			Switched:  i%10 == 0,
			Timestamp: core.Now(),
		}
	}
	return trace.New(records)
}

// BanditOptimizer is a synthetic two-arm bandit collaborator with a known
// mid-run regime shift: the better arm swaps at ShiftStep, so the
// epsilon-greedy policy accumulates regret until it relearns. Deterministic
// for a given seed.
type BanditOptimizer struct {
	Steps     int
	ShiftStep int
	Epsilon   float64
	Seed      int64
}

// NewBanditOptimizer builds the default demo bandit: 500 steps, shift at
// 250, 10% exploration.
func NewBanditOptimizer(seed int64) *BanditOptimizer {
	return &BanditOptimizer{Steps: 500, ShiftStep: 250, Epsilon: 0.1, Seed: seed}
}

func (b *BanditOptimizer) Run(ctx context.Context, gen core.Generation, active invariant.Set) (trace.Trace, error) {
	if err := ctx.Err(); err != nil {
		return trace.Trace{}, err
	}
	rng := rand.New(rand.NewSource(b.Seed + int64(gen)))

	// Arm means; the better arm flips at the shift step.
	means := [2]float64{0.5, 0.3}
	counts := [2]int{}
	sums := [2]float64{}
	prevArm := -1

	records := make([]trace.OutcomeRecord, b.Steps)
	for i := 0; i < b.Steps; i++ {
		if i == b.ShiftStep {
			means[0], means[1] = means[1], means[0]
		}

		arm := bestArm(counts, sums)
		if rng.Float64() < b.Epsilon {
			arm = rng.Intn(2)
		}

		outcome := means[arm] + 0.1*rng.NormFloat64()
		counts[arm]++
		sums[arm] += outcome

		best := math.Max(means[0], means[1])
		records[i] = trace.OutcomeRecord{
			Step:      i,
			Decision:  armName(arm),
			Outcome:   outcome,
			Regret:    best - means[arm],
			Switched:  prevArm >= 0 && arm != prevArm,
			Timestamp: core.Now(),
		}
		prevArm = arm
	}
	return trace.Trace{Records: records, ShiftStep: b.ShiftStep}, nil
}

func bestArm(counts [2]int, sums [2]float64) int {
	// Untried arms first, then highest empirical mean.
	for arm, c := range counts {
		if c == 0 {
			return arm
		}
	}
	if sums[0]/float64(counts[0]) >= sums[1]/float64(counts[1]) {
		return 0
	}
	return 1
}

func armName(arm int) string {
	if arm == 0 {
		return "arm-0"
	}
	return "arm-1"
}
