package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaicore/domain/audit"
	"iaicore/domain/core"
	"iaicore/domain/evidence"
	"iaicore/domain/invariant"
	"iaicore/domain/proposal"
	"iaicore/domain/trace"
	"iaicore/domain/verdict"
	"iaicore/internal/authority"
	"iaicore/internal/challenger"
	"iaicore/internal/config"
	"iaicore/internal/evaluator"
	"iaicore/internal/registry"
	"iaicore/internal/testkit"
	"iaicore/ports"
)

func bootstrapSet() invariant.Set {
	return invariant.Bootstrap("mean_payoff", map[string]float64{
		invariant.ThresholdMinEdge:       0.0,
		invariant.ThresholdMinSample:     30,
		invariant.ThresholdStability:     0.60,
		invariant.ThresholdMaxParamDelta: 20.0,
	})
}

func defaultChallenger() ports.ChallengerPort {
	return challenger.New(config.ChallengerConfig{
		WindowSize:       100,
		SlopeRatio:       1.2,
		VarianceRatio:    1.5,
		SwitchRateCoV:    0.15,
		RecoveryBound:    0.15,
		MaxParamDeltaPct: 20.0,
	})
}

func newTestOrchestrator(runID core.RunID, sink ports.AuditSinkPort, opt ports.OptimizerPort, auth ports.AuthorityPort, maxGens int) *Orchestrator {
	deps := Deps{
		Optimizer:  opt,
		Dataset:    &testkit.StaticDataset{Dataset: testkit.GenerateOutcomes(7, 200, 0.05, 0.1)},
		Evaluator:  evaluator.NewDefault(),
		Challenger: defaultChallenger(),
		Authority:  auth,
		Registry:   registry.New(),
		Sink:       sink,
	}
	cfg := config.OrchestratorConfig{MaxGenerations: maxGens, EvalParallelism: 2}
	return New(runID, bootstrapSet(), deps, cfg, time.Minute)
}

func acceleratingTrace() trace.Trace {
	records := make([]trace.OutcomeRecord, 300)
	for i := range records {
		regret := 0.1
		if i >= 200 {
			regret = 0.5
		}
		records[i] = trace.OutcomeRecord{Step: i, Decision: "arm-0", Outcome: 0.1, Regret: regret, Timestamp: core.Now()}
	}
	return trace.New(records)
}

func TestRun_QuietGenerationHoldsInvariants(t *testing.T) {
	// No strain: the heartbeat proposal is acknowledged and the resulting
	// invariant version equals the prior version.
	runID := core.RunID(core.NewID())
	sink := testkit.NewMemorySink()
	opt := &testkit.ScriptedOptimizer{Traces: []trace.Trace{testkit.SteadyTrace(300)}}
	auth := authority.New(config.AuthorityConfig{Strictness: "strict"}, 30)

	o := newTestOrchestrator(runID, sink, opt, auth, 1)
	require.NoError(t, o.Run(context.Background()))

	records, err := sink.List(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Len(t, rec.Proposals, 1)
	assert.Equal(t, proposal.TypeNoChange, rec.Proposals[0].Type)
	require.Len(t, rec.Verdicts, 1)
	assert.Equal(t, verdict.DecisionNoChange, rec.Verdicts[0].Decision)
	assert.Equal(t, rec.ActiveVersion, rec.ResultingSet.Version)
	assert.Equal(t, core.InvariantVersion(0), o.Active().Version)

	m := o.Metrics()
	assert.Equal(t, 1, m.GenerationsCompleted)
	assert.Equal(t, 1, m.NoChange)
}

func TestRun_StrainRevisesInvariantsAfterDurableLog(t *testing.T) {
	// Accelerating regret in generation 0 produces an invariant revision;
	// the revised set must be what generation 1's optimizer run receives.
	runID := core.RunID(core.NewID())
	sink := testkit.NewMemorySink()
	opt := &testkit.ScriptedOptimizer{Traces: []trace.Trace{acceleratingTrace(), testkit.SteadyTrace(300)}}
	auth := authority.New(config.AuthorityConfig{Strictness: "balanced"}, 30)

	o := newTestOrchestrator(runID, sink, opt, auth, 2)
	require.NoError(t, o.Run(context.Background()))

	require.Len(t, opt.SeenSets, 2)
	assert.Equal(t, core.InvariantVersion(0), opt.SeenSets[0].Version)
	assert.Equal(t, core.InvariantVersion(1), opt.SeenSets[1].Version)
	assert.InDelta(t, 0.66, opt.SeenSets[1].Threshold(invariant.ThresholdStability, 0), 1e-9)

	records, err := sink.List(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, core.InvariantVersion(1), records[0].ResultingSet.Version)
	assert.Equal(t, core.InvariantVersion(1), records[1].ActiveVersion)
	require.NoError(t, audit.VerifyChain(records))

	assert.Equal(t, 1, o.Metrics().InvariantRevisions)
}

func TestRun_AppendFailureLeavesPriorStateActive(t *testing.T) {
	// The audit append is the activation point: when it fails, the revised
	// set must not take effect.
	runID := core.RunID(core.NewID())
	sink := testkit.NewMemorySink()
	sink.FailNextAppend = errors.New("disk full")
	opt := &testkit.ScriptedOptimizer{Traces: []trace.Trace{acceleratingTrace()}}
	auth := authority.New(config.AuthorityConfig{Strictness: "balanced"}, 30)

	o := newTestOrchestrator(runID, sink, opt, auth, 1)
	err := o.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, core.InvariantVersion(0), o.Active().Version, "unlogged revision must not activate")

	// The run closes with a failure record pointing at version 0.
	records, listErr := sink.List(context.Background(), runID)
	require.NoError(t, listErr)
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].Failure)
	assert.Equal(t, core.InvariantVersion(0), records[0].ResultingSet.Version)
}

func TestResume_ContinuesAfterCrashBetweenGenerations(t *testing.T) {
	// Crash after LOG of generation 3: a fresh orchestrator over the same
	// sink resumes at generation 4 with generation 3's logged set, no
	// duplicate application.
	runID := core.RunID(core.NewID())
	sink := testkit.NewMemorySink()
	auth := authority.New(config.AuthorityConfig{Strictness: "balanced"}, 30)

	opt1 := &testkit.ScriptedOptimizer{Traces: []trace.Trace{acceleratingTrace()}}
	first := newTestOrchestrator(runID, sink, opt1, auth, 4)
	require.NoError(t, first.Run(context.Background()))

	opt2 := &testkit.ScriptedOptimizer{}
	second := newTestOrchestrator(runID, sink, opt2, auth, 6)
	require.NoError(t, second.Resume(context.Background()))

	assert.Equal(t, core.Generation(4), second.NextGeneration())
	assert.Equal(t, first.Active().Version, second.Active().Version)

	require.NoError(t, second.Run(context.Background()))

	records, err := sink.List(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, records, 6)
	for i, rec := range records {
		assert.Equal(t, core.Generation(i), rec.Generation, "generations must be contiguous with no duplicates")
	}
	require.NoError(t, audit.VerifyChain(records))

	// Replay over the combined log reconstructs the live state.
	replayed, err := audit.Replay(records, bootstrapSet())
	require.NoError(t, err)
	assert.Equal(t, second.Active().Version, replayed.Version)
	assert.Equal(t, second.Active().Fingerprint(), replayed.Fingerprint())
}

func TestResume_EmptySinkStartsFresh(t *testing.T) {
	runID := core.RunID(core.NewID())
	sink := testkit.NewMemorySink()
	auth := authority.New(config.AuthorityConfig{Strictness: "strict"}, 30)

	o := newTestOrchestrator(runID, sink, &testkit.ScriptedOptimizer{}, auth, 1)
	require.NoError(t, o.Resume(context.Background()))
	assert.Equal(t, core.Generation(0), o.NextGeneration())
}

// misattributedAuthority issues verdicts for a proposal other than the one
// under review.
type misattributedAuthority struct{}

func (misattributedAuthority) Name() string { return "rogue" }

func (misattributedAuthority) Review(ctx context.Context, p proposal.Proposal, ev []evidence.Package, active invariant.Set) (verdict.Verdict, error) {
	v := verdict.New(core.ProposalID(core.NewID()), p.Generation, verdict.DecisionAccept, "approving something else", 1.0)
	v.Backend = "rogue"
	return v, nil
}

func TestRun_MisattributedVerdictTripsGuardrail(t *testing.T) {
	runID := core.RunID(core.NewID())
	sink := testkit.NewMemorySink()
	opt := &testkit.ScriptedOptimizer{Traces: []trace.Trace{testkit.SteadyTrace(300)}}

	o := newTestOrchestrator(runID, sink, opt, misattributedAuthority{}, 1)
	err := o.Run(context.Background())

	require.Error(t, err)
	assert.True(t, core.IsGuardrailViolation(err))

	records, listErr := sink.List(context.Background(), runID)
	require.NoError(t, listErr)
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].Failure)
}

func TestRun_SpentBudgetTripsGuardrail(t *testing.T) {
	// A run resumed at or past its generation budget must refuse to start
	// rather than silently do nothing.
	runID := core.RunID(core.NewID())
	sink := testkit.NewMemorySink()
	auth := authority.New(config.AuthorityConfig{Strictness: "balanced"}, 30)

	first := newTestOrchestrator(runID, sink, &testkit.ScriptedOptimizer{}, auth, 2)
	require.NoError(t, first.Run(context.Background()))

	second := newTestOrchestrator(runID, sink, &testkit.ScriptedOptimizer{}, auth, 2)
	require.NoError(t, second.Resume(context.Background()))

	err := second.Run(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsGuardrailViolation(err))
	assert.ErrorIs(t, err, core.ErrBudgetExhausted)

	records, listErr := sink.List(context.Background(), runID)
	require.NoError(t, listErr)
	assert.Len(t, records, 2, "the refusal itself is not a generation and logs nothing")
}

func TestRun_CancelledContextStops(t *testing.T) {
	runID := core.RunID(core.NewID())
	sink := testkit.NewMemorySink()
	auth := authority.New(config.AuthorityConfig{Strictness: "strict"}, 30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(runID, sink, &testkit.ScriptedOptimizer{}, auth, 3)
	err := o.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	records, listErr := sink.List(context.Background(), runID)
	require.NoError(t, listErr)
	assert.Empty(t, records, "a cancelled generation must log nothing")
}
