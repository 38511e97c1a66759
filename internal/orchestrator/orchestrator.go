package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"iaicore/domain/audit"
	"iaicore/domain/core"
	"iaicore/domain/evidence"
	"iaicore/domain/hypothesis"
	"iaicore/domain/invariant"
	"iaicore/domain/proposal"
	"iaicore/domain/verdict"
	"iaicore/internal"
	"iaicore/internal/config"
	"iaicore/ports"
)

// Deps are the collaborators the orchestrator coordinates. It is the only
// component allowed to mutate engine state, and it does so exclusively on
// the Authority's ACCEPT/MODIFY verdicts.
type Deps struct {
	Optimizer  ports.OptimizerPort
	Dataset    ports.DatasetPort
	Evaluator  ports.EvaluatorPort
	Challenger ports.ChallengerPort
	Authority  ports.AuthorityPort
	Registry   ports.RegistryPort
	Sink       ports.AuditSinkPort
	Logger     *internal.Logger
}

// Orchestrator drives the generation loop:
//
//	INIT -> RUN_OPTIMIZER -> EVALUATE -> CHALLENGE -> AUTHORIZE ->
//	APPLY_OR_HOLD -> LOG -> (RUN_OPTIMIZER | TERMINATED)
//
// Generations are strictly sequential. The audit append in LOG is the last
// operation of a generation and must be durable before the resulting
// invariant set becomes active: on restart, the last logged record defines
// the active state, never an in-memory mutation.
type Orchestrator struct {
	deps        Deps
	cfg         config.OrchestratorConfig
	evalTimeout time.Duration

	runID    core.RunID
	active   invariant.Set
	prevHash core.Hash
	nextGen  core.Generation
	metrics  Metrics
}

// New creates an orchestrator in INIT state with the bootstrap invariant
// set active.
func New(runID core.RunID, bootstrap invariant.Set, deps Deps, cfg config.OrchestratorConfig, evalTimeout time.Duration) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = internal.DefaultLogger
	}
	return &Orchestrator{
		deps:        deps,
		cfg:         cfg,
		evalTimeout: evalTimeout,
		runID:       runID,
		active:      bootstrap,
		prevHash:    core.GenesisHash,
		nextGen:     0,
	}
}

// Active returns the currently binding invariant set.
func (o *Orchestrator) Active() invariant.Set { return o.active }

// Metrics returns the run counters accumulated so far.
func (o *Orchestrator) Metrics() Metrics { return o.metrics.Snapshot() }

// NextGeneration returns the generation the next Run call starts from.
func (o *Orchestrator) NextGeneration() core.Generation { return o.nextGen }

// Run executes generations until the configured budget is spent, the
// context is cancelled, or a fatal error occurs. Fatal errors are closed
// out with a failure audit record before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	if int(o.nextGen) >= o.cfg.MaxGenerations {
		return fmt.Errorf("run %s: %w: %d of %d generations already logged",
			o.runID, core.ErrBudgetExhausted, o.nextGen, o.cfg.MaxGenerations)
	}
	for int(o.nextGen) < o.cfg.MaxGenerations {
		if err := ctx.Err(); err != nil {
			// Cancellation at generation granularity: nothing from the
			// aborted generation was logged, so prior state stays active.
			return err
		}
		gen := o.nextGen
		if err := o.runGeneration(ctx, gen); err != nil {
			o.logFailure(ctx, gen, err)
			return err
		}
		o.metrics.GenerationsCompleted++
		o.nextGen = gen.Next()
	}
	o.reportMetrics()
	return nil
}

func (o *Orchestrator) runGeneration(ctx context.Context, gen core.Generation) error {
	log := o.deps.Logger
	log.Info("generation %d: optimizer run under invariant v%d", gen, o.active.Version)

	// RUN_OPTIMIZER
	tr, err := o.deps.Optimizer.Run(ctx, gen, o.active)
	if err != nil {
		return fmt.Errorf("generation %d: optimizer: %w", gen, err)
	}

	// EVALUATE
	packages, err := o.evaluate(ctx, gen)
	if err != nil {
		return fmt.Errorf("generation %d: evaluate: %w", gen, err)
	}

	// CHALLENGE
	set := o.deps.Challenger.Analyze(tr, packages, o.active, o.deps.Registry.All(), gen)
	if err := set.Validate(); err != nil {
		return fmt.Errorf("generation %d: challenge: %w", gen, err)
	}
	o.metrics.ProposalsMade += len(set)

	// AUTHORIZE
	verdicts := make([]verdict.Verdict, 0, len(set))
	for _, p := range set {
		v, err := o.deps.Authority.Review(ctx, p, packages, o.active)
		if err != nil {
			return fmt.Errorf("generation %d: authorize: %w", gen, err)
		}
		if err := o.checkRatification(p, v); err != nil {
			return fmt.Errorf("generation %d: %w", gen, err)
		}
		verdicts = append(verdicts, v)
		log.Info("generation %d: %s proposal %s -> %s", gen, p.Type, p.ID, v.Decision)
	}

	// APPLY_OR_HOLD computes the resulting state but defers all mutations
	// until the record is durable.
	resulting, staged := o.planApplication(set, verdicts, gen)

	// LOG
	record := audit.Record{
		Generation:    gen,
		RunID:         o.runID,
		Timestamp:     core.Now(),
		ActiveVersion: o.active.Version,
		EvidenceIDs:   evidenceIDs(packages),
		Proposals:     set,
		Verdicts:      verdicts,
		ResultingSet:  resulting,
	}
	if err := record.Seal(o.prevHash); err != nil {
		return fmt.Errorf("generation %d: %w", gen, err)
	}
	if err := o.deps.Sink.Append(ctx, record); err != nil {
		return fmt.Errorf("generation %d: audit append: %w", gen, err)
	}

	// The record is durable; the resulting set is now active.
	o.active = resulting
	o.prevHash = record.Hash
	for _, apply := range staged {
		apply()
	}
	return nil
}

// evaluate moves PROPOSED hypotheses into EVALUATING and evaluates every
// EVALUATING hypothesis against the dataset, bounded-parallel. A hypothesis
// that fails with an insufficient sample simply produces no package this
// generation; it is not a run failure.
func (o *Orchestrator) evaluate(ctx context.Context, gen core.Generation) ([]evidence.Package, error) {
	for _, h := range o.deps.Registry.ListByStatus(hypothesis.StatusProposed) {
		if err := o.deps.Registry.Transition(h.ID, hypothesis.StatusEvaluating); err != nil {
			return nil, err
		}
	}

	candidates := o.deps.Registry.ListByStatus(hypothesis.StatusEvaluating)
	candidates = append(candidates, o.deps.Registry.ListByStatus(hypothesis.StatusAccepted)...)
	if len(candidates) == 0 {
		return nil, nil
	}

	ds, err := o.deps.Dataset.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	window := evidence.FullWindow(ds.Len(), 0)

	parallelism := o.cfg.EvalParallelism
	if parallelism < 1 {
		parallelism = 1
	}

	results := make([]*evidence.Package, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, h := range candidates {
		g.Go(func() error {
			evalCtx := gctx
			if o.evalTimeout > 0 {
				var cancel context.CancelFunc
				evalCtx, cancel = context.WithTimeout(gctx, o.evalTimeout)
				defer cancel()
			}
			pkg, err := o.deps.Evaluator.Evaluate(evalCtx, *h, ds, window)
			if err != nil {
				if core.IsInsufficientSample(err) {
					o.deps.Logger.Warn("hypothesis %s: %v", h.ID, err)
					return nil
				}
				return fmt.Errorf("hypothesis %s: %w", h.ID, err)
			}
			results[i] = &pkg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var packages []evidence.Package
	for i, pkg := range results {
		if pkg == nil {
			continue
		}
		if err := o.deps.Registry.AttachEvidence(candidates[i].ID, pkg.ID); err != nil {
			return nil, err
		}
		packages = append(packages, *pkg)
	}
	o.deps.Logger.Debug("generation %d: %d evidence packages from %d candidates", gen, len(packages), len(candidates))
	return packages, nil
}

// checkRatification enforces the separation of powers: every state change
// must trace to a verdict issued by a named authority backend for exactly
// the proposal under review.
func (o *Orchestrator) checkRatification(p proposal.Proposal, v verdict.Verdict) error {
	if v.ProposalID != p.ID {
		return fmt.Errorf("%w: verdict %s rules on proposal %s, not %s", core.ErrSelfRatification, v.ID, v.ProposalID, p.ID)
	}
	if v.Decision.AppliesChange() && v.Backend == "" {
		return fmt.Errorf("%w: unattributed %s verdict %s", core.ErrSelfRatification, v.Decision, v.ID)
	}
	return nil
}

// planApplication computes the generation's resulting invariant set and the
// registry mutations that ACCEPT/MODIFY verdicts ratified. Nothing is
// applied here: mutations run only after the audit record is durable.
func (o *Orchestrator) planApplication(set proposal.Set, verdicts []verdict.Verdict, gen core.Generation) (invariant.Set, []func()) {
	resulting := o.active
	var staged []func()

	for i, v := range verdicts {
		o.metrics.countDecision(v.Decision)
		if !v.Decision.AppliesChange() {
			continue
		}
		p := set[i]

		switch p.Type {
		case proposal.TypeInvariantRevision:
			updates := p.InvariantRevision.ThresholdUpdates
			if v.Decision == verdict.DecisionModify && len(v.SuggestedAdjustment) > 0 {
				updates = v.SuggestedAdjustment
			}
			resulting = resulting.Revise(updates, gen, v.ID)
			o.metrics.InvariantRevisions++

		case proposal.TypeParameterAdjustment:
			adj := p.ParameterAdjustment
			value := adj.ProposedValue
			if v.Decision == verdict.DecisionModify {
				if bounded, ok := v.SuggestedAdjustment[adj.ParamName]; ok {
					value = bounded
				}
			}
			staged = append(staged, func() { o.applyAdjustment(adj.HypothesisID, adj.ParamName, value, gen) })

		case proposal.TypeNewHypothesis:
			payload := p.NewHypothesis
			staged = append(staged, func() {
				h := hypothesis.New(payload.Name, payload.Description, payload.Params, gen)
				if err := o.deps.Registry.Register(h); err != nil {
					o.deps.Logger.Error("register %s: %v", payload.Name, err)
					return
				}
				o.metrics.HypothesesRegistered++
			})

		case proposal.TypeExploration:
			// Budgeted probe; the optimizer collaborator consumes it on its
			// next run. No engine state changes.
		}
	}
	return resulting, staged
}

// applyAdjustment ratifies a parameter move: the target, having cleared the
// evidence gate, becomes ACCEPTED if it was still under evaluation, and a
// superseding version with the adjusted parameter enters the lifecycle at
// PROPOSED.
func (o *Orchestrator) applyAdjustment(id core.HypothesisID, param string, value float64, gen core.Generation) {
	h, err := o.deps.Registry.Get(id)
	if err != nil {
		o.deps.Logger.Error("adjust %s: %v", id, err)
		return
	}
	if h.Status == hypothesis.StatusEvaluating {
		if err := o.deps.Registry.Transition(id, hypothesis.StatusAccepted); err != nil {
			o.deps.Logger.Error("adjust %s: %v", id, err)
			return
		}
	}
	if _, err := o.deps.Registry.Supersede(id, h.Params.With(param, value), gen); err != nil {
		o.deps.Logger.Error("adjust %s: %v", id, err)
		return
	}
	o.metrics.HypothesesSuperseded++
}

// logFailure closes a terminated run with a final failure record. Best
// effort: a sink that cannot accept the record must not mask the original
// error.
func (o *Orchestrator) logFailure(ctx context.Context, gen core.Generation, cause error) {
	o.deps.Logger.Error("generation %d: fatal: %v", gen, cause)

	record := audit.Record{
		Generation:    gen,
		RunID:         o.runID,
		Timestamp:     core.Now(),
		ActiveVersion: o.active.Version,
		ResultingSet:  o.active,
		Failure:       cause.Error(),
	}
	if err := record.Seal(o.prevHash); err != nil {
		o.deps.Logger.Error("failure record: %v", err)
		return
	}
	if err := o.deps.Sink.Append(context.WithoutCancel(ctx), record); err != nil {
		o.deps.Logger.Error("failure record: %v", err)
		return
	}
	o.prevHash = record.Hash
}

func (o *Orchestrator) reportMetrics() {
	m := o.metrics
	o.deps.Logger.Info("run %s complete: %d generations, %d proposals (%d accepted, %d modified, %d rejected, %d no-change, %d evidence-requested), %d invariant revisions, active v%d",
		o.runID, m.GenerationsCompleted, m.ProposalsMade, m.Accepted, m.Modified, m.Rejected, m.NoChange, m.EvidenceRequested, m.InvariantRevisions, o.active.Version)
}

func evidenceIDs(packages []evidence.Package) []core.EvidenceID {
	if len(packages) == 0 {
		return nil
	}
	ids := make([]core.EvidenceID, len(packages))
	for i, pkg := range packages {
		ids[i] = pkg.ID
	}
	return ids
}
