package orchestrator

import (
	"context"
	"fmt"

	"iaicore/domain/audit"
	"iaicore/domain/core"
)

// Resume restores the orchestrator's position from the sink's durable
// history. The last logged record defines the active invariant set and the
// next generation index; a crash between LOG and the next RUN_OPTIMIZER
// loses nothing and applies nothing twice. A run with no history starts
// fresh at generation 0.
func (o *Orchestrator) Resume(ctx context.Context) error {
	records, err := o.deps.Sink.List(ctx, o.runID)
	if err != nil {
		if core.IsNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("resume run %s: %w", o.runID, err)
	}
	if len(records) == 0 {
		return nil
	}

	if err := audit.VerifyChain(records); err != nil {
		return fmt.Errorf("resume run %s: %w", o.runID, err)
	}

	last := records[len(records)-1]
	if last.Failure != "" {
		return fmt.Errorf("resume run %s: run terminated at generation %d: %s", o.runID, last.Generation, last.Failure)
	}

	o.active = last.ResultingSet
	o.prevHash = last.Hash
	o.nextGen = last.Generation.Next()
	o.metrics.GenerationsCompleted = len(records)

	o.deps.Logger.Info("run %s resumed at generation %d, invariant v%d", o.runID, o.nextGen, o.active.Version)
	return nil
}
