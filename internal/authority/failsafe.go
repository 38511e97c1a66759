package authority

import (
	"context"
	"fmt"
	"time"

	"iaicore/domain/evidence"
	"iaicore/domain/invariant"
	"iaicore/domain/proposal"
	"iaicore/domain/verdict"
	"iaicore/ports"
)

// Failsafe wraps any authority backend and guarantees that review never
// blocks the loop and never errors out of it: a timeout, a backend failure,
// or an unusable verdict all collapse to REJECT with the failure recorded
// in the rationale. The engine holds current state on REJECT, so the worst
// a broken authority can do is freeze progress, never corrupt it.
type Failsafe struct {
	backend ports.AuthorityPort
	timeout time.Duration
}

// NewFailsafe wraps backend with the review timeout.
func NewFailsafe(backend ports.AuthorityPort, timeout time.Duration) *Failsafe {
	return &Failsafe{backend: backend, timeout: timeout}
}

func (f *Failsafe) Name() string { return f.backend.Name() + "/failsafe" }

// Review delegates to the backend under a deadline. The returned error is
// always nil.
func (f *Failsafe) Review(ctx context.Context, p proposal.Proposal, ev []evidence.Package, active invariant.Set) (verdict.Verdict, error) {
	reviewCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		reviewCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	type result struct {
		v   verdict.Verdict
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := f.backend.Review(reviewCtx, p, ev, active)
		done <- result{v, err}
	}()

	select {
	case <-reviewCtx.Done():
		return f.rejectVerdict(p, fmt.Sprintf("review timed out after %s", f.timeout)), nil
	case res := <-done:
		if res.err != nil {
			return f.rejectVerdict(p, fmt.Sprintf("review failed: %v", res.err)), nil
		}
		if res.v.Decision == "" {
			return f.rejectVerdict(p, "backend returned no decision"), nil
		}
		return f.enforceVocabulary(p, res.v), nil
	}
}

// enforceVocabulary pins the decision vocabulary to the proposal type,
// whatever the backend returned: a no_change heartbeat always resolves to
// NO_CHANGE, and NO_CHANGE never applies to a proposal that requests a
// state change.
func (f *Failsafe) enforceVocabulary(p proposal.Proposal, v verdict.Verdict) verdict.Verdict {
	switch {
	case p.Type == proposal.TypeNoChange && v.Decision != verdict.DecisionNoChange:
		ack := verdict.New(p.ID, p.Generation, verdict.DecisionNoChange,
			fmt.Sprintf("heartbeat acknowledged; backend ruled %s on a no_change proposal", v.Decision), 1.0)
		ack.Backend = f.Name()
		return ack
	case p.Type != proposal.TypeNoChange && v.Decision == verdict.DecisionNoChange:
		return f.rejectVerdict(p, fmt.Sprintf("backend ruled NO_CHANGE on a %s proposal", p.Type))
	}
	return v
}

func (f *Failsafe) rejectVerdict(p proposal.Proposal, rationale string) verdict.Verdict {
	v := verdict.New(p.ID, p.Generation, verdict.DecisionReject, rationale, 1.0)
	v.Backend = f.Name()
	return v
}
