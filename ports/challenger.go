package ports

import (
	"iaicore/domain/core"
	"iaicore/domain/evidence"
	"iaicore/domain/hypothesis"
	"iaicore/domain/invariant"
	"iaicore/domain/proposal"
	"iaicore/domain/trace"
)

// ChallengerPort analyzes a generation's trace and evidence for strain and
// emits the cycle's proposal set. Advisory only: implementations never apply
// changes. The returned set is never empty (heartbeat no_change on quiet
// cycles).
type ChallengerPort interface {
	Analyze(tr trace.Trace, ev []evidence.Package, active invariant.Set, hyps []*hypothesis.Hypothesis, gen core.Generation) proposal.Set
}
