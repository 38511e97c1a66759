package ports

import (
	"context"

	"iaicore/domain/evidence"
	"iaicore/domain/invariant"
	"iaicore/domain/proposal"
	"iaicore/domain/verdict"
)

// AuthorityPort reviews a single Challenger proposal against the binding
// invariants and returns an auditable verdict. Implementations never
// originate or apply changes; the rule-based authority, a human reviewer,
// and an LLM backend are interchangeable behind this interface, and all of
// them sit behind the fail-safe wrapper that converts any error into a
// REJECT verdict.
type AuthorityPort interface {
	Review(ctx context.Context, p proposal.Proposal, ev []evidence.Package, active invariant.Set) (verdict.Verdict, error)

	// Name identifies the backend in verdict audit fields.
	Name() string
}
