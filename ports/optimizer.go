package ports

import (
	"context"

	"iaicore/domain/core"
	"iaicore/domain/invariant"
	"iaicore/domain/trace"
)

// OptimizerPort is the external optimizer/strategy collaborator. It runs one
// generation under the active invariant set (read-only configuration) and
// returns the ordered outcome trace. The engine never reaches into the
// optimizer's internals.
type OptimizerPort interface {
	Run(ctx context.Context, gen core.Generation, active invariant.Set) (trace.Trace, error)
}
