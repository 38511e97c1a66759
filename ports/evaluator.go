package ports

import (
	"context"

	"iaicore/domain/dataset"
	"iaicore/domain/evidence"
	"iaicore/domain/hypothesis"
)

// EvaluatorPort produces an immutable evidence package for one hypothesis
// over one dataset window. A pure function of its inputs: re-evaluation
// with the same inputs yields identical statistics. Returns an
// ErrInsufficientSample error when too few outcomes qualify.
type EvaluatorPort interface {
	Evaluate(ctx context.Context, h hypothesis.Hypothesis, ds dataset.Dataset, w evidence.Window) (evidence.Package, error)
}
