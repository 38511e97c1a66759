package ports

import (
	"context"

	"iaicore/domain/dataset"
)

// DatasetPort supplies historical or replayed outcome records to the
// Evaluator. Read-only and environment-sourced; never written by the core.
type DatasetPort interface {
	Load(ctx context.Context) (dataset.Dataset, error)
}
