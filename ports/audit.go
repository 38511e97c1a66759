package ports

import (
	"context"

	"iaicore/domain/audit"
	"iaicore/domain/core"
)

// AuditWriterPort provides append-only write access to the audit log.
// Append must be durable (flushed) before it returns: the orchestrator
// treats a returned nil as the point at which the generation's resulting
// invariant set becomes active.
type AuditWriterPort interface {
	Append(ctx context.Context, record audit.Record) error
}

// AuditReaderPort provides read-back for restart, recovery, and inspection.
type AuditReaderPort interface {
	// List returns all records for a run ordered by generation.
	List(ctx context.Context, runID core.RunID) ([]audit.Record, error)

	// Last returns the most recent record for a run, or ErrRecordNotFound
	// when the run has no durable history yet.
	Last(ctx context.Context, runID core.RunID) (*audit.Record, error)
}

// AuditSinkPort combines append and read-back, the full contract a durable
// sink implements.
type AuditSinkPort interface {
	AuditWriterPort
	AuditReaderPort
}
