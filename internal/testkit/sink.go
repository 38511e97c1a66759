package testkit

import (
	"context"
	"sync"

	"iaicore/domain/audit"
	"iaicore/domain/core"
)

// MemorySink is an in-memory audit sink for tests. Append is "durable" the
// moment it returns, which is exactly the contract the orchestrator relies
// on; FailNextAppend lets tests exercise the crash-ordering guarantees.
type MemorySink struct {
	mu      sync.Mutex
	records map[core.RunID][]audit.Record

	FailNextAppend error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[core.RunID][]audit.Record)}
}

func (s *MemorySink) Append(ctx context.Context, record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNextAppend != nil {
		err := s.FailNextAppend
		s.FailNextAppend = nil
		return err
	}
	s.records[record.RunID] = append(s.records[record.RunID], record)
	return nil
}

func (s *MemorySink) List(ctx context.Context, runID core.RunID) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records[runID]
	out := make([]audit.Record, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemorySink) Last(ctx context.Context, runID core.RunID) (*audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records[runID]
	if len(records) == 0 {
		return nil, core.ErrRecordNotFound
	}
	last := records[len(records)-1]
	return &last, nil
}
