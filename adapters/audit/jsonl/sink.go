package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"iaicore/domain/audit"
	"iaicore/domain/core"
	apperrors "iaicore/internal/errors"
)

// Sink is an append-only JSONL audit log: one chain-hashed record per line.
// Append fsyncs before returning, which is the durability point the
// orchestrator's activation ordering depends on.
type Sink struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open creates or opens the log file for appending.
func Open(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "create audit directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "open audit log")
	}
	return &Sink{path: path, file: f}, nil
}

// Close releases the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Append writes one record as a JSON line and flushes it to disk.
func (s *Sink) Append(ctx context.Context, record audit.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(record)
	if err != nil {
		return apperrors.WrapCode(err, apperrors.CodeDatabaseError, "marshal audit record")
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		return apperrors.WrapCode(err, apperrors.CodeDatabaseError, "append audit record")
	}
	if err := s.file.Sync(); err != nil {
		return apperrors.WrapCode(err, apperrors.CodeDatabaseError, "flush audit record")
	}
	return nil
}

// List returns the run's records in log order.
func (s *Sink) List(ctx context.Context, runID core.RunID) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll(runID)
}

// Last returns the run's most recent record, or ErrRecordNotFound.
func (s *Sink) Last(ctx context.Context, runID core.RunID) (*audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readAll(runID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.ErrRecordNotFound
	}
	last := records[len(records)-1]
	return &last, nil
}

// Verify checks hash linkage over the run's full history.
func (s *Sink) Verify(ctx context.Context, runID core.RunID) error {
	records, err := s.List(ctx, runID)
	if err != nil {
		return err
	}
	return audit.VerifyChain(records)
}

// Runs lists the distinct run identifiers present in the log.
func (s *Sink) Runs(ctx context.Context) ([]core.RunID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readAll("")
	if err != nil {
		return nil, err
	}
	seen := make(map[core.RunID]bool)
	var runs []core.RunID
	for _, r := range records {
		if !seen[r.RunID] {
			seen[r.RunID] = true
			runs = append(runs, r.RunID)
		}
	}
	return runs, nil
}

// readAll scans the whole file. Empty runID matches every record.
func (s *Sink) readAll(runID core.RunID) ([]audit.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "open audit log")
	}
	defer f.Close()

	var records []audit.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, fmt.Sprintf("decode audit line %d", lineNo))
		}
		if runID == "" || record.RunID == runID {
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "scan audit log")
	}
	return records, nil
}
