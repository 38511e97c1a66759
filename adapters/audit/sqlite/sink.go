package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"iaicore/domain/audit"
	"iaicore/domain/core"
	apperrors "iaicore/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	generation INTEGER NOT NULL,
	prev_hash  TEXT NOT NULL,
	hash       TEXT NOT NULL,
	record     TEXT NOT NULL,
	UNIQUE (run_id, generation)
);`

// Sink is a single-file SQLite audit store for local runs. Synchronous mode
// FULL keeps the durability contract: Append returns only after the record
// is on disk.
type Sink struct {
	db *sqlx.DB
}

// Open creates or opens the database file and ensures the schema.
func Open(ctx context.Context, path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "create audit directory")
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "open sqlite audit sink")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "create audit schema")
	}
	return &Sink{db: db}, nil
}

// Close releases the database handle.
func (s *Sink) Close() error { return s.db.Close() }

// Append durably stores one record.
func (s *Sink) Append(ctx context.Context, record audit.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return apperrors.WrapCode(err, apperrors.CodeDatabaseError, "marshal audit record")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_records (run_id, generation, prev_hash, hash, record) VALUES (?, ?, ?, ?, ?)`,
		record.RunID.String(), int(record.Generation), string(record.PrevHash), string(record.Hash), string(payload))
	if err != nil {
		return apperrors.WrapCode(err, apperrors.CodeDatabaseError, "append audit record")
	}
	return nil
}

// List returns the run's records ordered by generation.
func (s *Sink) List(ctx context.Context, runID core.RunID) ([]audit.Record, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT record FROM audit_records WHERE run_id = ? ORDER BY generation`, runID.String())
	if err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "list audit records")
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "scan audit record")
		}
		var record audit.Record
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "decode audit record")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "iterate audit records")
	}
	return records, nil
}

// Last returns the run's most recent record, or ErrRecordNotFound.
func (s *Sink) Last(ctx context.Context, runID core.RunID) (*audit.Record, error) {
	var payload string
	err := s.db.QueryRowxContext(ctx,
		`SELECT record FROM audit_records WHERE run_id = ? ORDER BY generation DESC LIMIT 1`, runID.String()).
		Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrRecordNotFound
		}
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "read last audit record")
	}
	var record audit.Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "decode audit record")
	}
	return &record, nil
}

// Verify checks hash linkage over the run's stored history.
func (s *Sink) Verify(ctx context.Context, runID core.RunID) error {
	records, err := s.List(ctx, runID)
	if err != nil {
		return err
	}
	return audit.VerifyChain(records)
}
