package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"iaicore/domain/audit"
	"iaicore/domain/core"
	apperrors "iaicore/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL,
	generation INT  NOT NULL,
	prev_hash  TEXT NOT NULL,
	hash       TEXT NOT NULL,
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (run_id, generation)
);
CREATE INDEX IF NOT EXISTS idx_audit_records_run ON audit_records (run_id, generation);`

// Sink is a Postgres-backed append-only audit store. The UNIQUE constraint
// on (run_id, generation) makes duplicate application of a generation a
// database error rather than silent corruption.
type Sink struct {
	db *sqlx.DB
}

// Open connects and ensures the schema exists.
func Open(ctx context.Context, url string) (*Sink, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "connect postgres audit sink")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "create audit schema")
	}
	return &Sink{db: db}, nil
}

// Close releases the connection pool.
func (s *Sink) Close() error { return s.db.Close() }

// Append durably stores one record. Postgres commits synchronously, so a
// nil return means the record survives a crash.
func (s *Sink) Append(ctx context.Context, record audit.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return apperrors.WrapCode(err, apperrors.CodeDatabaseError, "marshal audit record")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_records (run_id, generation, prev_hash, hash, record) VALUES ($1, $2, $3, $4, $5)`,
		record.RunID.String(), int(record.Generation), string(record.PrevHash), string(record.Hash), payload)
	if err != nil {
		return apperrors.WrapCode(err, apperrors.CodeDatabaseError, "append audit record")
	}
	return nil
}

// List returns the run's records ordered by generation.
func (s *Sink) List(ctx context.Context, runID core.RunID) ([]audit.Record, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT record FROM audit_records WHERE run_id = $1 ORDER BY generation`, runID.String())
	if err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "list audit records")
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "scan audit record")
		}
		var record audit.Record
		if err := json.Unmarshal(payload, &record); err != nil {
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
	var payload []byte
	err := s.db.QueryRowxContext(ctx,
		`SELECT record FROM audit_records WHERE run_id = $1 ORDER BY generation DESC LIMIT 1`, runID.String()).
		Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrRecordNotFound
		}
		return nil, apperrors.WrapCode(err, apperrors.CodeDatabaseError, "read last audit record")
	}
	var record audit.Record
	if err := json.Unmarshal(payload, &record); err != nil {
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
