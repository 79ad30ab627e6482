package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// PostgreSQL driver import for side effects (registers the driver)
	_ "github.com/lib/pq"

	"github.com/nathannewyen/fhir-gateway/internal/gateway"
)

const createAuditTableSQL = `
CREATE TABLE IF NOT EXISTS access_audit (
	id SERIAL PRIMARY KEY,
	request_id TEXT NOT NULL,
	method TEXT NOT NULL,
	path TEXT NOT NULL,
	subject TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertAuditSQL = `
INSERT INTO access_audit (request_id, method, path, subject, status_code, outcome, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// PostgresSink persists each AuditEntry as one row. Adapted from the
// retrieval pack's NewPostgresConnection: opens against a single DSN,
// pings once at construction, and fails fast if the audit table can't be
// created.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink opens a connection to dsn and ensures the audit table exists.
func NewPostgresSink(dsn string) (*PostgresSink, error) {
	db, openErr := sql.Open("postgres", dsn)
	if openErr != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", openErr)
	}
	if pingErr := db.Ping(); pingErr != nil {
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}
	if _, err := db.Exec(createAuditTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

// Record implements gateway.AuditRecorder. A write failure is dropped
// rather than propagated: the audit trail must never block or fail the
// request path it is recording.
func (s *PostgresSink) Record(ctx context.Context, entry gateway.AuditEntry) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, _ = s.db.ExecContext(ctx, insertAuditSQL,
		entry.RequestID, entry.Method, entry.Path, entry.Subject,
		entry.StatusCode, entry.Outcome, entry.Detail)
}

// Close releases the underlying connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
