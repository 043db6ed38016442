// Package postgres persists audit events durably. Compliance-category events
// must survive process restarts, so this is the sink of record when a DSN is
// configured.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	id "opsgate/pkg/domain"
	audit "opsgate/pkg/platform/audit"
	"opsgate/pkg/platform/tx"
)

// Store appends audit events to the authz_audit_events table.
type Store struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS authz_audit_events (
    id             BIGSERIAL PRIMARY KEY,
    category       TEXT        NOT NULL,
    event_name     TEXT        NOT NULL DEFAULT '',
    occurred_at    TIMESTAMPTZ NOT NULL,
    user_id        TEXT        NOT NULL,
    action         TEXT        NOT NULL,
    region         TEXT        NOT NULL DEFAULT '',
    case_id        TEXT        NOT NULL DEFAULT '',
    decision       TEXT        NOT NULL,
    reason         TEXT        NOT NULL,
    audit_level    TEXT        NOT NULL DEFAULT '',
    security_flags TEXT        NOT NULL DEFAULT '',
    mfa_method     TEXT        NOT NULL DEFAULT '',
    request_id     TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS authz_audit_events_user_idx
    ON authz_audit_events (user_id, occurred_at)`

// New opens a connection pool against the given postgres DSN, verifies it,
// and ensures the events table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing pool (used by integration tests).
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

const insertEvent = `
INSERT INTO authz_audit_events
    (category, event_name, occurred_at, user_id, action, region, case_id,
     decision, reason, audit_level, security_flags, mfa_method, request_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	// Joining a caller-owned transaction keeps the event atomic with
	// whatever state change it describes.
	var exec interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	} = s.db
	if callerTx, ok := tx.From(ctx); ok {
		exec = callerTx
	}

	_, err := exec.ExecContext(ctx, insertEvent,
		string(event.Category),
		string(event.Name),
		event.Timestamp,
		event.UserID.String(),
		event.Action,
		event.Region,
		event.CaseID,
		event.Decision,
		event.Reason,
		event.AuditLevel,
		strings.Join(event.SecurityFlags, ","),
		event.MFAMethod,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

const selectByUser = `
SELECT category, event_name, occurred_at, action, region, case_id, decision,
       reason, audit_level, security_flags, mfa_method, request_id
FROM authz_audit_events
WHERE user_id = $1
ORDER BY occurred_at ASC`

func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectByUser, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event audit.Event
			cat   string
			name  string
			flags string
		)
		event.UserID = userID
		if err := rows.Scan(&cat, &name, &event.Timestamp, &event.Action, &event.Region,
			&event.CaseID, &event.Decision, &event.Reason, &event.AuditLevel,
			&flags, &event.MFAMethod, &event.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(cat)
		event.Name = audit.AuditEvent(name)
		if flags != "" {
			event.SecurityFlags = strings.Split(flags, ",")
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}
