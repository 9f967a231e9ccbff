// Package audit provides the best-effort audit trail for the control
// plane. Records are appended to a SQLite database; failures are logged
// and swallowed so they never affect a primary state transition.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilupskalvis/branchd/internal/models"
)

// Store is the SQLite-backed audit record store.
type Store struct {
	db *sql.DB
}

// NewStore opens the audit database at the given path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the audit schema.
func (s *Store) initialize() error {
	schema := `
	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		event_type TEXT NOT NULL,
		event_category TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		severity TEXT NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_records(target_type, target_id);
	CREATE INDEX IF NOT EXISTS idx_audit_recorded_at ON audit_records(recorded_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts one audit record.
func (s *Store) Append(ctx context.Context, rec *models.AuditRecord) error {
	var metadata []byte
	if rec.Metadata != nil {
		var err error
		metadata, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_records (recorded_at, event_type, event_category, target_type, target_id, operation, severity, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		recordedAt, rec.EventType, rec.EventCategory, rec.TargetType, rec.TargetID,
		rec.Operation, rec.Severity, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*models.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT recorded_at, event_type, event_category, target_type, target_id, operation, severity, metadata
		 FROM audit_records ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		rec := &models.AuditRecord{}
		var metadata sql.NullString
		if err := rows.Scan(&rec.RecordedAt, &rec.EventType, &rec.EventCategory,
			&rec.TargetType, &rec.TargetID, &rec.Operation, &rec.Severity, &metadata); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
