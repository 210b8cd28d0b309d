package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite audit store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets readers proceed while a request is being recorded.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const selectColumns = `id, request_id, patient_id, report_date, transport, query,
	retrieved_ids, attempts, state, citation_policy, invalid_citations, errors,
	persisted, duration_ms, created_at`

func scanRecord(s scanner) (*Record, error) {
	r := &Record{}
	var cols listColumns

	err := s.Scan(
		&r.ID, &r.RequestID, &r.PatientID, &r.ReportDate, &r.Transport, &r.Query,
		&cols.retrieved, &r.Attempts, &r.State, &r.CitationPolicy, &cols.invalid, &cols.errs,
		&r.Persisted, &r.DurationMS, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := cols.decode(r); err != nil {
		return nil, fmt.Errorf("failed to decode list column: %w", err)
	}
	return r, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS generation_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL UNIQUE,
		patient_id TEXT NOT NULL,
		report_date TEXT DEFAULT '',
		transport TEXT DEFAULT '',
		query TEXT DEFAULT '',
		retrieved_ids TEXT NOT NULL DEFAULT '[]',
		attempts INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		citation_policy TEXT DEFAULT '',
		invalid_citations TEXT NOT NULL DEFAULT '[]',
		errors TEXT NOT NULL DEFAULT '[]',
		persisted INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_audit_patient ON generation_audit(patient_id);
	CREATE INDEX IF NOT EXISTS idx_audit_created_at ON generation_audit(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores a record. A repeated request ID replaces the earlier record.
func (s *SQLiteStore) Save(ctx context.Context, r *Record) error {
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO generation_audit (
			request_id, patient_id, report_date, transport, query,
			retrieved_ids, attempts, state, citation_policy, invalid_citations, errors,
			persisted, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RequestID, r.PatientID, r.ReportDate, r.Transport, r.Query,
		encodeList(r.RetrievedIDs), r.Attempts, r.State, r.CitationPolicy,
		encodeList(r.InvalidCitations), encodeList(r.Errors),
		r.Persisted, r.DurationMS, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	return nil
}

// Get retrieves the record for a request.
func (s *SQLiteStore) Get(ctx context.Context, requestID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM generation_audit WHERE request_id = ? LIMIT 1", requestID)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return r, nil
}

// List returns records with pagination.
func (s *SQLiteStore) List(ctx context.Context, patientID string, limit, offset int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM generation_audit
		WHERE (? = '' OR patient_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, patientID, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	result := []*Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Count returns the total number of records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM generation_audit").Scan(&count)
	return count, err
}

// ExportJSON exports all records to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
