package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL audit store.
// It expects the generation_audit table to exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL audit store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save upserts a record keyed by request ID.
func (s *PostgresStore) Save(ctx context.Context, r *Record) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO generation_audit (
			request_id, patient_id, report_date, transport, query,
			retrieved_ids, attempts, state, citation_policy, invalid_citations, errors,
			persisted, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10::jsonb, $11::jsonb, $12, $13, $14)
		ON CONFLICT (request_id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			report_date = EXCLUDED.report_date,
			transport = EXCLUDED.transport,
			query = EXCLUDED.query,
			retrieved_ids = EXCLUDED.retrieved_ids,
			attempts = EXCLUDED.attempts,
			state = EXCLUDED.state,
			citation_policy = EXCLUDED.citation_policy,
			invalid_citations = EXCLUDED.invalid_citations,
			errors = EXCLUDED.errors,
			persisted = EXCLUDED.persisted,
			duration_ms = EXCLUDED.duration_ms
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		r.RequestID, r.PatientID, r.ReportDate, r.Transport, r.Query,
		encodeList(r.RetrievedIDs), r.Attempts, r.State, r.CitationPolicy,
		encodeList(r.InvalidCitations), encodeList(r.Errors),
		r.Persisted, r.DurationMS, now,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save audit record: %w", err)
	}
	return nil
}

// Get retrieves the record for a request.
func (s *PostgresStore) Get(ctx context.Context, requestID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM generation_audit WHERE request_id = $1 LIMIT 1", requestID)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	return r, nil
}

// List returns records with pagination.
func (s *PostgresStore) List(ctx context.Context, patientID string, limit, offset int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM generation_audit
		WHERE ($1 = '' OR patient_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM generation_audit").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return count, nil
}

// ExportJSON exports all records to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
