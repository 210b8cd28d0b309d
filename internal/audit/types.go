// Package audit records the outcome of every report generation request: what
// was retrieved, how many attempts were made and which citations failed.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/service"
)

// Record is one generation request as seen by the audit log.
type Record struct {
	ID               int64     `json:"id,omitempty"`
	RequestID        string    `json:"request_id"`
	PatientID        string    `json:"patient_id"`
	ReportDate       string    `json:"report_date,omitempty"`
	Transport        string    `json:"transport"`
	Query            string    `json:"query"`
	RetrievedIDs     []string  `json:"retrieved_ids"`
	Attempts         int       `json:"attempts"`
	State            string    `json:"state"`
	CitationPolicy   string    `json:"citation_policy"`
	InvalidCitations []string  `json:"invalid_citations"`
	Errors           []string  `json:"errors"`
	Persisted        bool      `json:"persisted"`
	DurationMS       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// RecordFromResult summarises a generation trace.
func RecordFromResult(res *service.GenerationResult, policy domain.CitationPolicy, transport string) *Record {
	return &Record{
		RequestID:        res.RequestID,
		PatientID:        res.Patient.UUID,
		ReportDate:       res.Date,
		Transport:        transport,
		Query:            res.Query,
		RetrievedIDs:     orEmpty(domain.PassageIDs(res.Retrieved)),
		Attempts:         len(res.Attempts),
		State:            string(res.State),
		CitationPolicy:   string(policy),
		InvalidCitations: orEmpty(res.Citations.InvalidIDs),
		Errors:           orEmpty(res.Errors),
		Persisted:        res.Persisted,
		DurationMS:       res.Duration.Milliseconds(),
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Store defines the interface for audit storage operations.
type Store interface {
	// Save appends a record and assigns its ID and CreatedAt.
	Save(ctx context.Context, record *Record) error

	// Get returns the record for a request, or nil when none exists.
	Get(ctx context.Context, requestID string) (*Record, error)

	// List returns records newest first. A non-empty patientID filters by patient.
	List(ctx context.Context, patientID string, limit, offset int) ([]*Record, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// ExportJSON writes every record to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Records    []*Record `json:"records"`
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

func exportJSON(ctx context.Context, s Store, writer io.Writer) error {
	all, err := s.List(ctx, "", maxExportLimit, 0)
	if err != nil {
		return err
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Records:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// listColumns are the JSON-encoded list columns, in scan order.
type listColumns struct {
	retrieved, invalid, errs []byte
}

func (c *listColumns) decode(r *Record) error {
	for _, f := range []struct {
		raw []byte
		dst *[]string
	}{
		{c.retrieved, &r.RetrievedIDs},
		{c.invalid, &r.InvalidCitations},
		{c.errs, &r.Errors},
	} {
		*f.dst = []string{}
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return err
		}
	}
	return nil
}

func encodeList(s []string) string {
	data, _ := json.Marshal(orEmpty(s))
	return string(data)
}
