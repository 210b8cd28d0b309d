package service

import (
	"context"
	"errors"
	"sync"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/testutil"
)

type stubRetriever struct {
	results []domain.RetrievalResult
	err     error

	queries []string
	ks      []int
}

func (r *stubRetriever) Retrieve(_ context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	r.queries = append(r.queries, query)
	r.ks = append(r.ks, k)
	if r.err != nil {
		return nil, r.err
	}
	if k < len(r.results) {
		return r.results[:k], nil
	}
	return r.results, nil
}

type memoryStore struct {
	mu      sync.Mutex
	reports []domain.StoredReport
	err     error
}

func (s *memoryStore) Save(_ context.Context, r domain.StoredReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, r)
	return nil
}

func (s *memoryStore) Load(_ context.Context, patientID, date string) (*domain.StoredReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reports {
		if s.reports[i].PatientID == patientID && s.reports[i].Date == date {
			return &s.reports[i], nil
		}
	}
	return nil, domain.ErrReportNotFound
}

func (s *memoryStore) ListDates(_ context.Context, patientID string) ([]string, error) {
	var dates []string
	for _, r := range s.reports {
		if r.PatientID == patientID {
			dates = append(dates, r.Date)
		}
	}
	return dates, nil
}

var errBoom = errors.New("boom")

func retrievedPassages() []domain.RetrievalResult {
	return []domain.RetrievalResult{
		{PassageID: "nice_ng28_hba1c", ChunkID: "nice_ng28_hba1c_chunk_0", Source: "NICE NG28", Section: "1.6", Score: 0.91, Text: "HbA1c target 48 mmol/mol"},
		{PassageID: "nice_ng136_bp", ChunkID: "nice_ng136_bp_chunk_0", Source: "NICE NG136", Section: "1.4", Score: 0.82, Text: "BP target below 140/90"},
		{PassageID: "ada_screening", ChunkID: "ada_screening_chunk_0", Source: "ADA", Section: "12", Score: 0.75, Text: "Annual retinal screening"},
	}
}

func reportJSON(bodyIDs, listIDs []string) string {
	return testutil.ReportJSON(bodyIDs, listIDs)
}
