// Package repository persists accepted reports in PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/storage"
)

// ReportRepository implements domain.ReportStore on the generated_reports table.
type ReportRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *pgxpool.Pool, logger *logrus.Logger) *ReportRepository {
	return &ReportRepository{
		db:  db,
		log: logger,
	}
}

// Save upserts the report for a patient and date.
func (r *ReportRepository) Save(ctx context.Context, report domain.StoredReport) error {
	if err := storage.ValidateKey(report.PatientID, report.Date); err != nil {
		return err
	}

	reportJSON, err := json.Marshal(report.Report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	patientJSON, err := json.Marshal(report.Patient)
	if err != nil {
		return fmt.Errorf("encoding patient: %w", err)
	}

	query := `
		INSERT INTO generated_reports (patient_id, report_date, report, patient)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id, report_date) DO UPDATE SET
			report = EXCLUDED.report,
			patient = EXCLUDED.patient,
			updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, report.PatientID, day(report.Date), reportJSON, patientJSON); err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": report.PatientID,
			"date":       report.Date,
			"error":      err,
		}).Error("Failed to save report")
		return fmt.Errorf("saving report: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"patient_id": report.PatientID,
		"date":       report.Date,
	}).Info("Report saved")
	return nil
}

// Load returns domain.ErrReportNotFound when no row matches.
func (r *ReportRepository) Load(ctx context.Context, patientID, date string) (*domain.StoredReport, error) {
	if err := storage.ValidateKey(patientID, date); err != nil {
		return nil, err
	}

	query := `
		SELECT report, patient
		FROM generated_reports
		WHERE patient_id = $1 AND report_date = $2`

	var reportJSON, patientJSON []byte
	err := r.db.QueryRow(ctx, query, patientID, day(date)).Scan(&reportJSON, &patientJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReportNotFound
	}
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"date":       date,
			"error":      err,
		}).Error("Failed to load report")
		return nil, fmt.Errorf("loading report: %w", err)
	}

	stored := &domain.StoredReport{PatientID: patientID, Date: date}
	if err := json.Unmarshal(reportJSON, &stored.Report); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	if err := json.Unmarshal(patientJSON, &stored.Patient); err != nil {
		return nil, fmt.Errorf("decoding patient: %w", err)
	}
	return stored, nil
}

// ListDates returns the patient's report dates, newest first.
func (r *ReportRepository) ListDates(ctx context.Context, patientID string) ([]string, error) {
	query := `
		SELECT report_date
		FROM generated_reports
		WHERE patient_id = $1
		ORDER BY report_date DESC`

	rows, err := r.db.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("listing report dates: %w", err)
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning report date: %w", err)
		}
		dates = append(dates, d.Format(time.DateOnly))
	}
	return dates, rows.Err()
}

// Delete removes a single report. Deleting a missing report is not an error.
func (r *ReportRepository) Delete(ctx context.Context, patientID, date string) error {
	if err := storage.ValidateKey(patientID, date); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, "DELETE FROM generated_reports WHERE patient_id = $1 AND report_date = $2", patientID, day(date))
	if err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}
	r.log.WithFields(logrus.Fields{
		"patient_id": patientID,
		"date":       date,
		"rows":       tag.RowsAffected(),
	}).Info("Report deleted")
	return nil
}

// day converts an already validated YYYY-MM-DD string for the DATE column.
func day(date string) time.Time {
	t, _ := time.Parse(time.DateOnly, date)
	return t
}
