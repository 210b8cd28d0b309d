// Package storage persists accepted reports on the local filesystem, one
// directory per patient and one subdirectory per generation date.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

const (
	ReportFile  = "report.json"
	PatientFile = "patient_data.json"
)

// FileReportStore implements domain.ReportStore under <root>/patients.
type FileReportStore struct {
	root   string
	logger *logrus.Logger
}

// NewFileReportStore stores reports under dataDir/patients.
func NewFileReportStore(dataDir string, logger *logrus.Logger) *FileReportStore {
	return &FileReportStore{root: filepath.Join(dataDir, "patients"), logger: logger}
}

// Dir returns the directory holding a given report.
func (s *FileReportStore) Dir(patientID, date string) (string, error) {
	if err := ValidateKey(patientID, date); err != nil {
		return "", err
	}
	return filepath.Join(s.root, patientID, date), nil
}

// Save stages both files as temp files before renaming either into place, the
// patient snapshot first and the report last. ListDates only sees a date once
// report.json exists. An existing report for the same patient and date is
// replaced.
func (s *FileReportStore) Save(_ context.Context, r domain.StoredReport) error {
	dir, err := s.Dir(r.PatientID, r.Date)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	reportPath := filepath.Join(dir, ReportFile)
	patientPath := filepath.Join(dir, PatientFile)

	reportTmp, err := stageJSON(reportPath, r.Report)
	if err != nil {
		return err
	}
	defer os.Remove(reportTmp)
	patientTmp, err := stageJSON(patientPath, r.Patient)
	if err != nil {
		return err
	}
	defer os.Remove(patientTmp)

	_, statErr := os.Stat(reportPath)
	replacing := statErr == nil

	if err := os.Rename(patientTmp, patientPath); err != nil {
		return fmt.Errorf("renaming %s: %w", PatientFile, err)
	}
	if err := os.Rename(reportTmp, reportPath); err != nil {
		if !replacing {
			os.Remove(patientPath)
		}
		return fmt.Errorf("renaming %s: %w", ReportFile, err)
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id": r.PatientID,
		"date":       r.Date,
		"dir":        dir,
	}).Info("Report saved")
	return nil
}

// Load returns domain.ErrReportNotFound when no report exists for the key.
func (s *FileReportStore) Load(_ context.Context, patientID, date string) (*domain.StoredReport, error) {
	dir, err := s.Dir(patientID, date)
	if err != nil {
		return nil, err
	}

	out := &domain.StoredReport{PatientID: patientID, Date: date}
	if err := readJSON(filepath.Join(dir, ReportFile), &out.Report); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, PatientFile), &out.Patient); err != nil {
		return nil, err
	}
	return out, nil
}

// ListDates returns the dates with a saved report, newest first.
func (s *FileReportStore) ListDates(_ context.Context, patientID string) ([]string, error) {
	if err := domain.ValidatePatientID(patientID); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, patientID))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	dates := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(time.DateOnly, e.Name()); err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, patientID, e.Name(), ReportFile)); err != nil {
			continue
		}
		dates = append(dates, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// ValidateKey checks that a patient id is path-safe and date is YYYY-MM-DD.
func ValidateKey(patientID, date string) error {
	if err := domain.ValidatePatientID(patientID); err != nil {
		return err
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return domain.NewValidationError("date", "must be YYYY-MM-DD", date)
	}
	return nil
}

// stageJSON writes v to a temp file next to path and returns the temp file name.
func stageJSON(path string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return tmp.Name(), nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ErrReportNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}
