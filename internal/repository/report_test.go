package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/diabetes-report-mcp-server/internal/database"
	"github.com/diabetes-report-mcp-server/internal/domain"
)

// generateTestPassword creates a random password for test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	config := database.Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    testPassword,
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: time.Minute * 30,
		SSLMode:     "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	require.NoError(t, database.Migrate(ctx, config.URL(), logger))

	db, err := database.NewConnection(ctx, config, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func testRepo(t *testing.T) *ReportRepository {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewReportRepository(setupTestDB(t).Pool, logger)
}

func storedReport(patientID, date, summary string) domain.StoredReport {
	return domain.StoredReport{
		PatientID: patientID,
		Date:      date,
		Report: domain.ReportOut{
			ExecutiveSummary: summary,
			EMRNote:          "T2DM review.",
			Citations:        []domain.Citation{{ID: "nice_ng28_hba1c", Source: "NICE NG28", Section: "1.6"}},
		},
		Patient: domain.PatientState{
			UUID: patientID,
			Labs: domain.LabPanel{HbA1cPct: domain.Float(8.2)},
		},
	}
}

func TestReportRepository_SaveAndLoad(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, storedReport("patient-1", "2026-10-17", "Above target.")))

	got, err := repo.Load(ctx, "patient-1", "2026-10-17")
	require.NoError(t, err)
	assert.Equal(t, "Above target.", got.Report.ExecutiveSummary)
	assert.Equal(t, []string{"nice_ng28_hba1c"}, got.Report.ListedCitationIDs())
	require.NotNil(t, got.Patient.Labs.HbA1cPct)
	assert.Equal(t, 8.2, *got.Patient.Labs.HbA1cPct)
}

func TestReportRepository_SaveReplacesSameDate(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, storedReport("patient-1", "2026-10-17", "first")))
	require.NoError(t, repo.Save(ctx, storedReport("patient-1", "2026-10-17", "second")))

	got, err := repo.Load(ctx, "patient-1", "2026-10-17")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Report.ExecutiveSummary)

	dates, err := repo.ListDates(ctx, "patient-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-17"}, dates)
}

func TestReportRepository_ListDatesNewestFirst(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for _, d := range []string{"2026-01-05", "2026-10-17", "2025-12-31"} {
		require.NoError(t, repo.Save(ctx, storedReport("patient-1", d, "s")))
	}
	require.NoError(t, repo.Save(ctx, storedReport("patient-2", "2026-03-01", "s")))

	dates, err := repo.ListDates(ctx, "patient-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-17", "2026-01-05", "2025-12-31"}, dates)

	none, err := repo.ListDates(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestReportRepository_LoadMissing(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.Load(context.Background(), "patient-1", "2026-10-17")

	assert.ErrorIs(t, err, domain.ErrReportNotFound)
}

func TestReportRepository_Delete(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, storedReport("patient-1", "2026-10-17", "s")))
	require.NoError(t, repo.Delete(ctx, "patient-1", "2026-10-17"))
	require.NoError(t, repo.Delete(ctx, "patient-1", "2026-10-17"))

	_, err := repo.Load(ctx, "patient-1", "2026-10-17")
	assert.ErrorIs(t, err, domain.ErrReportNotFound)
}

func TestReportRepository_RejectsBadKeys(t *testing.T) {
	// Validation runs before any query, so a nil pool is never touched.
	repo := NewReportRepository(nil, logrus.New())
	ctx := context.Background()

	var verr *domain.ValidationError
	err := repo.Save(ctx, storedReport("../etc", "2026-10-17", "s"))
	assert.ErrorAs(t, err, &verr)

	_, err = repo.Load(ctx, "patient-1", "17/10/2026")
	assert.ErrorAs(t, err, &verr)
}
