package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordColumns = []string{
	"id", "request_id", "patient_id", "report_date", "transport", "query",
	"retrieved_ids", "attempts", "state", "citation_policy", "invalid_citations", "errors",
	"persisted", "duration_ms", "created_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store, mock
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	rec := sampleRecord("req-1", "patient-1")

	mock.ExpectQuery("INSERT INTO generation_audit").
		WithArgs(
			"req-1", "patient-1", "2026-03-01", "http", rec.Query,
			`["nice_ng17_hba1c","nice_ng28_bp"]`, 1, "ACCEPTED", "warn", `[]`, `[]`,
			true, int64(1840), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), created))

	require.NoError(t, store.Save(context.Background(), rec))
	assert.Equal(t, int64(42), rec.ID)
	assert.Equal(t, created, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM generation_audit WHERE request_id").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(
			int64(42), "req-1", "patient-1", "2026-03-01", "mcp", "T2DM diabetes",
			[]byte(`["nice_ng28_bp"]`), 2, "ACCEPTED", "retry", []byte(`["made_up"]`), []byte(`["citation warning"]`),
			true, int64(900), created,
		))

	got, err := store.Get(context.Background(), "req-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, []string{"nice_ng28_bp"}, got.RetrievedIDs)
	assert.Equal(t, []string{"made_up"}, got.InvalidCitations)
	assert.Equal(t, []string{"citation warning"}, got.Errors)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM generation_audit WHERE request_id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	got, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM generation_audit").
		WithArgs("patient-1", 10, 0).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(int64(2), "req-2", "patient-1", "", "http", "q", []byte(`[]`), 2, "FAILED", "warn", []byte(`[]`), []byte(`["bad json"]`), false, int64(10), now).
			AddRow(int64(1), "req-1", "patient-1", "2026-03-01", "http", "q", []byte(`[]`), 1, "ACCEPTED", "warn", []byte(`[]`), []byte(`[]`), true, int64(10), now.Add(-time.Minute)))

	got, err := store.List(context.Background(), "patient-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "req-2", got[0].RequestID)
	assert.Equal(t, []string{"bad json"}, got[0].Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestPostgresStore_Integration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	store, err := NewPostgresStoreFromURL(url)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	rec := sampleRecord("integration-"+time.Now().Format("150405.000000"), "patient-int")
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, rec.RequestID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.RetrievedIDs, got.RetrievedIDs)
}
