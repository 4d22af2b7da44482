package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/probelab/sitescan/internal/scan"
)

func scanRowValues(sc scan.Scan) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "project_id", "status", "started_at", "completed_at",
		"total_pages_scanned", "total_bugs_found", "created_at",
	}).AddRow(
		sc.ID, sc.ProjectID, sc.Status, sc.StartedAt, sc.CompletedAt,
		sc.TotalPagesScanned, sc.TotalBugsFound, sc.CreatedAt,
	)
}

func TestScanStore_CreateScan(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewScanStoreWithPool(mock)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO scans").
		WithArgs("scan-1", "proj-1", scan.StatusQueued, 0, 0, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.CreateScan(context.Background(), scan.Scan{
		ID:        "scan-1",
		ProjectID: "proj-1",
		Status:    scan.StatusQueued,
		CreatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanStore_GetScanNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewScanStoreWithPool(mock)

	mock.ExpectQuery("SELECT (.+) FROM scans WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = store.GetScan(context.Background(), "missing")
	require.ErrorIs(t, err, scan.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanStore_UpdateStatusTransition(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewScanStoreWithPool(mock)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("UPDATE scans").
		WithArgs("scan-1", scan.StatusRunning, now).
		WillReturnRows(scanRowValues(scan.Scan{
			ID:        "scan-1",
			ProjectID: "proj-1",
			Status:    scan.StatusRunning,
			StartedAt: &now,
			CreatedAt: now,
		}))

	sc, err := store.UpdateStatus(context.Background(), "scan-1", scan.StatusRunning, now)
	require.NoError(t, err)
	require.Equal(t, scan.StatusRunning, sc.Status)
	require.NotNil(t, sc.StartedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanStore_UpdateStatusTerminalRowReportsStored(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewScanStoreWithPool(mock)
	now := time.Unix(1700000000, 0).UTC()

	// The guarded UPDATE matches no row, so the stored row is re-read.
	mock.ExpectQuery("UPDATE scans").
		WithArgs("scan-1", scan.StatusRunning, now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT (.+) FROM scans WHERE id").
		WithArgs("scan-1").
		WillReturnRows(scanRowValues(scan.Scan{
			ID:          "scan-1",
			ProjectID:   "proj-1",
			Status:      scan.StatusStopped,
			CompletedAt: &now,
			CreatedAt:   now,
		}))

	sc, err := store.UpdateStatus(context.Background(), "scan-1", scan.StatusRunning, now)
	require.NoError(t, err)
	require.Equal(t, scan.StatusStopped, sc.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanStore_IncrementCounters(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewScanStoreWithPool(mock)

	mock.ExpectExec("UPDATE scans").
		WithArgs("scan-1", 1, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.IncrementCounters(context.Background(), "scan-1", 1, 3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanStore_IncrementCountersUnknownScan(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewScanStoreWithPool(mock)

	mock.ExpectExec("UPDATE scans").
		WithArgs("missing", 1, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.IncrementCounters(context.Background(), "missing", 1, 0)
	require.ErrorIs(t, err, scan.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanStore_InsertSiteMapEntry(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewScanStoreWithPool(mock)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO site_map").
		WithArgs("scan-1", "https://example.com/a", "https://example.com", 1, "About", "scanned", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.InsertSiteMapEntry(context.Background(), scan.SiteMapEntry{
		ScanID:    "scan-1",
		URL:       "https://example.com/a",
		ParentURL: "https://example.com",
		Depth:     1,
		PageTitle: "About",
		Status:    "scanned",
		CreatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanStore_InsertLogMarshalsAnalysis(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewScanStoreWithPool(mock)
	now := time.Unix(1700000000, 0).UTC()

	analysis := &scan.PageAnalysis{
		PageType:       "landing",
		Summary:        "Home page",
		Forms:          []scan.FormDetection{},
		SuggestedTests: []string{"Check hero link"},
	}

	mock.ExpectExec("INSERT INTO scan_logs").
		WithArgs(
			"scan-1",
			scan.LogInfo,
			"AI Analysis Result",
			"/",
			"https://storage.example.com/shot.png",
			[]byte(`{"pageType":"landing","summary":"Home page","forms":[],"suggestedTests":["Check hero link"]}`),
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.InsertLog(context.Background(), scan.LogEntry{
		ScanID:        "scan-1",
		Level:         scan.LogInfo,
		Message:       "AI Analysis Result",
		URLPath:       "/",
		ScreenshotURL: "https://storage.example.com/shot.png",
		Analysis:      analysis,
		CreatedAt:     now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanStore_CountSiteMapEntries(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewScanStoreWithPool(mock)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("scan-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.CountSiteMapEntries(context.Background(), "scan-1")
	require.NoError(t, err)
	require.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanStore_ListStale(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewScanStoreWithPool(mock)
	started := time.Unix(1700000000, 0).UTC()
	cutoff := started.Add(time.Hour)

	mock.ExpectQuery("SELECT").
		WithArgs(cutoff).
		WillReturnRows(scanRowValues(scan.Scan{
			ID:        "scan-1",
			ProjectID: "proj-1",
			Status:    scan.StatusRunning,
			StartedAt: &started,
			CreatedAt: started,
		}))

	stale, err := store.ListStale(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "scan-1", stale[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
