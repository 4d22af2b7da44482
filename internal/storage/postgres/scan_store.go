// Package postgres provides Postgres-backed persistence for scans.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/probelab/sitescan/internal/scan"
)

// Config controls the Postgres connection pool used for scan rows.
type Config struct {
	DSN      string
	MaxConns int32
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ScanStore persists scans, site map entries, and scan logs in Postgres.
type ScanStore struct {
	pool dbPool
}

// NewScanStore creates a ScanStore backed by a pgx connection pool.
func NewScanStore(ctx context.Context, cfg Config) (*ScanStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &ScanStore{pool: pool}, nil
}

// NewScanStoreWithPool creates a ScanStore over an existing pool. Used by tests.
func NewScanStoreWithPool(pool dbPool) *ScanStore {
	return &ScanStore{pool: pool}
}

// Close closes the underlying connection pool.
func (s *ScanStore) Close() {
	s.pool.Close()
}

const scanColumns = `id, project_id, status, started_at, completed_at,
	total_pages_scanned, total_bugs_found, created_at`

// CreateScan inserts a new scan row.
func (s *ScanStore) CreateScan(ctx context.Context, sc scan.Scan) error {
	query := `
		INSERT INTO scans (id, project_id, status, total_pages_scanned, total_bugs_found, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := s.pool.Exec(ctx, query,
		sc.ID, sc.ProjectID, sc.Status, sc.TotalPagesScanned, sc.TotalBugsFound, sc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// GetScan retrieves a single scan by ID.
func (s *ScanStore) GetScan(ctx context.Context, scanID string) (scan.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE id = $1;`
	sc, err := scanRow(s.pool.QueryRow(ctx, query, scanID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scan.Scan{}, scan.ErrNotFound
		}
		return scan.Scan{}, fmt.Errorf("get scan: %w", err)
	}
	return sc, nil
}

// UpdateStatus transitions a scan's status. Terminal rows are never
// overwritten; the stored row is returned either way so callers can
// observe which transition actually happened.
func (s *ScanStore) UpdateStatus(
	ctx context.Context,
	scanID string,
	status scan.Status,
	at time.Time,
) (scan.Scan, error) {
	query := `
		UPDATE scans
		SET status = $2,
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN $3 ELSE started_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'failed', 'stopped') THEN $3 ELSE completed_at END
		WHERE id = $1
			AND status <> $2
			AND status NOT IN ('completed', 'failed', 'stopped')
		RETURNING ` + scanColumns + `;
	`
	sc, err := scanRow(s.pool.QueryRow(ctx, query, scanID, status, at))
	if err == nil {
		return sc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return scan.Scan{}, fmt.Errorf("update scan status: %w", err)
	}
	// No row changed: either the scan is unknown, already in this status,
	// or already terminal. Report what is stored.
	return s.GetScan(ctx, scanID)
}

// IncrementCounters adds the deltas to the scan's counters atomically.
func (s *ScanStore) IncrementCounters(ctx context.Context, scanID string, pages, bugs int) error {
	query := `
		UPDATE scans
		SET total_pages_scanned = total_pages_scanned + $2,
			total_bugs_found = total_bugs_found + $3
		WHERE id = $1;
	`
	tag, err := s.pool.Exec(ctx, query, scanID, pages, bugs)
	if err != nil {
		return fmt.Errorf("increment counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scan.ErrNotFound
	}
	return nil
}

// InsertSiteMapEntry appends one site map row. The (scan_id, url) unique
// constraint keeps one entry per normalized URL per scan.
func (s *ScanStore) InsertSiteMapEntry(ctx context.Context, entry scan.SiteMapEntry) error {
	query := `
		INSERT INTO site_map (scan_id, url, parent_url, depth, page_title, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (scan_id, url) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, query,
		entry.ScanID, entry.URL, entry.ParentURL, entry.Depth, entry.PageTitle, entry.Status, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert site map entry: %w", err)
	}
	return nil
}

// CountSiteMapEntries returns the number of pages recorded for the scan.
func (s *ScanStore) CountSiteMapEntries(ctx context.Context, scanID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM site_map WHERE scan_id = $1;`
	if err := s.pool.QueryRow(ctx, query, scanID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count site map entries: %w", err)
	}
	return count, nil
}

// ListSiteMap returns the scan's site map ordered by creation time.
func (s *ScanStore) ListSiteMap(ctx context.Context, scanID string) ([]scan.SiteMapEntry, error) {
	query := `
		SELECT scan_id, url, parent_url, depth, page_title, status, created_at
		FROM site_map
		WHERE scan_id = $1
		ORDER BY created_at ASC;
	`
	rows, err := s.pool.Query(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("list site map: %w", err)
	}
	defer rows.Close()

	var entries []scan.SiteMapEntry
	for rows.Next() {
		var e scan.SiteMapEntry
		var parent *string
		if err := rows.Scan(&e.ScanID, &e.URL, &parent, &e.Depth, &e.PageTitle, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan site map row: %w", err)
		}
		if parent != nil {
			e.ParentURL = *parent
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertLog appends one scan log row.
func (s *ScanStore) InsertLog(ctx context.Context, entry scan.LogEntry) error {
	var analysis []byte
	if entry.Analysis != nil {
		data, err := json.Marshal(entry.Analysis)
		if err != nil {
			return fmt.Errorf("marshal analysis: %w", err)
		}
		analysis = data
	}
	query := `
		INSERT INTO scan_logs (scan_id, log_level, message, url_path, screenshot_url, analysis, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := s.pool.Exec(ctx, query,
		entry.ScanID, entry.Level, entry.Message, entry.URLPath, entry.ScreenshotURL, analysis, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scan log: %w", err)
	}
	return nil
}

// ListLogs returns the scan's log stream in creation order.
func (s *ScanStore) ListLogs(ctx context.Context, scanID string) ([]scan.LogEntry, error) {
	query := `
		SELECT scan_id, log_level, message, url_path, screenshot_url, analysis, created_at
		FROM scan_logs
		WHERE scan_id = $1
		ORDER BY created_at ASC;
	`
	rows, err := s.pool.Query(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("list scan logs: %w", err)
	}
	defer rows.Close()

	var entries []scan.LogEntry
	for rows.Next() {
		var e scan.LogEntry
		var screenshot *string
		var analysis []byte
		if err := rows.Scan(&e.ScanID, &e.Level, &e.Message, &e.URLPath, &screenshot, &analysis, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		if screenshot != nil {
			e.ScreenshotURL = *screenshot
		}
		if len(analysis) > 0 {
			var pa scan.PageAnalysis
			if err := json.Unmarshal(analysis, &pa); err == nil {
				e.Analysis = &pa
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListStale returns non-terminal scans whose last activity predates the cutoff.
func (s *ScanStore) ListStale(ctx context.Context, cutoff time.Time) ([]scan.Scan, error) {
	query := `
		SELECT ` + scanColumns + `
		FROM scans
		WHERE status IN ('queued', 'running')
			AND COALESCE(started_at, created_at) < $1;
	`
	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale scans: %w", err)
	}
	defer rows.Close()

	var scans []scan.Scan
	for rows.Next() {
		sc, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

func scanRow(row pgx.Row) (scan.Scan, error) {
	var sc scan.Scan
	err := row.Scan(
		&sc.ID,
		&sc.ProjectID,
		&sc.Status,
		&sc.StartedAt,
		&sc.CompletedAt,
		&sc.TotalPagesScanned,
		&sc.TotalBugsFound,
		&sc.CreatedAt,
	)
	return sc, err
}

func scanRows(rows pgx.Rows) (scan.Scan, error) {
	sc, err := scanRow(rows)
	if err != nil {
		return scan.Scan{}, fmt.Errorf("scan row: %w", err)
	}
	return sc, nil
}
