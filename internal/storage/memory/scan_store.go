// Package memory provides in-process stores for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/probelab/sitescan/internal/scan"
)

// ScanStore is an in-memory implementation of scan.Store.
type ScanStore struct {
	mu      sync.RWMutex
	scans   map[string]scan.Scan
	siteMap map[string][]scan.SiteMapEntry
	logs    map[string][]scan.LogEntry
}

// NewScanStore constructs a ScanStore.
func NewScanStore() *ScanStore {
	return &ScanStore{
		scans:   make(map[string]scan.Scan),
		siteMap: make(map[string][]scan.SiteMapEntry),
		logs:    make(map[string][]scan.LogEntry),
	}
}

// CreateScan stores a new scan.
func (s *ScanStore) CreateScan(_ context.Context, sc scan.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans[sc.ID] = sc
	return nil
}

// GetScan fetches a scan by ID.
func (s *ScanStore) GetScan(_ context.Context, scanID string) (scan.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return scan.Scan{}, scan.ErrNotFound
	}
	return sc, nil
}

// UpdateStatus transitions a scan's status, refusing to leave a terminal state.
func (s *ScanStore) UpdateStatus(
	_ context.Context,
	scanID string,
	status scan.Status,
	at time.Time,
) (scan.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return scan.Scan{}, scan.ErrNotFound
	}
	if sc.Status.Terminal() || sc.Status == status {
		return sc, nil
	}
	sc.Status = status
	if status == scan.StatusRunning && sc.StartedAt == nil {
		t := at
		sc.StartedAt = &t
	}
	if status.Terminal() {
		t := at
		sc.CompletedAt = &t
	}
	s.scans[scanID] = sc
	return sc, nil
}

// IncrementCounters adds the deltas to the scan's counters.
func (s *ScanStore) IncrementCounters(_ context.Context, scanID string, pages, bugs int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return scan.ErrNotFound
	}
	sc.TotalPagesScanned += pages
	sc.TotalBugsFound += bugs
	s.scans[scanID] = sc
	return nil
}

// InsertSiteMapEntry appends a site map row, one per URL per scan.
func (s *ScanStore) InsertSiteMapEntry(_ context.Context, entry scan.SiteMapEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.siteMap[entry.ScanID] {
		if existing.URL == entry.URL {
			return nil
		}
	}
	s.siteMap[entry.ScanID] = append(s.siteMap[entry.ScanID], entry)
	return nil
}

// CountSiteMapEntries returns the number of pages recorded for the scan.
func (s *ScanStore) CountSiteMapEntries(_ context.Context, scanID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.siteMap[scanID]), nil
}

// ListSiteMap returns the scan's site map in creation order.
func (s *ScanStore) ListSiteMap(_ context.Context, scanID string) ([]scan.SiteMapEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := append([]scan.SiteMapEntry(nil), s.siteMap[scanID]...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// InsertLog appends a scan log row.
func (s *ScanStore) InsertLog(_ context.Context, entry scan.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[entry.ScanID] = append(s.logs[entry.ScanID], entry)
	return nil
}

// ListLogs returns the scan's log stream in creation order.
func (s *ScanStore) ListLogs(_ context.Context, scanID string) ([]scan.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := append([]scan.LogEntry(nil), s.logs[scanID]...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// ListStale returns non-terminal scans last active before the cutoff.
func (s *ScanStore) ListStale(_ context.Context, cutoff time.Time) ([]scan.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []scan.Scan
	for _, sc := range s.scans {
		if sc.Status.Terminal() {
			continue
		}
		last := sc.CreatedAt
		if sc.StartedAt != nil {
			last = *sc.StartedAt
		}
		if last.Before(cutoff) {
			stale = append(stale, sc)
		}
	}
	return stale, nil
}
