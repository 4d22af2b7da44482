// Package memory provides an in-process visited set for development and tests.
package memory

import (
	"context"
	"sync"
	"time"
)

// Store mirrors the Redis visited-set semantics in memory, including the
// inactivity expiry refreshed on every write.
type Store struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	sets map[string]*scanSet
}

type scanSet struct {
	urls      map[string]struct{}
	expiresAt time.Time
}

// New creates a Store with the given inactivity TTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		ttl:  ttl,
		now:  time.Now,
		sets: make(map[string]*scanSet),
	}
}

func (s *Store) live(scanID string) *scanSet {
	set, ok := s.sets[scanID]
	if !ok {
		return nil
	}
	if s.now().After(set.expiresAt) {
		delete(s.sets, scanID)
		return nil
	}
	return set
}

// IsVisited reports whether the URL has been claimed for the scan.
func (s *Store) IsVisited(_ context.Context, scanID, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.live(scanID)
	if set == nil {
		return false, nil
	}
	_, visited := set.urls[url]
	return visited, nil
}

// MarkVisited claims the URL and refreshes the set's expiry. The check and
// add happen under one lock, so exactly one concurrent caller observes true.
func (s *Store) MarkVisited(_ context.Context, scanID, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.live(scanID)
	if set == nil {
		set = &scanSet{urls: make(map[string]struct{})}
		s.sets[scanID] = set
	}
	set.expiresAt = s.now().Add(s.ttl)
	if _, exists := set.urls[url]; exists {
		return false, nil
	}
	set.urls[url] = struct{}{}
	return true, nil
}

// Visited returns every claimed URL for the scan.
func (s *Store) Visited(_ context.Context, scanID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.live(scanID)
	if set == nil {
		return nil, nil
	}
	urls := make([]string, 0, len(set.urls))
	for u := range set.urls {
		urls = append(urls, u)
	}
	return urls, nil
}

// Clear removes the scan's visited set.
func (s *Store) Clear(_ context.Context, scanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, scanID)
	return nil
}
