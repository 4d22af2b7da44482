package memory

import (
	"context"
	"fmt"
	"sync"
)

// ScreenshotStore keeps uploaded screenshots in memory.
type ScreenshotStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewScreenshotStore constructs a ScreenshotStore.
func NewScreenshotStore() *ScreenshotStore {
	return &ScreenshotStore{objects: make(map[string][]byte)}
}

// Upload stores the bytes and returns a mem:// URL.
func (s *ScreenshotStore) Upload(_ context.Context, path string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = append([]byte(nil), data...)
	return "mem://" + path, nil
}

// Object returns a stored screenshot, for test assertions.
func (s *ScreenshotStore) Object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	return data, ok
}
