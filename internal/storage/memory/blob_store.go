// Package memory stores pilot artifacts in-memory for development.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const defaultBlobRetain = 64

// BlobStore keeps archived frames in memory and returns pseudo URIs. It
// retains a bounded number of objects, oldest out first, so a long-lived
// daemon archiving failed sessions does not grow without limit.
type BlobStore struct {
	mu     sync.RWMutex
	retain int
	order  []string
	data   map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		retain: defaultBlobRetain,
		data:   make(map[string][]byte),
	}
}

// PutObject persists a copy of the content and returns a memory:// URI.
// Re-archiving an existing path overwrites it without consuming retention.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[path]; !exists {
		s.order = append(s.order, path)
	}
	s.data[path] = append([]byte(nil), data...)
	for len(s.order) > s.retain {
		delete(s.data, s.order[0])
		s.order = s.order[1:]
	}
	return fmt.Sprintf("memory://%s", path), nil
}

// Object returns a copy of a stored artifact.
func (s *BlobStore) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Len reports how many artifacts are currently retained.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
