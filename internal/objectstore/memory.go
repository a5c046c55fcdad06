package objectstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process store for tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failErr error
}

// SetFailUploads makes every subsequent Upload return err; nil restores
// normal operation.
func (s *MemoryStore) SetFailUploads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }

// Upload implements Store.
func (s *MemoryStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return "", s.failErr
	}
	s.objects[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Get returns the stored bytes for key, for test assertions.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
