package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/loomchat/loomchat/internal/port/outbound"
)

// MemoryObjectStore implements outbound.ObjectStore with an in-memory map.
// Thread-safe. For development/testing only.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
}

// NewObjectStore creates a new in-memory object store.
func NewObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// Put stores an object under key.
func (s *MemoryObjectStore) Put(ctx context.Context, key, contentType string, size int64, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read object body: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

// PresignGet returns a fake URL embedding the key.
func (s *MemoryObjectStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.objects[key]; !ok {
		return "", outbound.ErrObjectNotFound
	}
	return "memory://" + key, nil
}

// Delete removes an object.
func (s *MemoryObjectStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.types, key)
	return nil
}

// Get returns a stored object's bytes and content type. Test helper.
func (s *MemoryObjectStore) Get(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, s.types[key], ok
}

// Size returns the number of stored objects. Test helper.
func (s *MemoryObjectStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Compile-time interface verification.
var _ outbound.ObjectStore = (*MemoryObjectStore)(nil)
