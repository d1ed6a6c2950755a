package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps blobs in process memory. A non-zero quota caps the total number
// of stored bytes, the way browser storage caps an origin.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	size  int
	quota int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// NewMemoryStoreWithQuota returns a store refusing writes that would exceed quota bytes.
func NewMemoryStoreWithQuota(quota int) *MemoryStore {
	s := NewMemoryStore()
	s.quota = quota
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newSize := s.size - len(s.blobs[key]) + len(data)
	if s.quota > 0 && newSize > s.quota {
		return ErrQuotaExceeded
	}
	s.blobs[key] = append([]byte(nil), data...)
	s.size = newSize
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.size -= len(s.blobs[key])
	delete(s.blobs, key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Size returns the number of bytes currently stored.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}
