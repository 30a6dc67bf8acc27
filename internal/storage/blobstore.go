package storage

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("storage: blob not found")

// BlobStore holds encrypted file bodies attached to vault items, keyed by
// item id. Contents are opaque ciphertext; nothing in this package can or
// should interpret them.
type BlobStore interface {
	Put(ctx context.Context, itemID string, data []byte) error
	Get(ctx context.Context, itemID string) ([]byte, error)
	Delete(ctx context.Context, itemID string) error
}

// MemoryBlobStore backs tests.
type MemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: map[string][]byte{}}
}

func (s *MemoryBlobStore) Put(_ context.Context, itemID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[itemID] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryBlobStore) Get(_ context.Context, itemID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *MemoryBlobStore) Delete(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, itemID)
	return nil
}
