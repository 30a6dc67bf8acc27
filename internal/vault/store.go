package vault

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Store interface {
	Insert(ctx context.Context, it Item) error
	Get(ctx context.Context, id string) (Item, error)
	Update(ctx context.Context, it Item) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]Item, error)
	ListFamilyVisible(ctx context.Context) ([]Item, error)
	// MarkShared freezes the bundle timestamp; it is monotonic and a no-op
	// once set.
	MarkShared(ctx context.Context, id string, at time.Time) error
}

// MemoryStore backs tests and single-process use.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]Item{}}
}

func (s *MemoryStore) Insert(_ context.Context, it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[it.ID] = it
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (s *MemoryStore) Update(_ context.Context, it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[it.ID]; !ok {
		return ErrItemNotFound
	}
	s.items[it.ID] = it
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, it := range s.items {
		if it.OwnerID == ownerID {
			out = append(out, it)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) ListFamilyVisible(_ context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, it := range s.items {
		if it.Visibility == VisibilityFamilyMetadata {
			out = append(out, it)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) MarkShared(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return ErrItemNotFound
	}
	if it.SharedAt == nil {
		t := at
		it.SharedAt = &t
		s.items[id] = it
	}
	return nil
}

func sortByCreated(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
