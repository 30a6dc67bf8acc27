package sharing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the persistence contract for requests and grants. Implementations
// own the two consistency-critical pieces: the at-most-one-PENDING
// constraint surfaced as ErrPendingExists, and the atomicity of
// ApproveAndGrant (a request APPROVED without its grant, or vice versa, is
// an invariant violation).
type Store interface {
	InsertRequest(ctx context.Context, r AccessRequest) error
	GetRequest(ctx context.Context, id string) (AccessRequest, error)
	FindPending(ctx context.Context, requesterID, itemID string) (AccessRequest, error)
	ListByOwner(ctx context.Context, ownerID string) ([]AccessRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]AccessRequest, error)
	// Decide transitions a PENDING request to a terminal status.
	Decide(ctx context.Context, id string, to RequestStatus, decidedAt time.Time, note string) error
	// ApproveAndGrant atomically transitions the request to APPROVED and
	// inserts the grant. Only one concurrent caller observes PENDING.
	ApproveAndGrant(ctx context.Context, requestID string, decidedAt, expiresAt time.Time, g ShareGrant) error

	GetGrant(ctx context.Context, id string) (ShareGrant, error)
	FindGrantByRequest(ctx context.Context, requestID string) (ShareGrant, error)
	// ListActiveGrantsFor returns active grants for a recipient, soonest to
	// expire first. Revoked and expired rows stay in storage but are never
	// returned.
	ListActiveGrantsFor(ctx context.Context, userID string, now time.Time) ([]ShareGrant, error)
	// RevokeGrant sets RevokedAt once; a second call fails.
	RevokeGrant(ctx context.Context, id string, at time.Time) error
}

// MemoryStore implements Store under one mutex, which trivially provides the
// same atomicity the mongo implementation gets from transactions. Backs the
// service tests.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]AccessRequest
	grants   map[string]ShareGrant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: map[string]AccessRequest{}, grants: map[string]ShareGrant{}}
}

func (s *MemoryStore) InsertRequest(_ context.Context, r AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.requests {
		if ex.RequesterID == r.RequesterID && ex.ItemID == r.ItemID && ex.Status == StatusPending {
			return ErrPendingExists
		}
	}
	s.requests[r.ID] = r
	return nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id string) (AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return AccessRequest{}, ErrRequestNotFound
	}
	return r, nil
}

func (s *MemoryStore) FindPending(_ context.Context, requesterID, itemID string) (AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.RequesterID == requesterID && r.ItemID == itemID && r.Status == StatusPending {
			return r, nil
		}
	}
	return AccessRequest{}, ErrRequestNotFound
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]AccessRequest, error) {
	return s.list(func(r AccessRequest) bool { return r.OwnerUserID == ownerID })
}

func (s *MemoryStore) ListByRequester(_ context.Context, requesterID string) ([]AccessRequest, error) {
	return s.list(func(r AccessRequest) bool { return r.RequesterID == requesterID })
}

func (s *MemoryStore) list(keep func(AccessRequest) bool) ([]AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AccessRequest
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Decide(_ context.Context, id string, to RequestStatus, decidedAt time.Time, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if r.Status != StatusPending {
		return ErrNotPending
	}
	r.Status = to
	t := decidedAt
	r.DecidedAt = &t
	r.DecisionNote = note
	s.requests[id] = r
	return nil
}

func (s *MemoryStore) ApproveAndGrant(_ context.Context, requestID string, decidedAt, expiresAt time.Time, g ShareGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok {
		return ErrRequestNotFound
	}
	if r.Status != StatusPending {
		return ErrNotPending
	}
	for _, ex := range s.grants {
		if ex.RequestID == requestID {
			return ErrGrantExists
		}
	}
	r.Status = StatusApproved
	dt, et := decidedAt, expiresAt
	r.DecidedAt = &dt
	r.ExpiresAt = &et
	s.requests[requestID] = r
	s.grants[g.ID] = g
	return nil
}

func (s *MemoryStore) GetGrant(_ context.Context, id string) (ShareGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return ShareGrant{}, ErrGrantNotFound
	}
	return g, nil
}

func (s *MemoryStore) FindGrantByRequest(_ context.Context, requestID string) (ShareGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grants {
		if g.RequestID == requestID {
			return g, nil
		}
	}
	return ShareGrant{}, ErrGrantNotFound
}

func (s *MemoryStore) ListActiveGrantsFor(_ context.Context, userID string, now time.Time) ([]ShareGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ShareGrant
	for _, g := range s.grants {
		if g.ToUserID == userID && g.Active(now) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (s *MemoryStore) RevokeGrant(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return ErrGrantNotFound
	}
	if g.RevokedAt != nil {
		return ErrAlreadyRevoked
	}
	t := at
	g.RevokedAt = &t
	s.grants[id] = g
	return nil
}
