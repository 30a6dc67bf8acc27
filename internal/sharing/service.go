package sharing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Louis-MaD/FamilyVault/internal/audit"
	"github.com/Louis-MaD/FamilyVault/internal/auth"
	"github.com/Louis-MaD/FamilyVault/internal/fault"
	"github.com/Louis-MaD/FamilyVault/internal/vault"
)

// GrantTTL is the fixed lifetime of an approved grant. The expiry is always
// recomputed server-side from the decision time, never taken from a caller.
const GrantTTL = time.Hour

// Service runs the request lifecycle and the grant ledger. The caller id is
// an explicit parameter on every operation; nothing here reads ambient
// session state.
type Service struct {
	Store Store
	Items vault.Store
	Users auth.UserStore
	Gate  *auth.Gate
	Audit audit.Sink
	Now   func() time.Time
}

func NewService(store Store, items vault.Store, users auth.UserStore, sink audit.Sink) *Service {
	return &Service{
		Store: store,
		Items: items,
		Users: users,
		Gate:  auth.NewGate(users),
		Audit: sink,
		Now:   time.Now,
	}
}

// CreateRequest asks the item's owner for access. Calling it twice for the
// same (requester, item) converges on the one PENDING record: the storage
// uniqueness constraint decides the winner and the loser reads the winner's
// row back.
func (s *Service) CreateRequest(ctx context.Context, requesterID, itemID, reason string) (AccessRequest, error) {
	if _, err := s.Gate.RequireActive(ctx, requesterID); err != nil {
		return AccessRequest{}, err
	}
	it, err := s.Items.Get(ctx, itemID)
	if err == vault.ErrItemNotFound {
		return AccessRequest{}, fault.NotFound("item")
	}
	if err != nil {
		return AccessRequest{}, err
	}
	if it.OwnerID == requesterID {
		return AccessRequest{}, fault.Validationf("cannot request access to your own item")
	}
	// A non-requestable or private item is indistinguishable from a missing
	// one; saying "forbidden" would confirm it exists.
	if it.Visibility != vault.VisibilityFamilyMetadata || !it.Requestable {
		return AccessRequest{}, fault.NotFound("item")
	}
	owner, err := s.Gate.RequireUser(ctx, it.OwnerID)
	if err != nil {
		return AccessRequest{}, err
	}
	if owner.Status != auth.StatusActive {
		return AccessRequest{}, fault.Denied("item owner is not active")
	}

	r := AccessRequest{
		ID:          uuid.NewString(),
		ItemID:      itemID,
		RequesterID: requesterID,
		OwnerUserID: it.OwnerID,
		Reason:      strings.TrimSpace(reason),
		Status:      StatusPending,
		CreatedAt:   s.Now(),
	}
	err = s.Store.InsertRequest(ctx, r)
	if err == ErrPendingExists {
		existing, ferr := s.Store.FindPending(ctx, requesterID, itemID)
		if ferr != nil {
			// The winner was decided between our insert and re-read; surface
			// the conflict rather than looping.
			return AccessRequest{}, fault.Conflictf("concurrent request decision, retry")
		}
		return existing, nil
	}
	if err != nil {
		return AccessRequest{}, err
	}
	s.Audit.Record(ctx, audit.Event{ActorID: requesterID, Kind: audit.RequestCreated, TargetType: "request", TargetID: r.ID, At: r.CreatedAt})
	return r, nil
}

// Approve transitions a PENDING request to APPROVED and mints the grant in
// the same atomic step. wrappedDEK is the item's DEK sealed to the
// requester's public key by the owner's client; the server only checks
// shapes and authority, it cannot open the box.
func (s *Service) Approve(ctx context.Context, callerID, requestID string, wrappedDEK []byte) (AccessRequest, ShareGrant, error) {
	if _, err := s.Gate.RequireActive(ctx, callerID); err != nil {
		return AccessRequest{}, ShareGrant{}, err
	}
	r, err := s.getRequestFor(ctx, callerID, requestID)
	if err != nil {
		return AccessRequest{}, ShareGrant{}, err
	}
	if r.OwnerUserID != callerID {
		return AccessRequest{}, ShareGrant{}, fault.NotFound("request")
	}
	if r.Status != StatusPending {
		return AccessRequest{}, ShareGrant{}, fault.Conflictf("request already %s", strings.ToLower(string(r.Status)))
	}
	if len(wrappedDEK) == 0 {
		return AccessRequest{}, ShareGrant{}, fault.Validationf("wrapped key required")
	}
	requester, err := s.Gate.RequireUser(ctx, r.RequesterID)
	if err != nil {
		return AccessRequest{}, ShareGrant{}, err
	}
	if requester.Status != auth.StatusActive {
		return AccessRequest{}, ShareGrant{}, fault.Denied("requester is not active")
	}
	if !requester.HasKeyPair() {
		return AccessRequest{}, ShareGrant{}, fault.Denied("requester has no public key on file")
	}
	if _, err := s.Store.FindGrantByRequest(ctx, requestID); err == nil {
		return AccessRequest{}, ShareGrant{}, fault.Conflictf("request already has a grant")
	} else if err != ErrGrantNotFound {
		return AccessRequest{}, ShareGrant{}, err
	}

	now := s.Now()
	expires := now.Add(GrantTTL)
	g := ShareGrant{
		ID:         uuid.NewString(),
		ItemID:     r.ItemID,
		FromUserID: r.OwnerUserID,
		ToUserID:   r.RequesterID,
		RequestID:  r.ID,
		WrappedDEK: wrappedDEK,
		CreatedAt:  now,
		ExpiresAt:  expires,
	}
	err = s.Store.ApproveAndGrant(ctx, requestID, now, expires, g)
	switch err {
	case nil:
	case ErrNotPending:
		return AccessRequest{}, ShareGrant{}, fault.Conflictf("request was decided concurrently")
	case ErrGrantExists:
		return AccessRequest{}, ShareGrant{}, fault.Conflictf("request already has a grant")
	default:
		return AccessRequest{}, ShareGrant{}, err
	}
	// First grant freezes the item's ciphertext bundle.
	if err := s.Items.MarkShared(ctx, r.ItemID, now); err != nil && err != vault.ErrItemNotFound {
		return AccessRequest{}, ShareGrant{}, err
	}

	r.Status = StatusApproved
	r.DecidedAt = &now
	r.ExpiresAt = &expires
	s.Audit.Record(ctx, audit.Event{ActorID: callerID, Kind: audit.RequestApproved, TargetType: "request", TargetID: r.ID, At: now})
	return r, g, nil
}

func (s *Service) Deny(ctx context.Context, callerID, requestID, note string) (AccessRequest, error) {
	if _, err := s.Gate.RequireActive(ctx, callerID); err != nil {
		return AccessRequest{}, err
	}
	r, err := s.getRequestFor(ctx, callerID, requestID)
	if err != nil {
		return AccessRequest{}, err
	}
	if r.OwnerUserID != callerID {
		return AccessRequest{}, fault.NotFound("request")
	}
	return s.decide(ctx, r, StatusDenied, note, audit.RequestDenied, callerID)
}

func (s *Service) Cancel(ctx context.Context, callerID, requestID string) (AccessRequest, error) {
	if _, err := s.Gate.RequireActive(ctx, callerID); err != nil {
		return AccessRequest{}, err
	}
	r, err := s.getRequestFor(ctx, callerID, requestID)
	if err != nil {
		return AccessRequest{}, err
	}
	if r.RequesterID != callerID {
		return AccessRequest{}, fault.NotFound("request")
	}
	return s.decide(ctx, r, StatusCancelled, "", audit.RequestCancelled, callerID)
}

func (s *Service) decide(ctx context.Context, r AccessRequest, to RequestStatus, note, eventKind, actorID string) (AccessRequest, error) {
	now := s.Now()
	err := s.Store.Decide(ctx, r.ID, to, now, note)
	switch err {
	case nil:
	case ErrNotPending:
		return AccessRequest{}, fault.Conflictf("request was decided concurrently")
	case ErrRequestNotFound:
		return AccessRequest{}, fault.NotFound("request")
	default:
		return AccessRequest{}, err
	}
	r.Status = to
	r.DecidedAt = &now
	r.DecisionNote = note
	s.Audit.Record(ctx, audit.Event{ActorID: actorID, Kind: eventKind, TargetType: "request", TargetID: r.ID, At: now})
	return r, nil
}

// getRequestFor loads a request while hiding its existence from strangers:
// anyone who is neither the owner nor the requester gets NotFound.
func (s *Service) getRequestFor(ctx context.Context, callerID, requestID string) (AccessRequest, error) {
	r, err := s.Store.GetRequest(ctx, requestID)
	if err == ErrRequestNotFound {
		return AccessRequest{}, fault.NotFound("request")
	}
	if err != nil {
		return AccessRequest{}, err
	}
	if r.OwnerUserID != callerID && r.RequesterID != callerID {
		return AccessRequest{}, fault.NotFound("request")
	}
	return r, nil
}

func (s *Service) ListIncoming(ctx context.Context, ownerID string) ([]AccessRequest, error) {
	if _, err := s.Gate.RequireActive(ctx, ownerID); err != nil {
		return nil, err
	}
	return s.Store.ListByOwner(ctx, ownerID)
}

func (s *Service) ListOutgoing(ctx context.Context, requesterID string) ([]AccessRequest, error) {
	if _, err := s.Gate.RequireActive(ctx, requesterID); err != nil {
		return nil, err
	}
	return s.Store.ListByRequester(ctx, requesterID)
}
