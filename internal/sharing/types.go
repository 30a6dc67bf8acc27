package sharing

import (
	"errors"
	"time"
)

type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusApproved  RequestStatus = "APPROVED"
	StatusDenied    RequestStatus = "DENIED"
	StatusCancelled RequestStatus = "CANCELLED"
	StatusExpired   RequestStatus = "EXPIRED"
)

// AccessRequest is one requester asking one item-owner for temporary access.
// PENDING is the only live state; every other status is terminal.
type AccessRequest struct {
	ID          string     `bson:"_id" json:"id"`
	ItemID      string     `bson:"item_id" json:"itemId"`
	RequesterID string     `bson:"requester_id" json:"requesterId"`
	// OwnerUserID is denormalized from the item at creation time and is the
	// single source of truth for approval authority from then on.
	OwnerUserID  string        `bson:"owner_id" json:"ownerId"`
	Reason       string        `bson:"reason,omitempty" json:"reason,omitempty"`
	Status       RequestStatus `bson:"status" json:"status"`
	CreatedAt    time.Time     `bson:"created_at" json:"createdAt"`
	DecidedAt    *time.Time    `bson:"decided_at,omitempty" json:"decidedAt,omitempty"`
	ExpiresAt    *time.Time    `bson:"expires_at,omitempty" json:"expiresAt,omitempty"`
	DecisionNote string        `bson:"decision_note,omitempty" json:"decisionNote,omitempty"`
}

// EffectiveStatus folds wall-clock expiry into the stored status. EXPIRED is
// never written; it is derived at read time so there is no sweeper to race.
func (r AccessRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.Status == StatusApproved && r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return StatusExpired
	}
	return r.Status
}

// ShareGrant is the cryptographic artifact of an approved request: the
// item's DEK re-wrapped for the recipient's public key.
type ShareGrant struct {
	ID         string     `bson:"_id" json:"id"`
	ItemID     string     `bson:"item_id" json:"itemId"`
	FromUserID string     `bson:"from_user_id" json:"fromUserId"`
	ToUserID   string     `bson:"to_user_id" json:"toUserId"`
	RequestID  string     `bson:"request_id" json:"requestId"`
	WrappedDEK []byte     `bson:"wrapped_dek" json:"wrappedDek"`
	CreatedAt  time.Time  `bson:"created_at" json:"createdAt"`
	ExpiresAt  time.Time  `bson:"expires_at" json:"expiresAt"`
	RevokedAt  *time.Time `bson:"revoked_at,omitempty" json:"revokedAt,omitempty"`
}

// Active is a pure function of (revokedAt, expiresAt, now), not a stored
// state, so readers and writers can never disagree about a stale flag.
func (g ShareGrant) Active(now time.Time) bool {
	return g.RevokedAt == nil && now.Before(g.ExpiresAt)
}

var (
	ErrRequestNotFound = errors.New("sharing: request not found")
	ErrGrantNotFound   = errors.New("sharing: grant not found")
	// ErrPendingExists reports the uniqueness constraint on
	// (requester, item, status=PENDING); the caller re-reads the winner.
	ErrPendingExists = errors.New("sharing: pending request already exists")
	// ErrNotPending reports a decide on a request that is no longer PENDING.
	ErrNotPending = errors.New("sharing: request is not pending")
	// ErrGrantExists reports the one-grant-per-request constraint.
	ErrGrantExists = errors.New("sharing: grant already exists for request")
	// ErrAlreadyRevoked reports a second revoke; RevokedAt is monotonic.
	ErrAlreadyRevoked = errors.New("sharing: grant already revoked")
)
