package sharing

import (
	"context"

	"github.com/Louis-MaD/FamilyVault/internal/audit"
	"github.com/Louis-MaD/FamilyVault/internal/fault"
	"github.com/Louis-MaD/FamilyVault/internal/vault"
)

// GrantView is what a recipient needs to decrypt locally: the sealed DEK
// plus the item's ciphertext and metadata. Nothing in it is plaintext.
type GrantView struct {
	Grant   ShareGrant       `json:"grant"`
	Item    vault.Meta       `json:"item"`
	Payload []byte           `json:"payload"`
	Meta    vault.CipherMeta `json:"cryptoMeta"`
}

// ListActiveGrants returns the caller's live grants, soonest to expire
// first. Revoked or expired rows may still exist in storage; they are
// filtered against the clock at read time, never by a background sweeper.
func (s *Service) ListActiveGrants(ctx context.Context, userID string) ([]GrantView, error) {
	if _, err := s.Gate.RequireActive(ctx, userID); err != nil {
		return nil, err
	}
	grants, err := s.Store.ListActiveGrantsFor(ctx, userID, s.Now())
	if err != nil {
		return nil, err
	}
	out := make([]GrantView, 0, len(grants))
	for _, g := range grants {
		it, err := s.Items.Get(ctx, g.ItemID)
		if err == vault.ErrItemNotFound {
			// Owner deleted the item after granting; the grant is useless.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, GrantView{
			Grant:   g,
			Item:    it.Meta(),
			Payload: it.Bundle.Payload,
			Meta:    it.Bundle.Meta,
		})
	}
	return out, nil
}

// Revoke is the only mutation a grant permits after creation. Granter only;
// monotonic; natural expiry needs no call at all.
func (s *Service) Revoke(ctx context.Context, callerID, grantID string) (ShareGrant, error) {
	if _, err := s.Gate.RequireActive(ctx, callerID); err != nil {
		return ShareGrant{}, err
	}
	g, err := s.Store.GetGrant(ctx, grantID)
	if err == ErrGrantNotFound {
		return ShareGrant{}, fault.NotFound("grant")
	}
	if err != nil {
		return ShareGrant{}, err
	}
	if g.FromUserID != callerID {
		return ShareGrant{}, fault.NotFound("grant")
	}
	now := s.Now()
	err = s.Store.RevokeGrant(ctx, grantID, now)
	switch err {
	case nil:
	case ErrAlreadyRevoked:
		return ShareGrant{}, fault.Conflictf("grant already revoked")
	default:
		return ShareGrant{}, err
	}
	g.RevokedAt = &now
	s.Audit.Record(ctx, audit.Event{ActorID: callerID, Kind: audit.GrantRevoked, TargetType: "grant", TargetID: g.ID, At: now})
	return g, nil
}
