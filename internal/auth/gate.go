package auth

import (
	"context"

	"github.com/Louis-MaD/FamilyVault/internal/fault"
)

// Gate is the single predicate family every core operation passes through.
// Role is only consulted for membership management; cryptographic operations
// are owner- or recipient-scoped regardless of role.
type Gate struct {
	Users UserStore
}

func NewGate(users UserStore) *Gate { return &Gate{Users: users} }

func (g *Gate) RequireUser(ctx context.Context, id string) (*User, error) {
	u, err := g.Users.FindByID(ctx, id)
	if err == ErrUserNotFound {
		return nil, fault.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// RequireActive blocks PENDING (awaiting admin approval) and DISABLED users
// from all sharing, requesting and granting operations. They can still
// authenticate; they just cannot act.
func (g *Gate) RequireActive(ctx context.Context, id string) (*User, error) {
	u, err := g.RequireUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Status != StatusActive {
		return nil, fault.Denied("account is not active")
	}
	return u, nil
}

func (g *Gate) RequireAdmin(ctx context.Context, id string) (*User, error) {
	u, err := g.RequireActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != RoleAdmin {
		return nil, fault.Denied("admin role required")
	}
	return u, nil
}
