package auth

import (
	"context"
	"time"

	"github.com/Louis-MaD/FamilyVault/internal/audit"
	"github.com/Louis-MaD/FamilyVault/internal/fault"
)

// AdminService is membership management: the only place role and status
// change after signup.
type AdminService struct {
	Users UserStore
	Gate  *Gate
	Audit audit.Sink
	Now   func() time.Time
}

func NewAdminService(users UserStore, sink audit.Sink) *AdminService {
	return &AdminService{Users: users, Gate: NewGate(users), Audit: sink, Now: time.Now}
}

func (s *AdminService) ListUsers(ctx context.Context, callerID string) ([]*User, error) {
	if _, err := s.Gate.RequireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	return s.Users.List(ctx)
}

func (s *AdminService) SetStatus(ctx context.Context, callerID, targetID string, st Status) error {
	if _, err := s.Gate.RequireAdmin(ctx, callerID); err != nil {
		return err
	}
	switch st {
	case StatusPending, StatusActive, StatusDisabled:
	default:
		return fault.Validationf("unknown status %q", st)
	}
	target, err := s.Gate.RequireUser(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.guardLastAdmin(ctx, target, st, target.Role); err != nil {
		return err
	}
	if err := s.Users.SetStatus(ctx, targetID, st); err != nil {
		return err
	}
	s.Audit.Record(ctx, audit.Event{
		ActorID: callerID, Kind: audit.UserStatusChanged,
		TargetType: "user", TargetID: targetID, At: s.Now(),
	})
	return nil
}

func (s *AdminService) SetRole(ctx context.Context, callerID, targetID string, r Role) error {
	if _, err := s.Gate.RequireAdmin(ctx, callerID); err != nil {
		return err
	}
	switch r {
	case RoleAdmin, RoleMember:
	default:
		return fault.Validationf("unknown role %q", r)
	}
	target, err := s.Gate.RequireUser(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.guardLastAdmin(ctx, target, target.Status, r); err != nil {
		return err
	}
	if err := s.Users.SetRole(ctx, targetID, r); err != nil {
		return err
	}
	s.Audit.Record(ctx, audit.Event{
		ActorID: callerID, Kind: audit.UserRoleChanged,
		TargetType: "user", TargetID: targetID, At: s.Now(),
	})
	return nil
}

// guardLastAdmin rejects any mutation that would leave zero ACTIVE ADMIN
// accounts, self-disable included.
func (s *AdminService) guardLastAdmin(ctx context.Context, target *User, newStatus Status, newRole Role) error {
	wasActiveAdmin := target.Role == RoleAdmin && target.Status == StatusActive
	staysActiveAdmin := newRole == RoleAdmin && newStatus == StatusActive
	if !wasActiveAdmin || staysActiveAdmin {
		return nil
	}
	n, err := s.Users.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return fault.Denied("cannot remove the last active admin")
	}
	return nil
}
