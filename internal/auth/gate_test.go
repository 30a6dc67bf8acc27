package auth

import (
	"context"
	"testing"

	"github.com/Louis-MaD/FamilyVault/internal/fault"
)

func seedUser(t *testing.T, s UserStore, id string, role Role, status Status) *User {
	t.Helper()
	u := &User{ID: id, Email: id + "@example.com", Role: role, Status: status}
	if err := s.Insert(context.Background(), u); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	return u
}

func TestGateRequireUser(t *testing.T) {
	store := NewMemoryUserStore()
	g := NewGate(store)
	seedUser(t, store, "u1", RoleMember, StatusActive)

	if _, err := g.RequireUser(context.Background(), "u1"); err != nil {
		t.Fatalf("existing user: %v", err)
	}
	if _, err := g.RequireUser(context.Background(), "ghost"); fault.KindOf(err) != fault.KindNotFound {
		t.Fatalf("want NotFound for unknown user, got %v", err)
	}
}

func TestGateRequireActive(t *testing.T) {
	store := NewMemoryUserStore()
	g := NewGate(store)
	seedUser(t, store, "active", RoleMember, StatusActive)
	seedUser(t, store, "pending", RoleMember, StatusPending)
	seedUser(t, store, "disabled", RoleMember, StatusDisabled)

	if _, err := g.RequireActive(context.Background(), "active"); err != nil {
		t.Fatalf("active user: %v", err)
	}
	for _, id := range []string{"pending", "disabled"} {
		if _, err := g.RequireActive(context.Background(), id); fault.KindOf(err) != fault.KindDenied {
			t.Fatalf("want Denied for %s user, got %v", id, err)
		}
	}
}

func TestGateRequireAdmin(t *testing.T) {
	store := NewMemoryUserStore()
	g := NewGate(store)
	seedUser(t, store, "admin", RoleAdmin, StatusActive)
	seedUser(t, store, "member", RoleMember, StatusActive)
	seedUser(t, store, "sleepy", RoleAdmin, StatusDisabled)

	if _, err := g.RequireAdmin(context.Background(), "admin"); err != nil {
		t.Fatalf("active admin: %v", err)
	}
	if _, err := g.RequireAdmin(context.Background(), "member"); fault.KindOf(err) != fault.KindDenied {
		t.Fatalf("want Denied for member, got %v", err)
	}
	if _, err := g.RequireAdmin(context.Background(), "sleepy"); fault.KindOf(err) != fault.KindDenied {
		t.Fatalf("want Denied for disabled admin, got %v", err)
	}
}
