package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusDisabled Status = "DISABLED"
)

// KeyWrap is a user's private key as ciphertext under their own master key.
// The server persists it without ever being able to open it.
type KeyWrap struct {
	Nonce      []byte `bson:"nonce" json:"nonce"`
	Ciphertext []byte `bson:"ciphertext" json:"ciphertext"`
}

type User struct {
	ID       string `bson:"_id" json:"id"`
	Email    string `bson:"email" json:"email"`
	PassHash string `bson:"pass_hash" json:"-"`
	// Salt feeds the client-side master-key derivation. Public by design:
	// it is a domain separator, never a secret.
	Salt           []byte    `bson:"salt" json:"salt"`
	Role           Role      `bson:"role" json:"role"`
	Status         Status    `bson:"status" json:"status"`
	PublicKey      []byte    `bson:"public_key,omitempty" json:"publicKey,omitempty"`
	PrivateKeyWrap *KeyWrap  `bson:"private_key_wrap,omitempty" json:"-"`
	TOTPSecret     string    `bson:"totp_secret" json:"-"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
}

func (u *User) HasKeyPair() bool { return len(u.PublicKey) > 0 }

var (
	ErrUserNotFound  = errors.New("auth: user not found")
	ErrEmailTaken    = errors.New("auth: email already registered")
	ErrKeyPairExists = errors.New("auth: key pair already published")
)

type UserStore interface {
	Insert(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Count(ctx context.Context) (int64, error)
	CountActiveAdmins(ctx context.Context) (int64, error)
	SetStatus(ctx context.Context, id string, st Status) error
	SetRole(ctx context.Context, id string, r Role) error
	// SetKeyPair is write-once; a second publish fails with ErrKeyPairExists.
	SetKeyPair(ctx context.Context, id string, pub []byte, wrap KeyWrap) error
	UpdatePassword(ctx context.Context, id, newHash string) error
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryUserStore backs tests and demos.
type MemoryUserStore struct {
	mu      sync.Mutex
	byID    map[string]*User
	byEmail map[string]*User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{byID: map[string]*User{}, byEmail: map[string]*User{}}
}

func (s *MemoryUserStore) Insert(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := NormalizeEmail(u.Email)
	if _, exists := s.byEmail[email]; exists {
		return ErrEmailTaken
	}
	clone := *u
	clone.Email = email
	s.byID[u.ID] = &clone
	s.byEmail[email] = &clone
	return nil
}

func (s *MemoryUserStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byEmail[NormalizeEmail(email)]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) List(_ context.Context) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*User, 0, len(s.byID))
	for _, u := range s.byID {
		clone := *u
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryUserStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.byID)), nil
}

func (s *MemoryUserStore) CountActiveAdmins(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.byID {
		if u.Role == RoleAdmin && u.Status == StatusActive {
			n++
		}
	}
	return n, nil
}

func (s *MemoryUserStore) SetStatus(_ context.Context, id string, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Status = st
	return nil
}

func (s *MemoryUserStore) SetRole(_ context.Context, id string, r Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Role = r
	return nil
}

func (s *MemoryUserStore) SetKeyPair(_ context.Context, id string, pub []byte, wrap KeyWrap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	if u.HasKeyPair() {
		return ErrKeyPairExists
	}
	u.PublicKey = append([]byte(nil), pub...)
	w := wrap
	u.PrivateKeyWrap = &w
	return nil
}

func (s *MemoryUserStore) UpdatePassword(_ context.Context, id, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PassHash = newHash
	return nil
}
