package server

import (
	"time"

	"github.com/Louis-MaD/FamilyVault/internal/auth"
	"github.com/Louis-MaD/FamilyVault/internal/vault"
)

type signupReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResp struct {
	UserID     string      `json:"user_id"`
	Status     auth.Status `json:"status"`
	Salt       []byte      `json:"salt"`
	TOTPSecret string      `json:"totp_secret"`
	TOTPUri    string      `json:"totp_uri"`
	Note       string      `json:"note,omitempty"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type challengeResp struct {
	ChallengeID string    `json:"challenge_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	Note        string    `json:"note"`
}

type loginVerifyReq struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type loginResp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	// Salt lets the client re-derive its master key locally; the password
	// itself never comes back.
	Salt []byte `json:"salt"`
}

type sessionResp struct {
	UserID    string      `json:"user_id"`
	Email     string      `json:"email"`
	Role      auth.Role   `json:"role"`
	Status    auth.Status `json:"status"`
	Salt      []byte      `json:"salt"`
	HasKeys   bool        `json:"has_keys"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type changePasswordReq struct {
	Current string `json:"current"`
	Next    string `json:"next"`
}

type publishKeysReq struct {
	PublicKey      []byte       `json:"public_key"`
	PrivateKeyWrap auth.KeyWrap `json:"private_key_wrap"`
}

type keyDirectoryResp struct {
	UserID    string `json:"user_id"`
	PublicKey []byte `json:"public_key"`
}

type createItemReq struct {
	Type        vault.ItemType   `json:"type"`
	Title       string           `json:"title"`
	URL         string           `json:"url,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Visibility  vault.Visibility `json:"visibility"`
	Requestable bool             `json:"requestable"`
	Bundle      vault.Bundle     `json:"bundle"`
}

type updateItemReq struct {
	Title       *string           `json:"title,omitempty"`
	URL         *string           `json:"url,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Visibility  *vault.Visibility `json:"visibility,omitempty"`
	Requestable *bool             `json:"requestable,omitempty"`
	Bundle      *vault.Bundle     `json:"bundle,omitempty"`
}

type createRequestReq struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason,omitempty"`
}

type approveReq struct {
	WrappedDEK []byte `json:"wrapped_dek"`
}

type denyReq struct {
	Note string `json:"note,omitempty"`
}

type setStatusReq struct {
	Status auth.Status `json:"status"`
}

type setRoleReq struct {
	Role auth.Role `json:"role"`
}

type userSummary struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Role      auth.Role   `json:"role"`
	Status    auth.Status `json:"status"`
	HasKeys   bool        `json:"has_keys"`
	CreatedAt time.Time   `json:"created_at"`
}

// twoFAChallenge is the in-flight state between password check and TOTP
// verify. Held in memory only; a restart just forces a fresh login.
type twoFAChallenge struct {
	UserID  string
	Expires time.Time
}
