package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Louis-MaD/FamilyVault/internal/audit"
	"github.com/Louis-MaD/FamilyVault/internal/auth"
	cr "github.com/Louis-MaD/FamilyVault/internal/crypto"
	"github.com/Louis-MaD/FamilyVault/internal/totp"
)

// handleSignup registers an account. The very first account becomes an
// ACTIVE ADMIN so the instance is bootstrappable; everyone after that waits
// in PENDING for admin approval.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req signupReq
	if !readJSON(w, r, &req) {
		return
	}
	email := auth.NormalizeEmail(req.Email)
	if email == "" || !isValidEmail(email) {
		http.Error(w, "valid email required", http.StatusBadRequest)
		return
	}
	if err := validatePassword(req.Password); err != nil {
		http.Error(w, "weak password: "+err.Error(), http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(auth.DefaultArgon, req.Password)
	if err != nil {
		http.Error(w, "hash password failed", http.StatusInternalServerError)
		return
	}
	req.Password = ""

	salt, err := cr.NewSalt()
	if err != nil {
		http.Error(w, "salt generation failed", http.StatusInternalServerError)
		return
	}
	secret, err := totp.GenerateSecret()
	if err != nil {
		http.Error(w, "totp generation failed", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	n, err := s.users.Count(ctx)
	if err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	role, status := auth.RoleMember, auth.StatusPending
	if n == 0 {
		role, status = auth.RoleAdmin, auth.StatusActive
	}

	u := &auth.User{
		ID:         uuid.NewString(),
		Email:      email,
		PassHash:   hash,
		Salt:       salt,
		Role:       role,
		Status:     status,
		TOTPSecret: secret,
		CreatedAt:  time.Now(),
	}
	if err := s.users.Insert(ctx, u); err == auth.ErrEmailTaken {
		http.Error(w, "email already registered", http.StatusConflict)
		return
	} else if err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	s.trail.Record(ctx, audit.Event{ActorID: u.ID, Kind: audit.UserSignedUp, TargetType: "user", TargetID: u.ID, At: u.CreatedAt})

	note := "Awaiting admin approval. Scan the QR code into your authenticator now."
	if status == auth.StatusActive {
		note = "First account: admin, active immediately. Scan the QR code into your authenticator."
	}
	writeJSONStatus(w, http.StatusCreated, signupResp{
		UserID:     u.ID,
		Status:     status,
		Salt:       salt,
		TOTPSecret: secret,
		TOTPUri:    totp.ProvisionURI(email, s.cfg.TOTPIssuer, secret),
		Note:       note,
	})
}

// handleLogin checks the password and opens a short-lived TOTP challenge.
// PENDING and DISABLED users can authenticate; the gate stops them at the
// operation layer instead, so they can at least see their own status.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.rlLoginIP.allow(getClientIP(r)) {
		tooMany(w, 60)
		return
	}
	var req loginReq
	if !readJSON(w, r, &req) {
		return
	}
	email := auth.NormalizeEmail(req.Email)
	if email == "" {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !s.rlLoginID.allow(email) {
		tooMany(w, 60)
		return
	}

	u, err := s.users.FindByEmail(r.Context(), email)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	ok, err := auth.VerifyPassword(req.Password, u.PassHash)
	req.Password = ""
	if err != nil || !ok {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	challengeID, err := randomToken(16)
	if err != nil {
		http.Error(w, "challenge generation failed", http.StatusInternalServerError)
		return
	}
	expires := time.Now().Add(3 * time.Minute)

	s.mu.Lock()
	for id, ch := range s.challs {
		if ch.UserID == u.ID {
			delete(s.challs, id)
		}
	}
	s.challs[challengeID] = &twoFAChallenge{UserID: u.ID, Expires: expires}
	s.mu.Unlock()

	writeJSON(w, challengeResp{
		ChallengeID: challengeID,
		ExpiresAt:   expires,
		Note:        "Submit the 6-digit code from your authenticator app.",
	})
}

func (s *Server) handleLoginVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.rlTotpIP.allow(getClientIP(r)) {
		tooMany(w, 60)
		return
	}
	var req loginVerifyReq
	if !readJSON(w, r, &req) {
		return
	}
	challengeID := strings.TrimSpace(req.ChallengeID)
	code := strings.TrimSpace(req.Code)
	if challengeID == "" || code == "" {
		http.Error(w, "challenge id and code required", http.StatusBadRequest)
		return
	}
	if !s.rlTotpChallenge.allow(challengeID) {
		tooMany(w, 60)
		return
	}

	s.mu.Lock()
	ch, ok := s.challs[challengeID]
	if ok && time.Now().After(ch.Expires) {
		delete(s.challs, challengeID)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "invalid or expired challenge", http.StatusUnauthorized)
		return
	}

	u, err := s.users.FindByID(r.Context(), ch.UserID)
	if err != nil {
		s.clearChallenge(challengeID)
		http.Error(w, "invalid challenge", http.StatusUnauthorized)
		return
	}
	if !totp.Verify(code, u.TOTPSecret, time.Now().UTC()) {
		http.Error(w, "invalid code", http.StatusUnauthorized)
		return
	}
	s.clearChallenge(challengeID)

	tok, exp, err := s.signer.IssueToken(u.ID, u.Role)
	if err != nil {
		http.Error(w, "token issue failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, loginResp{Token: tok, ExpiresAt: exp, Salt: u.Salt})
}

func (s *Server) clearChallenge(id string) {
	s.mu.Lock()
	delete(s.challs, id)
	s.mu.Unlock()
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	u, err := s.users.FindByID(r.Context(), claims.Sub)
	if err != nil {
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return
	}
	writeJSON(w, sessionResp{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Status:    u.Status,
		Salt:      u.Salt,
		HasKeys:   u.HasKeyPair(),
		ExpiresAt: time.Unix(claims.ExpiresAt, 0),
	})
}

// handleChangePassword swaps the login hash. The vault master key is derived
// from the same passphrase client-side, so the client must re-encrypt its
// bundles afterwards via item updates; the server cannot do it.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	var req changePasswordReq
	if !readJSON(w, r, &req) {
		return
	}
	if req.Current == "" || req.Next == "" {
		http.Error(w, "current and next passwords required", http.StatusBadRequest)
		return
	}
	if req.Current == req.Next {
		http.Error(w, "new password must differ from current password", http.StatusBadRequest)
		return
	}
	if err := validatePassword(req.Next); err != nil {
		http.Error(w, "weak password: "+err.Error(), http.StatusBadRequest)
		return
	}

	u, err := s.users.FindByID(r.Context(), claims.Sub)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	passOK, err := auth.VerifyPassword(req.Current, u.PassHash)
	if err != nil || !passOK {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	newHash, err := auth.HashPassword(auth.DefaultArgon, req.Next)
	if err != nil {
		http.Error(w, "hash password failed", http.StatusInternalServerError)
		return
	}
	if err := s.users.UpdatePassword(r.Context(), u.ID, newHash); err != nil {
		http.Error(w, "update password failed", http.StatusInternalServerError)
		return
	}

	tok, exp, err := s.signer.IssueToken(u.ID, u.Role)
	if err != nil {
		http.Error(w, "token issue failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, loginResp{Token: tok, ExpiresAt: exp, Salt: u.Salt})
}
