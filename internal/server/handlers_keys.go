package server

import (
	"net/http"
	"time"

	"github.com/Louis-MaD/FamilyVault/internal/audit"
	"github.com/Louis-MaD/FamilyVault/internal/auth"
	cr "github.com/Louis-MaD/FamilyVault/internal/crypto"
	"github.com/Louis-MaD/FamilyVault/internal/fault"
)

// handleKeys publishes the caller's sharing key pair: the X25519 public key
// for the directory plus the private half encrypted under the caller's own
// master key. Write-once; rotating keys would orphan existing grants.
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := auth.CallerID(ctx)

	switch r.Method {
	case http.MethodPost:
		var req publishKeysReq
		if !readJSON(w, r, &req) {
			return
		}
		if len(req.PublicKey) != cr.PublicKeySize {
			http.Error(w, "public key must be 32 bytes", http.StatusBadRequest)
			return
		}
		if len(req.PrivateKeyWrap.Nonce) == 0 || len(req.PrivateKeyWrap.Ciphertext) == 0 {
			http.Error(w, "wrapped private key required", http.StatusBadRequest)
			return
		}
		if _, err := s.gate.RequireActive(ctx, callerID); err != nil {
			writeFault(w, err)
			return
		}
		err := s.users.SetKeyPair(ctx, callerID, req.PublicKey, req.PrivateKeyWrap)
		if err == auth.ErrKeyPairExists {
			writeFault(w, fault.Conflictf("key pair already published"))
			return
		}
		if err != nil {
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		s.trail.Record(ctx, audit.Event{ActorID: callerID, Kind: audit.KeyPairPublished, TargetType: "user", TargetID: callerID, At: time.Now()})
		writeJSONStatus(w, http.StatusCreated, keyDirectoryResp{UserID: callerID, PublicKey: req.PublicKey})

	case http.MethodGet:
		// The caller's own entry, wrapped private key included so a new
		// device can recover it with the master key.
		u, err := s.gate.RequireUser(ctx, callerID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, struct {
			UserID         string        `json:"user_id"`
			PublicKey      []byte        `json:"public_key,omitempty"`
			PrivateKeyWrap *auth.KeyWrap `json:"private_key_wrap,omitempty"`
		}{u.ID, u.PublicKey, u.PrivateKeyWrap})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleKeyLookup serves the public-key directory: any ACTIVE user can fetch
// another user's public key to seal a grant for them.
func (s *Server) handleKeyLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if _, err := s.gate.RequireActive(ctx, auth.CallerID(ctx)); err != nil {
		writeFault(w, err)
		return
	}
	userID, _ := pathSuffix(r.URL.Path, "/api/keys/")
	if userID == "" {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}
	u, err := s.gate.RequireUser(ctx, userID)
	if err != nil {
		writeFault(w, err)
		return
	}
	if !u.HasKeyPair() {
		writeFault(w, fault.NotFound("public key"))
		return
	}
	writeJSON(w, keyDirectoryResp{UserID: u.ID, PublicKey: u.PublicKey})
}
