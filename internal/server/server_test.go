package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Louis-MaD/FamilyVault/internal/audit"
	"github.com/Louis-MaD/FamilyVault/internal/auth"
	cr "github.com/Louis-MaD/FamilyVault/internal/crypto"
	"github.com/Louis-MaD/FamilyVault/internal/sharing"
	"github.com/Louis-MaD/FamilyVault/internal/storage"
	"github.com/Louis-MaD/FamilyVault/internal/vault"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newServer(
		Config{},
		log.New(io.Discard, "", 0),
		auth.NewMemoryUserStore(),
		vault.NewMemoryStore(),
		sharing.NewMemoryStore(),
		storage.NewMemoryBlobStore(),
		audit.Discard{},
	)
}

func do(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

// currentTOTP recomputes the code an authenticator app would show.
func currentTOTP(t *testing.T, secret string) string {
	t.Helper()
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		t.Fatal(err)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(time.Now().Unix()/30))
	mac := hmac.New(sha1.New, key)
	mac.Write(buf[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0F
	trunc := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF
	return fmt.Sprintf("%06d", trunc%1000000)
}

// signupAndLogin walks the whole enrollment: signup, TOTP challenge, verify.
func signupAndLogin(t *testing.T, srv *Server, email, password string) (userID, token string) {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/signup", "", signupReq{Email: email, Password: password})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: %d %s", email, rec.Code, rec.Body.String())
	}
	su := decode[signupResp](t, rec)

	rec = do(t, srv, http.MethodPost, "/api/login", "", loginReq{Email: email, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, rec.Code, rec.Body.String())
	}
	ch := decode[challengeResp](t, rec)

	rec = do(t, srv, http.MethodPost, "/api/login/verify", "", loginVerifyReq{
		ChallengeID: ch.ChallengeID,
		Code:        currentTOTP(t, su.TOTPSecret),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify %s: %d %s", email, rec.Code, rec.Body.String())
	}
	lr := decode[loginResp](t, rec)
	return su.UserID, lr.Token
}

const testPassword = "Sup3r-secret-pw!"

func TestSignupFirstUserIsActiveAdmin(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/signup", "", signupReq{Email: "root@example.com", Password: testPassword})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", rec.Code, rec.Body.String())
	}
	su := decode[signupResp](t, rec)
	if su.Status != auth.StatusActive {
		t.Fatalf("first user status = %s, want ACTIVE", su.Status)
	}
	if len(su.Salt) != cr.SaltSize {
		t.Fatalf("salt length = %d", len(su.Salt))
	}

	rec = do(t, srv, http.MethodPost, "/api/signup", "", signupReq{Email: "second@example.com", Password: testPassword})
	su2 := decode[signupResp](t, rec)
	if su2.Status != auth.StatusPending {
		t.Fatalf("second user status = %s, want PENDING", su2.Status)
	}

	// Duplicate email is a conflict.
	rec = do(t, srv, http.MethodPost, "/api/signup", "", signupReq{Email: "root@example.com", Password: testPassword})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: %d", rec.Code)
	}
}

func TestSignupRejectsWeakInput(t *testing.T) {
	srv := newTestServer(t)
	for _, tc := range []signupReq{
		{Email: "not-an-email", Password: testPassword},
		{Email: "a@example.com", Password: "short"},
		{Email: "a@example.com", Password: "alllowercasebutlong1!"},
	} {
		rec := do(t, srv, http.MethodPost, "/api/signup", "", tc)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%+v: %d", tc, rec.Code)
		}
	}
}

func TestAuthRequiredOnPrivateRoutes(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/api/items", "/api/session", "/api/grants", "/api/requests/incoming"} {
		rec := do(t, srv, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: %d", path, rec.Code)
		}
	}
	rec := do(t, srv, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
}

func TestLoginVerifyRejectsBadCode(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/signup", "", signupReq{Email: "a@example.com", Password: testPassword})
	if rec.Code != http.StatusCreated {
		t.Fatal(rec.Body.String())
	}
	rec = do(t, srv, http.MethodPost, "/api/login", "", loginReq{Email: "a@example.com", Password: testPassword})
	ch := decode[challengeResp](t, rec)

	rec = do(t, srv, http.MethodPost, "/api/login/verify", "", loginVerifyReq{ChallengeID: ch.ChallengeID, Code: "000000"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad code: %d", rec.Code)
	}

	rec = do(t, srv, http.MethodPost, "/api/login", "", loginReq{Email: "a@example.com", Password: "Wrong-password-1!"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", rec.Code)
	}
}

func TestFullShareFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	_, aliceTok := signupAndLogin(t, srv, "alice@example.com", testPassword)
	bobID, bobTok := signupAndLogin(t, srv, "bob@example.com", testPassword)

	// Bob starts PENDING: he can see his session but not act.
	rec := do(t, srv, http.MethodGet, "/api/session", bobTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session: %d", rec.Code)
	}
	rec = do(t, srv, http.MethodGet, "/api/items", bobTok, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("pending user listing items: %d", rec.Code)
	}

	// Alice (admin) activates Bob.
	rec = do(t, srv, http.MethodPost, "/api/admin/users/"+bobID+"/status", aliceTok, setStatusReq{Status: auth.StatusActive})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("activate bob: %d %s", rec.Code, rec.Body.String())
	}

	// Bob publishes a key pair.
	bobKeys, err := cr.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	rec = do(t, srv, http.MethodPost, "/api/keys", bobTok, publishKeysReq{
		PublicKey:      bobKeys.Pub.Bytes(),
		PrivateKeyWrap: auth.KeyWrap{Nonce: []byte("n"), Ciphertext: []byte("c")},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("publish keys: %d %s", rec.Code, rec.Body.String())
	}
	// Second publish is refused.
	rec = do(t, srv, http.MethodPost, "/api/keys", bobTok, publishKeysReq{
		PublicKey:      bobKeys.Pub.Bytes(),
		PrivateKeyWrap: auth.KeyWrap{Nonce: []byte("n"), Ciphertext: []byte("c")},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second publish: %d", rec.Code)
	}

	// Alice encrypts an item client-side and stores the bundle.
	salt, _ := cr.NewSalt()
	mk, err := cr.DeriveMasterKey([]byte(testPassword), salt, cr.KDFParams{M: 8 * 1024, T: 1, P: 1})
	if err != nil {
		t.Fatal(err)
	}
	bundle, err := vault.EncryptItem(vault.Payload{Fields: map[string]string{"password": "hunter2"}}, mk[:])
	if err != nil {
		t.Fatal(err)
	}
	rec = do(t, srv, http.MethodPost, "/api/items", aliceTok, createItemReq{
		Type: vault.TypePassword, Title: "Router",
		Visibility: vault.VisibilityFamilyMetadata, Requestable: true,
		Bundle: bundle,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create item: %d %s", rec.Code, rec.Body.String())
	}
	item := decode[vault.Item](t, rec)

	// Bob sees the metadata, not the bundle.
	rec = do(t, srv, http.MethodGet, "/api/items/shared", bobTok, nil)
	metas := decode[[]vault.Meta](t, rec)
	if len(metas) != 1 || metas[0].ID != item.ID {
		t.Fatalf("shared listing: %+v", metas)
	}
	// Direct fetch of a foreign item 404s.
	rec = do(t, srv, http.MethodGet, "/api/items/"+item.ID, bobTok, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign item fetch: %d", rec.Code)
	}

	// Bob requests access; a repeat create returns the same row with 200.
	rec = do(t, srv, http.MethodPost, "/api/requests", bobTok, createRequestReq{ItemID: item.ID, Reason: "mesh setup"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create request: %d %s", rec.Code, rec.Body.String())
	}
	request := decode[sharing.AccessRequest](t, rec)
	rec = do(t, srv, http.MethodPost, "/api/requests", bobTok, createRequestReq{ItemID: item.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat create request: %d", rec.Code)
	}

	// Alice reseals the DEK to Bob's published key and approves.
	rec = do(t, srv, http.MethodGet, "/api/keys/"+bobID, aliceTok, nil)
	dir := decode[keyDirectoryResp](t, rec)
	dek, err := vault.UnwrapDEK(bundle, mk[:])
	if err != nil {
		t.Fatal(err)
	}
	box, err := cr.SealToPublicKey(dir.PublicKey, dek)
	if err != nil {
		t.Fatal(err)
	}
	rec = do(t, srv, http.MethodPost, "/api/requests/"+request.ID+"/approve", aliceTok, approveReq{WrappedDEK: box})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", rec.Code, rec.Body.String())
	}

	// Bob fetches the grant and decrypts end to end.
	rec = do(t, srv, http.MethodGet, "/api/grants", bobTok, nil)
	views := decode[[]sharing.GrantView](t, rec)
	if len(views) != 1 {
		t.Fatalf("grants: %d", len(views))
	}
	bobDEK, err := cr.OpenFromPrivateKey(bobKeys.Pub.Bytes(), bobKeys.Priv.Bytes(), views[0].Grant.WrappedDEK)
	if err != nil {
		t.Fatalf("open box: %v", err)
	}
	payload, err := vault.DecryptPayloadWithDEK(vault.Bundle{Payload: views[0].Payload, Meta: views[0].Meta}, bobDEK)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if payload.Fields["password"] != "hunter2" {
		t.Fatalf("payload = %+v", payload)
	}

	// Alice revokes; Bob's grants go empty.
	rec = do(t, srv, http.MethodPost, "/api/grants/"+views[0].Grant.ID+"/revoke", aliceTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodGet, "/api/grants", bobTok, nil)
	if got := decode[[]sharing.GrantView](t, rec); len(got) != 0 {
		t.Fatalf("grants after revoke: %d", len(got))
	}
}

func TestItemFileRoundTripOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	_, tok := signupAndLogin(t, srv, "alice@example.com", testPassword)

	salt, _ := cr.NewSalt()
	mk, err := cr.DeriveMasterKey([]byte(testPassword), salt, cr.KDFParams{M: 8 * 1024, T: 1, P: 1})
	if err != nil {
		t.Fatal(err)
	}
	bundle, err := vault.EncryptItem(vault.Payload{Notes: "attachment holder"}, mk[:])
	if err != nil {
		t.Fatal(err)
	}
	rec := do(t, srv, http.MethodPost, "/api/items", tok, createItemReq{
		Type: vault.TypeNote, Title: "Scan", Bundle: bundle,
	})
	item := decode[vault.Item](t, rec)

	// Client encrypts the file body under the item DEK before upload.
	cipherBody, err := vault.EncryptFileBody(&bundle, mk[:], []byte("pdf bytes"))
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPut, "/api/items/"+item.ID+"/file", bytes.NewReader(cipherBody))
	req.Header.Set("Authorization", "Bearer "+tok)
	up := httptest.NewRecorder()
	srv.ServeHTTP(up, req)
	if up.Code != http.StatusNoContent {
		t.Fatalf("upload: %d %s", up.Code, up.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/items/"+item.ID+"/file", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download: %d", rec.Code)
	}
	dek, err := vault.UnwrapDEK(bundle, mk[:])
	if err != nil {
		t.Fatal(err)
	}
	plain, err := vault.DecryptFileBody(bundle, dek, rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decrypt file: %v", err)
	}
	if !bytes.Equal(plain, []byte("pdf bytes")) {
		t.Fatalf("file round trip: %q", plain)
	}
}

func TestAdminGuards(t *testing.T) {
	srv := newTestServer(t)
	adminID, adminTok := signupAndLogin(t, srv, "admin@example.com", testPassword)
	memberID, memberTok := signupAndLogin(t, srv, "member@example.com", testPassword)

	// Member cannot reach admin routes even once ACTIVE.
	rec := do(t, srv, http.MethodPost, "/api/admin/users/"+memberID+"/status", adminTok, setStatusReq{Status: auth.StatusActive})
	if rec.Code != http.StatusNoContent {
		t.Fatal(rec.Body.String())
	}
	rec = do(t, srv, http.MethodGet, "/api/admin/users", memberTok, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member admin listing: %d", rec.Code)
	}

	// The last active admin cannot disable themselves.
	rec = do(t, srv, http.MethodPost, "/api/admin/users/"+adminID+"/status", adminTok, setStatusReq{Status: auth.StatusDisabled})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("last admin self-disable: %d %s", rec.Code, rec.Body.String())
	}
}
