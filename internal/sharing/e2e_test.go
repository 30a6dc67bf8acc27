package sharing

import (
	"context"
	"testing"
	"time"

	"github.com/Louis-MaD/FamilyVault/internal/audit"
	"github.com/Louis-MaD/FamilyVault/internal/auth"
	cr "github.com/Louis-MaD/FamilyVault/internal/crypto"
	"github.com/Louis-MaD/FamilyVault/internal/vault"
)

// TestShareAndRevokeFlow walks the full protocol with real cryptography on
// both sides. The stores in between only ever see ciphertext; every
// plaintext-touching step happens in this test, standing in for the two
// clients.
func TestShareAndRevokeFlow(t *testing.T) {
	ctx := context.Background()
	items := vault.NewMemoryStore()
	users := auth.NewMemoryUserStore()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(NewMemoryStore(), items, users, audit.NewChainLog())
	svc.Now = clock.now

	// Alice's client: derive a master key and encrypt an item.
	aliceSalt, err := cr.NewSalt()
	if err != nil {
		t.Fatal(err)
	}
	// Cheap parameters; the KDF's hardness is not under test here.
	aliceMK, err := cr.DeriveMasterKey([]byte("alice passphrase"), aliceSalt, cr.KDFParams{M: 8 * 1024, T: 1, P: 1})
	if err != nil {
		t.Fatal(err)
	}
	secret := vault.Payload{Fields: map[string]string{"password": "hunter2"}, Notes: "router admin"}
	bundle, err := vault.EncryptItem(secret, aliceMK[:])
	if err != nil {
		t.Fatalf("encrypt item: %v", err)
	}

	// Bob's client: generate and publish a key pair.
	bobKeys, err := cr.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	if err := users.Insert(ctx, &auth.User{ID: "alice", Email: "alice@example.com", Status: auth.StatusActive, Salt: aliceSalt}); err != nil {
		t.Fatal(err)
	}
	if err := users.Insert(ctx, &auth.User{ID: "bob", Email: "bob@example.com", Status: auth.StatusActive}); err != nil {
		t.Fatal(err)
	}
	if err := users.SetKeyPair(ctx, "bob", bobKeys.Pub.Bytes(), auth.KeyWrap{Nonce: []byte("n"), Ciphertext: []byte("c")}); err != nil {
		t.Fatal(err)
	}
	if err := items.Insert(ctx, vault.Item{
		ID: "router", OwnerID: "alice", Type: vault.TypePassword, Title: "Router",
		Visibility: vault.VisibilityFamilyMetadata, Requestable: true,
		Bundle: bundle, CreatedAt: clock.t, UpdatedAt: clock.t,
	}); err != nil {
		t.Fatal(err)
	}

	// Bob asks, Alice approves: her client unwraps the DEK with her master
	// key and reseals it to Bob's public key. The server stores the box
	// without being able to open it.
	req, err := svc.CreateRequest(ctx, "bob", "router", "setting up the mesh")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	dek, err := vault.UnwrapDEK(bundle, aliceMK[:])
	if err != nil {
		t.Fatalf("unwrap dek: %v", err)
	}
	box, err := cr.SealToPublicKey(bobKeys.Pub.Bytes(), dek)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, _, err := svc.Approve(ctx, "alice", req.ID, box); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Bob's client: fetch the grant, open the box, decrypt the payload.
	views, err := svc.ListActiveGrants(ctx, "bob")
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("want 1 grant, got %d", len(views))
	}
	v := views[0]
	bobDEK, err := cr.OpenFromPrivateKey(bobKeys.Pub.Bytes(), bobKeys.Priv.Bytes(), v.Grant.WrappedDEK)
	if err != nil {
		t.Fatalf("open box: %v", err)
	}
	got, err := vault.DecryptPayloadWithDEK(vault.Bundle{Payload: v.Payload, Meta: v.Meta}, bobDEK)
	if err != nil {
		t.Fatalf("decrypt payload: %v", err)
	}
	if got.Fields["password"] != "hunter2" || got.Notes != "router admin" {
		t.Fatalf("recovered payload = %+v", got)
	}

	// A third party's key pair cannot open Bob's box.
	eveKeys, err := cr.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cr.OpenFromPrivateKey(eveKeys.Pub.Bytes(), eveKeys.Priv.Bytes(), v.Grant.WrappedDEK); err != cr.ErrDecrypt {
		t.Fatalf("wrong key pair opened the box: %v", err)
	}

	// Alice revokes; Bob's grant list goes empty even though the hour has
	// not elapsed.
	clock.advance(5 * time.Minute)
	if _, err := svc.Revoke(ctx, "alice", v.Grant.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	views, err = svc.ListActiveGrants(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 0 {
		t.Fatalf("revoked grant still visible: %d", len(views))
	}

	// The trail covered every transition and still verifies.
	log := svc.Audit.(*audit.ChainLog)
	if err := log.Verify(); err != nil {
		t.Fatalf("audit chain: %v", err)
	}
	kinds := map[string]bool{}
	for _, en := range log.Entries() {
		kinds[en.Event.Kind] = true
	}
	for _, want := range []string{audit.RequestCreated, audit.RequestApproved, audit.GrantRevoked} {
		if !kinds[want] {
			t.Fatalf("missing audit event %s", want)
		}
	}
}

// TestPendingRequesterLeavesNoTrace checks that a user who has not been
// activated cannot create a request at all: the call is refused and nothing
// is written.
func TestPendingRequesterLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice", auth.StatusActive, true)
	f.addUser(t, "newbie", auth.StatusPending, false)
	f.addItem(t, "item1", "alice", vault.VisibilityFamilyMetadata, true)

	if _, err := f.svc.CreateRequest(ctx, "newbie", "item1", ""); err == nil {
		t.Fatal("pending user created a request")
	}
	in, err := f.svc.ListIncoming(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(in) != 0 {
		t.Fatalf("refused request left %d rows", len(in))
	}
}
