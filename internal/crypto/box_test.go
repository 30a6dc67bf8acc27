package crypto

import (
	"bytes"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	dek := randBytes(t, DEKSize)
	box, err := SealToPublicKey(kp.Pub.Bytes(), dek)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := OpenFromPrivateKey(kp.Pub.Bytes(), kp.Priv.Bytes(), box)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(dek, got) {
		t.Fatal("dek mismatch")
	}
}

func TestOpenWithWrongPrivateKey(t *testing.T) {
	alice, _ := GenerateKeyPair()
	mallory, _ := GenerateKeyPair()
	dek := randBytes(t, DEKSize)
	box, err := SealToPublicKey(alice.Pub.Bytes(), dek)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := OpenFromPrivateKey(mallory.Pub.Bytes(), mallory.Priv.Bytes(), box); err != ErrDecrypt {
		t.Fatalf("want ErrDecrypt with mismatched key pair, got %v", err)
	}
	// Right private key but wrong public binding must also fail.
	if _, err := OpenFromPrivateKey(mallory.Pub.Bytes(), alice.Priv.Bytes(), box); err != ErrDecrypt {
		t.Fatalf("want ErrDecrypt with wrong public binding, got %v", err)
	}
}

func TestOpenMalformedBox(t *testing.T) {
	kp, _ := GenerateKeyPair()
	if _, err := OpenFromPrivateKey(kp.Pub.Bytes(), kp.Priv.Bytes(), []byte("short")); err != ErrDecrypt {
		t.Fatalf("want ErrDecrypt on short box, got %v", err)
	}
	dek := randBytes(t, DEKSize)
	box, err := SealToPublicKey(kp.Pub.Bytes(), dek)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	mut := append([]byte(nil), box...)
	mut[len(mut)-1] ^= 0x01
	if _, err := OpenFromPrivateKey(kp.Pub.Bytes(), kp.Priv.Bytes(), mut); err != ErrDecrypt {
		t.Fatalf("want ErrDecrypt on tampered box, got %v", err)
	}
}

func TestSealAnonymousSender(t *testing.T) {
	// Two seals of the same DEK to the same recipient must differ: each uses
	// a fresh ephemeral key, so nothing identifies or links the sender.
	kp, _ := GenerateKeyPair()
	dek := randBytes(t, DEKSize)
	b1, err := SealToPublicKey(kp.Pub.Bytes(), dek)
	if err != nil {
		t.Fatalf("seal1: %v", err)
	}
	b2, err := SealToPublicKey(kp.Pub.Bytes(), dek)
	if err != nil {
		t.Fatalf("seal2: %v", err)
	}
	if bytes.Equal(b1[:PublicKeySize], b2[:PublicKeySize]) {
		t.Fatal("expected distinct ephemeral keys")
	}
}
