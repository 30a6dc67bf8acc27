package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func randBytes(t testing.TB, n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := randBytes(t, DEKSize)
	pt := randBytes(t, 4096)
	aad := []byte("context")
	nonce, ct, err := Encrypt(key, pt, aad)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(nonce) != NonceSize {
		t.Fatalf("nonce size = %d, want %d", len(nonce), NonceSize)
	}
	out, err := Decrypt(key, nonce, ct, aad)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, out) {
		t.Fatal("plaintext mismatch")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key := randBytes(t, DEKSize)
	nonce, ct, err := Encrypt(key, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	other := randBytes(t, DEKSize)
	if _, err := Decrypt(other, nonce, ct, nil); err != ErrDecrypt {
		t.Fatalf("want ErrDecrypt with wrong key, got %v", err)
	}
}

func TestDecryptAADMismatch(t *testing.T) {
	key := randBytes(t, DEKSize)
	nonce, ct, err := Encrypt(key, []byte("secret"), []byte("aad-1"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := Decrypt(key, nonce, ct, []byte("aad-2")); err != ErrDecrypt {
		t.Fatalf("want ErrDecrypt with mismatched AAD, got %v", err)
	}
}

func TestDecryptTamperAndTruncate(t *testing.T) {
	key := randBytes(t, DEKSize)
	nonce, ct, err := Encrypt(key, []byte("hello"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	mut := append([]byte(nil), ct...)
	mut[len(mut)-1] ^= 0xFF
	if _, err := Decrypt(key, nonce, mut, nil); err != ErrDecrypt {
		t.Fatalf("want ErrDecrypt after tamper, got %v", err)
	}
	if _, err := Decrypt(key, nonce, ct[:len(ct)-1], nil); err != ErrDecrypt {
		t.Fatalf("want ErrDecrypt after truncation, got %v", err)
	}
	if _, err := Decrypt(key, nonce[:5], ct, nil); err != ErrDecrypt {
		t.Fatalf("want ErrDecrypt with short nonce, got %v", err)
	}
}

func TestEncryptUniqueNonce(t *testing.T) {
	key := randBytes(t, DEKSize)
	n1, _, err := Encrypt(key, []byte("data"), nil)
	if err != nil {
		t.Fatalf("encrypt1: %v", err)
	}
	n2, _, err := Encrypt(key, []byte("data"), nil)
	if err != nil {
		t.Fatalf("encrypt2: %v", err)
	}
	if bytes.Equal(n1, n2) {
		t.Fatal("expected distinct nonces")
	}
}

func FuzzDecryptRejectMutations(f *testing.F) {
	f.Add([]byte("hello"), []byte("aad"))
	f.Add([]byte(""), []byte(""))
	f.Fuzz(func(t *testing.T, pt, aad []byte) {
		key := randBytes(t, DEKSize)
		nonce, ct, err := Encrypt(key, pt, aad)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if _, err := Decrypt(key, nonce, ct, aad); err != nil {
			t.Fatalf("decrypt baseline: %v", err)
		}
		if len(ct) == 0 {
			return
		}
		mut := append([]byte(nil), ct...)
		idx := len(pt) % len(mut)
		mut[idx] ^= 0xFF
		if _, err := Decrypt(key, nonce, mut, aad); err == nil {
			t.Fatalf("mutation at %d succeeded", idx)
		}
	})
}
