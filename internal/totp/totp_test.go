package totp

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"
)

// RFC 4226 appendix D vectors, secret "12345678901234567890".
func TestHOTPReferenceVectors(t *testing.T) {
	secret := []byte("12345678901234567890")
	want := []string{"755224", "287082", "359152", "969429", "338314", "254676"}
	for counter, code := range want {
		if got := hotp(secret, uint64(counter)); got != code {
			t.Fatalf("counter %d: got %s, want %s", counter, got, code)
		}
	}
}

func TestVerifyWindow(t *testing.T) {
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte("12345678901234567890"))
	now := time.Unix(59, 0) // counter 1

	code := hotp([]byte("12345678901234567890"), 1)
	if !Verify(code, secret, now) {
		t.Fatal("current-step code rejected")
	}
	// One step of drift either way is accepted.
	prev := hotp([]byte("12345678901234567890"), 0)
	next := hotp([]byte("12345678901234567890"), 2)
	if !Verify(prev, secret, now) || !Verify(next, secret, now) {
		t.Fatal("adjacent-step codes rejected")
	}
	// Two steps out is not.
	far := hotp([]byte("12345678901234567890"), 3)
	if Verify(far, secret, now) {
		t.Fatal("stale code accepted")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	secret, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	for _, code := range []string{"", "12345", "1234567", "abcdef", "000000 "} {
		if Verify(code, secret, now) && code != "000000 " {
			t.Fatalf("accepted %q", code)
		}
	}
	if Verify("123456", "not base32!!", now) {
		t.Fatal("accepted code for undecodable secret")
	}
}

func TestProvisionURI(t *testing.T) {
	uri := ProvisionURI("alice@example.com", "Family Vault", "SECRET")
	if !strings.HasPrefix(uri, "otpauth://totp/FamilyVault:alice%40example.com?") {
		t.Fatalf("uri = %s", uri)
	}
	if !strings.Contains(uri, "secret=SECRET") || !strings.Contains(uri, "digits=6") || !strings.Contains(uri, "period=30") {
		t.Fatalf("uri missing parameters: %s", uri)
	}
}
