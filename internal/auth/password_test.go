package auth

import (
	"strings"
	"testing"
)

func TestHashVerifyPassword(t *testing.T) {
	p := ArgonParams{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}
	enc, err := HashPassword(p, "hunter2hunter2!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$") {
		t.Fatalf("unexpected encoding: %s", enc)
	}
	ok, err := VerifyPassword("hunter2hunter2!", enc)
	if err != nil || !ok {
		t.Fatalf("verify correct password: ok=%v err=%v", ok, err)
	}
	ok, err = VerifyPassword("wrong", enc)
	if err != nil {
		t.Fatalf("verify wrong password errored: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestVerifyPasswordRejectsGarbage(t *testing.T) {
	for _, enc := range []string{"", "argon2id$x", "$argon2id$v=19$m=1,t=1,p=1$!!$!!"} {
		if _, err := VerifyPassword("pw", enc); err != ErrInvalidHash {
			t.Fatalf("enc %q: want ErrInvalidHash, got %v", enc, err)
		}
	}
}
