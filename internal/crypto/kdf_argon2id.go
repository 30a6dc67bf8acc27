package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/argon2"
)

const (
	SaltSize      = 32
	MasterKeySize = 32
)

type KDFParams struct {
	M uint32
	T uint32
	P uint8
}

// InteractiveKDF is tuned for the unlock flow: sub-second on commodity
// hardware while still memory-hard enough to hurt offline guessing.
func InteractiveKDF() KDFParams {
	return KDFParams{M: 64 * 1024, T: 3, P: 4}
}

func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

var ErrShortSalt = errors.New("crypto: salt shorter than 16 bytes")

// DeriveMasterKey turns a low-entropy secret and a per-user salt into the
// symmetric master key. Deterministic: the same (secret, salt) always yields
// the same key, which is the whole unlock mechanism. The salt is a domain
// separator, not a secret.
func DeriveMasterKey(secret, salt []byte, p KDFParams) ([MasterKeySize]byte, error) {
	var mk [MasterKeySize]byte
	if len(salt) < 16 {
		return mk, ErrShortSalt
	}
	key := argon2.IDKey(secret, salt, p.T, p.M, p.P, MasterKeySize)
	copy(mk[:], key)
	Zero(key)
	return mk, nil
}
