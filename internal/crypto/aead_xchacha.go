package crypto

import (
	"crypto/rand"
	"errors"

	xchacha "golang.org/x/crypto/chacha20poly1305"
)

const (
	NonceSize = xchacha.NonceSizeX
	DEKSize   = xchacha.KeySize
)

// ErrDecrypt is the single failure surfaced by Decrypt. Tag mismatch,
// truncated input and wrong key size all collapse into it so the caller
// cannot be used as a padding/format oracle.
var ErrDecrypt = errors.New("crypto: decryption failed")

// NewDEK returns a fresh random data-encryption key, independent of any
// master key so revoking a share never touches the master key.
func NewDEK() ([]byte, error) {
	dek := make([]byte, DEKSize)
	if _, err := rand.Read(dek); err != nil {
		return nil, err
	}
	return dek, nil
}

// Encrypt seals plaintext under key with XChaCha20-Poly1305 and a random
// 192-bit nonce. The nonce is returned detached: callers persist it as crypto
// metadata next to the ciphertext, never inside it.
func Encrypt(key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	aead, err := xchacha.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, aad)
	return nonce, ciphertext, nil
}

// Decrypt opens ciphertext sealed by Encrypt. Fails closed: on any error the
// result is ErrDecrypt and no partial plaintext.
func Decrypt(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := xchacha.NewX(key)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(nonce) != NonceSize {
		return nil, ErrDecrypt
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}
