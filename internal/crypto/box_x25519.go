package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"io"

	xchacha "golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Sealed-box layout: [ephemeral pub (32) || nonce (24) || ciphertext+tag].
// The sender is anonymous; authenticity of a grant comes from the server-side
// ownership check, not from the cryptogram.

const (
	PublicKeySize = 32
	boxMinSize    = PublicKeySize + NonceSize + 16
)

var sealInfo = []byte("familyvault/seal/v1")

type KeyPair struct {
	Priv *ecdh.PrivateKey
	Pub  *ecdh.PublicKey
}

func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Priv: priv, Pub: priv.PublicKey()}, nil
}

// SealToPublicKey wraps a DEK so only the holder of the matching private key
// can unwrap it. Ephemeral X25519 ECDH, HKDF-SHA256 to a wrap key, then
// XChaCha with the recipient public key as AAD so the box is bound to its
// intended recipient.
func SealToPublicKey(recipientPub, dek []byte) ([]byte, error) {
	peer, err := ecdh.X25519().NewPublicKey(recipientPub)
	if err != nil {
		return nil, ErrDecrypt
	}
	eph, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	shared, err := eph.ECDH(peer)
	if err != nil {
		return nil, err
	}
	defer Zero(shared)

	wrapKey, err := deriveWrapKey(shared, eph.PublicKey().Bytes())
	if err != nil {
		return nil, err
	}
	defer Zero(wrapKey)

	nonce, ct, err := Encrypt(wrapKey, dek, recipientPub)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, PublicKeySize+len(nonce)+len(ct))
	out = append(out, eph.PublicKey().Bytes()...)
	out = append(out, nonce...)
	out = append(out, ct...)
	return out, nil
}

// OpenFromPrivateKey unwraps a sealed box. Requires both halves of the
// recipient key pair: the public key re-binds the AAD, the private key
// completes the ECDH. Any parse or tag failure yields ErrDecrypt.
func OpenFromPrivateKey(recipientPub, recipientPriv, box []byte) ([]byte, error) {
	if len(box) < boxMinSize {
		return nil, ErrDecrypt
	}
	priv, err := ecdh.X25519().NewPrivateKey(recipientPriv)
	if err != nil {
		return nil, ErrDecrypt
	}
	ephPub, err := ecdh.X25519().NewPublicKey(box[:PublicKeySize])
	if err != nil {
		return nil, ErrDecrypt
	}
	shared, err := priv.ECDH(ephPub)
	if err != nil {
		return nil, ErrDecrypt
	}
	defer Zero(shared)

	wrapKey, err := deriveWrapKey(shared, box[:PublicKeySize])
	if err != nil {
		return nil, ErrDecrypt
	}
	defer Zero(wrapKey)

	nonce := box[PublicKeySize : PublicKeySize+NonceSize]
	ct := box[PublicKeySize+NonceSize:]
	return Decrypt(wrapKey, nonce, ct, recipientPub)
}

func deriveWrapKey(shared, ephPub []byte) ([]byte, error) {
	stream := hkdf.New(sha256.New, shared, ephPub, sealInfo)
	key := make([]byte, xchacha.KeySize)
	if _, err := io.ReadFull(stream, key); err != nil {
		return nil, err
	}
	return key, nil
}
