package vault

import (
	"encoding/json"
	"errors"

	cr "github.com/Louis-MaD/FamilyVault/internal/crypto"
)

// AlgXChaCha identifies the only bundle layout currently produced:
// payload under a fresh DEK, DEK under the caller's symmetric key, both with
// XChaCha20-Poly1305 and detached random nonces.
const AlgXChaCha = "xchacha20poly1305"

// AAD context strings keep the three ciphertexts of a bundle from being
// swapped for one another.
var (
	aadDEKWrap  = []byte("dek-wrap")
	aadPayload  = []byte("item-payload")
	aadFileBody = []byte("file-body")
)

// ErrMalformedPayload marks a payload that decrypted fine but does not parse.
// That is a format bug, not an authentication failure, and is reported
// distinctly from cr.ErrDecrypt.
var ErrMalformedPayload = errors.New("vault: malformed item payload")

func (m CipherMeta) validate() error {
	switch m.Alg {
	case AlgXChaCha:
		if len(m.DEKNonce) != cr.NonceSize || len(m.PayloadNonce) != cr.NonceSize {
			return cr.ErrDecrypt
		}
		return nil
	default:
		return cr.ErrDecrypt
	}
}

// EncryptItem serializes payload to its canonical JSON form, encrypts it
// under a fresh DEK, and wraps the DEK under masterKey.
func EncryptItem(payload Payload, masterKey []byte) (Bundle, error) {
	pt, err := json.Marshal(payload)
	if err != nil {
		return Bundle{}, err
	}
	defer cr.Zero(pt)

	dek, err := cr.NewDEK()
	if err != nil {
		return Bundle{}, err
	}
	defer cr.Zero(dek)

	payloadNonce, ct, err := cr.Encrypt(dek, pt, aadPayload)
	if err != nil {
		return Bundle{}, err
	}
	dekNonce, wrapped, err := cr.Encrypt(masterKey, dek, aadDEKWrap)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		WrappedDEK: wrapped,
		Payload:    ct,
		Meta: CipherMeta{
			Alg:          AlgXChaCha,
			DEKNonce:     dekNonce,
			PayloadNonce: payloadNonce,
		},
	}, nil
}

// DecryptItem is the inverse of EncryptItem. Authentication failures surface
// as cr.ErrDecrypt; a post-decryption parse failure as ErrMalformedPayload.
func DecryptItem(b Bundle, masterKey []byte) (Payload, error) {
	dek, err := UnwrapDEK(b, masterKey)
	if err != nil {
		return Payload{}, err
	}
	defer cr.Zero(dek)

	pt, err := cr.Decrypt(dek, b.Meta.PayloadNonce, b.Payload, aadPayload)
	if err != nil {
		return Payload{}, err
	}
	defer cr.Zero(pt)

	var p Payload
	if err := json.Unmarshal(pt, &p); err != nil {
		return Payload{}, ErrMalformedPayload
	}
	return p, nil
}

// UnwrapDEK recovers the item's data key. The owner uses this during grant
// approval to reseal the DEK for a recipient's public key.
func UnwrapDEK(b Bundle, masterKey []byte) ([]byte, error) {
	if err := b.Meta.validate(); err != nil {
		return nil, err
	}
	return cr.Decrypt(masterKey, b.Meta.DEKNonce, b.WrappedDEK, aadDEKWrap)
}

// DecryptPayloadWithDEK opens the payload half directly, for recipients who
// obtained the DEK from a sealed grant rather than the master key.
func DecryptPayloadWithDEK(b Bundle, dek []byte) (Payload, error) {
	if err := b.Meta.validate(); err != nil {
		return Payload{}, err
	}
	pt, err := cr.Decrypt(dek, b.Meta.PayloadNonce, b.Payload, aadPayload)
	if err != nil {
		return Payload{}, err
	}
	defer cr.Zero(pt)
	var p Payload
	if err := json.Unmarshal(pt, &p); err != nil {
		return Payload{}, ErrMalformedPayload
	}
	return p, nil
}

// EncryptFileBody encrypts an attached file blob under the bundle's DEK,
// recording a third nonce in the metadata. Same pattern as the payload, one
// more layer.
func EncryptFileBody(b *Bundle, masterKey, body []byte) ([]byte, error) {
	dek, err := UnwrapDEK(*b, masterKey)
	if err != nil {
		return nil, err
	}
	defer cr.Zero(dek)
	nonce, ct, err := cr.Encrypt(dek, body, aadFileBody)
	if err != nil {
		return nil, err
	}
	b.Meta.FileNonce = nonce
	return ct, nil
}

func DecryptFileBody(b Bundle, dek, body []byte) ([]byte, error) {
	if err := b.Meta.validate(); err != nil {
		return nil, err
	}
	if len(b.Meta.FileNonce) != cr.NonceSize {
		return nil, cr.ErrDecrypt
	}
	return cr.Decrypt(dek, b.Meta.FileNonce, body, aadFileBody)
}
