package vault

import (
	"errors"
	"time"
)

type ItemType string

const (
	TypePassword ItemType = "PASSWORD"
	TypeNote     ItemType = "NOTE"
)

type Visibility string

const (
	// VisibilityPrivate hides the item entirely from everyone but the owner.
	VisibilityPrivate Visibility = "PRIVATE"
	// VisibilityFamilyMetadata exposes title/url/tags to every ACTIVE user;
	// the ciphertext bundle stays owner-only until a grant exists.
	VisibilityFamilyMetadata Visibility = "FAMILY_METADATA"
)

// Payload is the secret half of an item. It only ever exists in plaintext on
// the client side; the server stores it as Bundle.Payload ciphertext.
type Payload struct {
	Fields map[string]string `json:"fields"`
	Notes  string            `json:"notes,omitempty"`
}

// CipherMeta is the stored crypto metadata for a bundle. Nonces are public;
// they must only be unique per key, which random 192-bit nonces guarantee.
// Alg tags the whole layout: a second AEAD scheme means a new constant and a
// new case in Validate, not a loosely-typed bag of fields.
type CipherMeta struct {
	Alg          string `bson:"alg" json:"alg"`
	DEKNonce     []byte `bson:"dek_nonce" json:"dekNonce"`
	PayloadNonce []byte `bson:"payload_nonce" json:"payloadNonce"`
	FileNonce    []byte `bson:"file_nonce,omitempty" json:"fileNonce,omitempty"`
}

// Bundle is the three-part ciphertext stored per item: the DEK wrapped under
// the owner's master key, the payload encrypted under the DEK, and the
// metadata needed to undo both layers.
type Bundle struct {
	WrappedDEK []byte     `bson:"wrapped_dek" json:"wrappedDek"`
	Payload    []byte     `bson:"payload" json:"payload"`
	Meta       CipherMeta `bson:"meta" json:"meta"`
}

type Item struct {
	ID          string     `bson:"_id" json:"id"`
	OwnerID     string     `bson:"owner_id" json:"ownerId"`
	Type        ItemType   `bson:"type" json:"type"`
	Title       string     `bson:"title" json:"title"`
	URL         string     `bson:"url,omitempty" json:"url,omitempty"`
	Tags        []string   `bson:"tags,omitempty" json:"tags,omitempty"`
	Visibility  Visibility `bson:"visibility" json:"visibility"`
	Requestable bool       `bson:"requestable" json:"requestable"`
	Bundle      Bundle     `bson:"bundle" json:"bundle"`
	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updatedAt"`
	// SharedAt is set on the first grant and never cleared; once set, the
	// bundle is frozen (re-keying a shared item is not supported).
	SharedAt *time.Time `bson:"shared_at,omitempty" json:"sharedAt,omitempty"`
}

// Meta is the plaintext projection of an item, safe to show to any ACTIVE
// user when visibility allows it.
type Meta struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Type        ItemType   `json:"type"`
	Title       string     `json:"title"`
	URL         string     `json:"url,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Requestable bool       `json:"requestable"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (it Item) Meta() Meta {
	return Meta{
		ID:          it.ID,
		OwnerID:     it.OwnerID,
		Type:        it.Type,
		Title:       it.Title,
		URL:         it.URL,
		Tags:        it.Tags,
		Requestable: it.Requestable,
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
}

var ErrItemNotFound = errors.New("vault: item not found")
