package vault

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Louis-MaD/FamilyVault/internal/audit"
	"github.com/Louis-MaD/FamilyVault/internal/auth"
	"github.com/Louis-MaD/FamilyVault/internal/fault"
)

// Service is the owner-scoped item API. Payload plaintext never appears
// here: callers submit ready-made ciphertext bundles produced client-side.
type Service struct {
	Store Store
	Gate  *auth.Gate
	Audit audit.Sink
	Now   func() time.Time
}

func NewService(store Store, gate *auth.Gate, sink audit.Sink) *Service {
	return &Service{Store: store, Gate: gate, Audit: sink, Now: time.Now}
}

type CreateInput struct {
	Type        ItemType
	Title       string
	URL         string
	Tags        []string
	Visibility  Visibility
	Requestable bool
	Bundle      Bundle
}

func (in *CreateInput) validate() error {
	switch in.Type {
	case TypePassword, TypeNote:
	default:
		return fault.Validationf("unknown item type %q", in.Type)
	}
	if in.Visibility == "" {
		in.Visibility = VisibilityPrivate
	}
	switch in.Visibility {
	case VisibilityPrivate, VisibilityFamilyMetadata:
	default:
		return fault.Validationf("unknown visibility %q", in.Visibility)
	}
	if strings.TrimSpace(in.Title) == "" {
		return fault.Validationf("title required")
	}
	if len(in.Bundle.WrappedDEK) == 0 || len(in.Bundle.Payload) == 0 {
		return fault.Validationf("ciphertext bundle required")
	}
	if in.Bundle.Meta.Alg == "" {
		return fault.Validationf("bundle missing crypto metadata")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (Item, error) {
	if _, err := s.Gate.RequireActive(ctx, ownerID); err != nil {
		return Item{}, err
	}
	if err := in.validate(); err != nil {
		return Item{}, err
	}
	now := s.Now()
	it := Item{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Type:        in.Type,
		Title:       strings.TrimSpace(in.Title),
		URL:         strings.TrimSpace(in.URL),
		Tags:        in.Tags,
		Visibility:  in.Visibility,
		Requestable: in.Requestable,
		Bundle:      in.Bundle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.Insert(ctx, it); err != nil {
		return Item{}, err
	}
	s.Audit.Record(ctx, audit.Event{ActorID: ownerID, Kind: audit.ItemCreated, TargetType: "item", TargetID: it.ID, At: now})
	return it, nil
}

// Get returns the full item, bundle included. Owner only; anyone else gets
// NotFound so the item's existence is not leaked.
func (s *Service) Get(ctx context.Context, callerID, itemID string) (Item, error) {
	if _, err := s.Gate.RequireActive(ctx, callerID); err != nil {
		return Item{}, err
	}
	it, err := s.Store.Get(ctx, itemID)
	if err == ErrItemNotFound {
		return Item{}, fault.NotFound("item")
	}
	if err != nil {
		return Item{}, err
	}
	if it.OwnerID != callerID {
		return Item{}, fault.NotFound("item")
	}
	return it, nil
}

func (s *Service) ListOwned(ctx context.Context, ownerID string) ([]Item, error) {
	if _, err := s.Gate.RequireActive(ctx, ownerID); err != nil {
		return nil, err
	}
	return s.Store.ListByOwner(ctx, ownerID)
}

// ListFamilyVisible returns plaintext metadata of FAMILY_METADATA items to
// any ACTIVE user. Bundles are stripped; the caller's own items are skipped.
func (s *Service) ListFamilyVisible(ctx context.Context, callerID string) ([]Meta, error) {
	if _, err := s.Gate.RequireActive(ctx, callerID); err != nil {
		return nil, err
	}
	items, err := s.Store.ListFamilyVisible(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Meta, 0, len(items))
	for _, it := range items {
		if it.OwnerID == callerID {
			continue
		}
		out = append(out, it.Meta())
	}
	return out, nil
}

type UpdateInput struct {
	Title       *string
	URL         *string
	Tags        []string
	Visibility  *Visibility
	Requestable *bool
	Bundle      *Bundle
}

func (s *Service) Update(ctx context.Context, ownerID, itemID string, in UpdateInput) (Item, error) {
	it, err := s.Get(ctx, ownerID, itemID)
	if err != nil {
		return Item{}, err
	}
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return Item{}, fault.Validationf("title required")
		}
		it.Title = strings.TrimSpace(*in.Title)
	}
	if in.URL != nil {
		it.URL = strings.TrimSpace(*in.URL)
	}
	if in.Tags != nil {
		it.Tags = in.Tags
	}
	if in.Visibility != nil {
		switch *in.Visibility {
		case VisibilityPrivate, VisibilityFamilyMetadata:
			it.Visibility = *in.Visibility
		default:
			return Item{}, fault.Validationf("unknown visibility %q", *in.Visibility)
		}
	}
	if in.Requestable != nil {
		it.Requestable = *in.Requestable
	}
	if in.Bundle != nil {
		if it.SharedAt != nil {
			return Item{}, fault.Conflictf("bundle is frozen once the item has been shared")
		}
		if len(in.Bundle.WrappedDEK) == 0 || len(in.Bundle.Payload) == 0 {
			return Item{}, fault.Validationf("ciphertext bundle required")
		}
		it.Bundle = *in.Bundle
	}
	it.UpdatedAt = s.Now()
	if err := s.Store.Update(ctx, it); err != nil {
		return Item{}, err
	}
	s.Audit.Record(ctx, audit.Event{ActorID: ownerID, Kind: audit.ItemUpdated, TargetType: "item", TargetID: it.ID, At: it.UpdatedAt})
	return it, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, itemID string) error {
	if _, err := s.Get(ctx, ownerID, itemID); err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, itemID); err != nil {
		return err
	}
	s.Audit.Record(ctx, audit.Event{ActorID: ownerID, Kind: audit.ItemDeleted, TargetType: "item", TargetID: itemID, At: s.Now()})
	return nil
}
