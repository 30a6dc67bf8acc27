package server

import (
	"io"
	"net/http"

	"github.com/Louis-MaD/FamilyVault/internal/auth"
	"github.com/Louis-MaD/FamilyVault/internal/storage"
	"github.com/Louis-MaD/FamilyVault/internal/vault"
)

// maxFileBody bounds encrypted attachment uploads.
const maxFileBody = 16 << 20

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := auth.CallerID(ctx)

	switch r.Method {
	case http.MethodPost:
		var req createItemReq
		if !readJSON(w, r, &req) {
			return
		}
		it, err := s.items.Create(ctx, callerID, vault.CreateInput{
			Type:        req.Type,
			Title:       req.Title,
			URL:         req.URL,
			Tags:        req.Tags,
			Visibility:  req.Visibility,
			Requestable: req.Requestable,
			Bundle:      req.Bundle,
		})
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, it)

	case http.MethodGet:
		items, err := s.items.ListOwned(ctx, callerID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, items)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSharedItems lists FAMILY_METADATA items of other users. Metadata
// only; bundles never cross this endpoint.
func (s *Server) handleSharedItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	metas, err := s.items.ListFamilyVisible(ctx, auth.CallerID(ctx))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, metas)
}

func (s *Server) handleItemByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := auth.CallerID(ctx)
	itemID, action := pathSuffix(r.URL.Path, "/api/items/")
	if itemID == "" {
		http.Error(w, "item id required", http.StatusBadRequest)
		return
	}
	if action == "file" {
		s.handleItemFile(w, r, callerID, itemID)
		return
	}
	if action != "" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		it, err := s.items.Get(ctx, callerID, itemID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, it)

	case http.MethodPut:
		var req updateItemReq
		if !readJSON(w, r, &req) {
			return
		}
		it, err := s.items.Update(ctx, callerID, itemID, vault.UpdateInput{
			Title:       req.Title,
			URL:         req.URL,
			Tags:        req.Tags,
			Visibility:  req.Visibility,
			Requestable: req.Requestable,
			Bundle:      req.Bundle,
		})
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, it)

	case http.MethodDelete:
		if err := s.items.Delete(ctx, callerID, itemID); err != nil {
			writeFault(w, err)
			return
		}
		if err := s.blobs.Delete(ctx, itemID); err != nil {
			s.logger.Printf("blob cleanup for %s: %v", itemID, err)
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleItemFile stores and serves the encrypted attachment for an item.
// Bodies are opaque: the client encrypts under the item DEK before upload
// and records the nonce in the bundle metadata via an item update.
func (s *Server) handleItemFile(w http.ResponseWriter, r *http.Request, callerID, itemID string) {
	ctx := r.Context()
	// Owner check doubles as existence check.
	if _, err := s.items.Get(ctx, callerID, itemID); err != nil {
		writeFault(w, err)
		return
	}

	switch r.Method {
	case http.MethodPut, http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxFileBody+1))
		if err != nil {
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}
		if len(body) == 0 {
			http.Error(w, "empty body", http.StatusBadRequest)
			return
		}
		if len(body) > maxFileBody {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		if err := s.blobs.Put(ctx, itemID, body); err != nil {
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodGet:
		body, err := s.blobs.Get(ctx, itemID)
		if err == storage.ErrNotFound {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)

	case http.MethodDelete:
		if err := s.blobs.Delete(ctx, itemID); err != nil {
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
