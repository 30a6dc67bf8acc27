package server

import (
	"context"
	"net/http"

	"github.com/Louis-MaD/FamilyVault/internal/auth"
	"github.com/Louis-MaD/FamilyVault/internal/sharing"
)

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	var req createRequestReq
	if !readJSON(w, r, &req) {
		return
	}
	if req.ItemID == "" {
		http.Error(w, "item id required", http.StatusBadRequest)
		return
	}
	before, err := s.sharing.Store.FindPending(ctx, auth.CallerID(ctx), req.ItemID)
	existed := err == nil

	out, err := s.sharing.CreateRequest(ctx, auth.CallerID(ctx), req.ItemID, req.Reason)
	if err != nil {
		writeFault(w, err)
		return
	}
	// A repeat create converges on the surviving row: 200, not 201.
	if existed && out.ID == before.ID {
		writeJSON(w, out)
		return
	}
	writeJSONStatus(w, http.StatusCreated, out)
}

func (s *Server) handleIncomingRequests(w http.ResponseWriter, r *http.Request) {
	s.listRequests(w, r, s.sharing.ListIncoming)
}

func (s *Server) handleOutgoingRequests(w http.ResponseWriter, r *http.Request) {
	s.listRequests(w, r, s.sharing.ListOutgoing)
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, userID string) ([]sharing.AccessRequest, error)) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	reqs, err := list(ctx, auth.CallerID(ctx))
	if err != nil {
		writeFault(w, err)
		return
	}
	// Fold clock expiry into what the caller sees.
	now := s.sharing.Now()
	for i := range reqs {
		reqs[i].Status = reqs[i].EffectiveStatus(now)
	}
	writeJSON(w, reqs)
}

func (s *Server) handleRequestAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	callerID := auth.CallerID(ctx)
	requestID, action := pathSuffix(r.URL.Path, "/api/requests/")
	if requestID == "" {
		http.Error(w, "request id required", http.StatusBadRequest)
		return
	}

	switch action {
	case "approve":
		var req approveReq
		if !readJSON(w, r, &req) {
			return
		}
		out, grant, err := s.sharing.Approve(ctx, callerID, requestID, req.WrappedDEK)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, struct {
			Request sharing.AccessRequest `json:"request"`
			Grant   sharing.ShareGrant    `json:"grant"`
		}{out, grant})

	case "deny":
		var req denyReq
		if !readJSON(w, r, &req) {
			return
		}
		out, err := s.sharing.Deny(ctx, callerID, requestID, req.Note)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, out)

	case "cancel":
		out, err := s.sharing.Cancel(ctx, callerID, requestID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, out)

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGrants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	views, err := s.sharing.ListActiveGrants(ctx, auth.CallerID(ctx))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, views)
}

func (s *Server) handleGrantAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	grantID, action := pathSuffix(r.URL.Path, "/api/grants/")
	if grantID == "" || action != "revoke" {
		http.NotFound(w, r)
		return
	}
	g, err := s.sharing.Revoke(ctx, auth.CallerID(ctx), grantID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, g)
}
