package server

import (
	"net/http"

	"github.com/Louis-MaD/FamilyVault/internal/auth"
)

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	users, err := s.admin.ListUsers(ctx, auth.CallerID(ctx))
	if err != nil {
		writeFault(w, err)
		return
	}
	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		out = append(out, userSummary{
			ID:        u.ID,
			Email:     u.Email,
			Role:      u.Role,
			Status:    u.Status,
			HasKeys:   u.HasKeyPair(),
			CreatedAt: u.CreatedAt,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleAdminUserAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	callerID := auth.CallerID(ctx)
	targetID, action := pathSuffix(r.URL.Path, "/api/admin/users/")
	if targetID == "" {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}

	switch action {
	case "status":
		var req setStatusReq
		if !readJSON(w, r, &req) {
			return
		}
		if err := s.admin.SetStatus(ctx, callerID, targetID, req.Status); err != nil {
			writeFault(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "role":
		var req setRoleReq
		if !readJSON(w, r, &req) {
			return
		}
		if err := s.admin.SetRole(ctx, callerID, targetID, req.Role); err != nil {
			writeFault(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.NotFound(w, r)
	}
}
