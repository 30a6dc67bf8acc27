package server

import "net/http"

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/health", s.handleHealth)

	s.mux.HandleFunc("/api/signup", s.handleSignup)
	s.mux.HandleFunc("/api/login", s.handleLogin)
	s.mux.HandleFunc("/api/login/verify", s.handleLoginVerify)

	s.mux.HandleFunc("/api/session", s.handleSession)
	s.mux.HandleFunc("/api/password", s.handleChangePassword)
	s.mux.HandleFunc("/api/keys", s.handleKeys)
	s.mux.HandleFunc("/api/keys/", s.handleKeyLookup)

	s.mux.HandleFunc("/api/items", s.handleItems)
	s.mux.HandleFunc("/api/items/shared", s.handleSharedItems)
	s.mux.HandleFunc("/api/items/", s.handleItemByID)

	s.mux.HandleFunc("/api/requests", s.handleRequests)
	s.mux.HandleFunc("/api/requests/incoming", s.handleIncomingRequests)
	s.mux.HandleFunc("/api/requests/outgoing", s.handleOutgoingRequests)
	s.mux.HandleFunc("/api/requests/", s.handleRequestAction)

	s.mux.HandleFunc("/api/grants", s.handleGrants)
	s.mux.HandleFunc("/api/grants/", s.handleGrantAction)

	s.mux.HandleFunc("/api/admin/users", s.handleAdminUsers)
	s.mux.HandleFunc("/api/admin/users/", s.handleAdminUserAction)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
