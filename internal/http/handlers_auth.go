package http

import (
	"net/http"
)

// handleRegister handles POST /api/auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "register", err)
		return
	}
	session, err := s.deps.Auth.Register(r.Context(), sanitizeInput(req.Name), req.Email, req.Password)
	if err != nil {
		writeError(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

// handleLogin handles POST /api/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "login", err)
		return
	}
	session, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

// handleMe handles GET /api/auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Auth.Me(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}
