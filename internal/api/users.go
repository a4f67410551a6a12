package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
)

type setActiveRequest struct {
	Active *bool `json:"active"`
}

type grantRoleRequest struct {
	Role string `json:"role"`
}

// handleCreateUser registers a new account with the default role.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.auth.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleSetUserActive enables or disables an account. Disabling ends
// every session of the user.
func (s *Server) handleSetUserActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "active is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.auth.SetActive(r.Context(), id, *req.Active); err != nil {
		s.writeServiceError(w, r, "set user active", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": *req.Active})
}

// handleGrantRole assigns a named role to a user.
func (s *Server) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	var req grantRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Role == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "role is required")
		return
	}

	if err := s.auth.GrantRole(r.Context(), chi.URLParam(r, "id"), req.Role); err != nil {
		s.writeServiceError(w, r, "grant role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListUserSessions lists another user's active sessions.
func (s *Server) handleListUserSessions(w http.ResponseWriter, r *http.Request) {
	s.writeSessions(w, r, chi.URLParam(r, "id"))
}

// handleRevokeUserSessions signs a user out everywhere.
func (s *Server) handleRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, "revoke user sessions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
