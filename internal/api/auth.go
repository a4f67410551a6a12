package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is returned by refresh. Login returns the full
// auth.LoginResponse including the user fields.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type authorizeRequest struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type authorizeResponse struct {
	Allowed bool `json:"allowed"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// meResponse describes the caller as seen by the access token.
type meResponse struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	ExpiresAt   int64    `json:"expires_at,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// handleLogin authenticates email and password and starts a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	resp, err := s.auth.Login(r.Context(), req.Email, req.Password, clientFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates a refresh token into a new token pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "refresh_token is required")
		return
	}

	resp, err := s.auth.Refresh(r.Context(), req.RefreshToken, clientFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
	})
}

// handleLogout revokes every session of the caller.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := s.auth.Logout(r.Context(), claims.Subject); err != nil {
		s.writeServiceError(w, r, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleAuthorize answers whether the caller currently holds resource:action.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Resource == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "resource and action are required")
		return
	}

	claims := claimsFromContext(r.Context())
	allowed := s.auth.Authorize(r.Context(), claims.Subject, req.Resource, req.Action)
	writeJSON(w, http.StatusOK, authorizeResponse{Allowed: allowed})
}

// handleMe returns the identity carried by the access token.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	resp := meResponse{
		UserID:      claims.Subject,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChangePassword replaces the caller's password. Every session,
// including the current one, is revoked.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	claims := claimsFromContext(r.Context())
	err := s.auth.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword, clientFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, "change password", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleListSessions lists the caller's active sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.writeSessions(w, r, claimsFromContext(r.Context()).Subject)
}

// handleRevokeSession ends one of the caller's sessions.
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	family := chi.URLParam(r, "family")

	if err := s.auth.RevokeSession(r.Context(), claims.Subject, family); err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			writeNotFound(w, "session not found")
			return
		}
		s.writeServiceError(w, r, "revoke session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeSessions(w http.ResponseWriter, r *http.Request, userID string) {
	sessions, err := s.auth.Sessions(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
