package server

import (
	"errors"
	"net/http"

	"github.com/ruff-uno/simonini-isms/internal/store"
)

type userInfo struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsAdmin   bool   `json:"is_admin"`
	UserRole  string `json:"user_role,omitempty"`
}

// handleValidate reports whether the caller holds a usable session. It runs
// without a guard so unauthenticated callers get a structured answer.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	u := s.auth.CurrentUser(r)
	if u == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
		return
	}
	if !u.Verified() {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"authenticated": true,
			"verified":      false,
			"message":       "Account pending approval",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"verified":      true,
		"user": userInfo{
			UserID:    u.UserID,
			Username:  u.Username,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			IsAdmin:   u.CanAdmin,
		},
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	role := u.UserRole
	if role == "" {
		role = "user"
	}
	writeJSON(w, http.StatusOK, userInfo{
		UserID:    u.UserID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsAdmin:   u.CanAdmin,
		UserRole:  role,
	})
}

// handleLogout revokes the caller's session and expires the session cookie.
// It succeeds for callers without a session so a stale cookie is always
// cleared.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := s.auth.SessionToken(r); token != "" {
		err := s.store.RevokeSession(r.Context(), token)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.serverError(w, r, err)
			return
		}
	}
	s.auth.ClearSessionCookie(w)
	writeMessage(w, "Logged out")
}
