// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-bioauth.
//
// go-bioauth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// LoginRequest is the body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned on a successful password login. Registered
// tells the client whether to start a registration or an authentication
// ceremony next.
type LoginResponse struct {
	Next       string `json:"next"`
	Registered bool   `json:"registered"`
	UserID     string `json:"user_id"`
}

// errorResponse mirrors the ceremony handler's error body.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// LoginHandler implements the demo password gate in front of the
// WebAuthn ceremonies. Any well-formed email with a password of at
// least six characters is accepted; the identity is created on first
// login. Locked identities are refused until the lockout window
// decays.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "A valid email address is required")
		return
	}
	if len(req.Password) < 6 {
		s.writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	if s.tracker.IsLocked(email) {
		s.logger.Warn("Login refused for locked identity", "identity", email)
		s.writeError(w, http.StatusLocked, "account_locked", "Account is temporarily locked")
		return
	}

	displayName := email[:strings.IndexByte(email, '@')]
	identity, created, err := s.service.EnsureIdentity(r.Context(), email, displayName)
	if err != nil {
		s.logger.Error("Failed to ensure identity", "identity", email, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}

	if created {
		s.logger.Info("Created identity on first login", "identity", email)
	}

	registered, err := s.service.RegistrationStatus(r.Context(), email)
	if err != nil {
		s.logger.Error("Failed to check registration status", "identity", email, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}

	s.writeJSON(w, http.StatusOK, LoginResponse{
		Next:       "webauthn",
		Registered: registered,
		UserID:     base64.RawURLEncoding.EncodeToString(identity.Handle),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Error: code, Message: message})
}
