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

package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-bioauth/pkg/ceremony"
	"github.com/jeremyhahn/go-bioauth/pkg/metrics"
)

// Handler provides HTTP handlers for the ceremony endpoints. The handlers
// can be mounted on any router.
type Handler struct {
	service *ceremony.Service
	logger  *slog.Logger
}

// NewHandler creates a ceremony HTTP handler.
func NewHandler(service *ceremony.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /webauthn/registration/begin
//
// Request body:
//
//	{"email": "user@example.com"}
//
// Response: WebAuthn PublicKeyCredentialCreationOptions
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	var req BeginRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "email is required")
		return
	}

	creation, err := h.service.BeginRegistration(r.Context(), req.Email)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, creation.Response)
}

// FinishRegistration handles POST /webauthn/registration/finish
//
// Request body:
//
//	{"email": "user@example.com", "credential": {...attestation response...}}
//
// Response: RegistrationResponse
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req FinishRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "email is required")
		return
	}
	if len(req.Credential) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "credential is required")
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	rec, err := h.service.FinishRegistration(r.Context(), req.Email, parsed)
	if err != nil {
		metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.OutcomeRejected, time.Since(start).Seconds())
		h.handleServiceError(w, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.OutcomeVerified, time.Since(start).Seconds())
	h.writeJSON(w, http.StatusOK, RegistrationResponse{
		Verified:     true,
		CredentialID: base64.RawURLEncoding.EncodeToString(rec.ID),
	})
}

// RegistrationStatus handles GET /webauthn/registration/status?email=...
//
// Response: {"registered": true|false}
func (h *Handler) RegistrationStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "email is required")
		return
	}

	registered, err := h.service.RegistrationStatus(r.Context(), email)
	if err != nil {
		if ceremony.IsUnknownIdentity(err) {
			h.writeJSON(w, http.StatusOK, RegistrationStatusResponse{Registered: false})
			return
		}
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RegistrationStatusResponse{Registered: registered})
}

// BeginAuthentication handles POST /webauthn/authentication/begin
//
// Request body:
//
//	{"email": "user@example.com"}
//
// Response: WebAuthn PublicKeyCredentialRequestOptions
func (h *Handler) BeginAuthentication(w http.ResponseWriter, r *http.Request) {
	var req BeginAuthenticationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "email is required")
		return
	}

	assertion, err := h.service.BeginLogin(r.Context(), req.Email)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, assertion.Response)
}

// FinishAuthentication handles POST /webauthn/authentication/finish
//
// Request body:
//
//	{"email": "user@example.com", "credential": {...assertion response...}}
//
// Response: AuthResponse
func (h *Handler) FinishAuthentication(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req FinishAuthenticationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "email is required")
		return
	}
	if len(req.Credential) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "credential is required")
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	result, err := h.service.FinishLogin(r.Context(), req.Email, parsed)
	if err != nil {
		outcome := metrics.OutcomeRejected
		if ceremony.IsAccountLocked(err) {
			outcome = metrics.OutcomeLocked
		}
		metrics.RecordCeremony(metrics.CeremonyAuthentication, outcome, time.Since(start).Seconds())
		h.handleServiceError(w, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.OutcomeVerified, time.Since(start).Seconds())
	h.writeJSON(w, http.StatusOK, AuthResponse{
		Verified: true,
		Token:    result.Token,
		UserID:   base64.RawURLEncoding.EncodeToString(result.Identity.Handle),
	})
}

// handleServiceError maps service errors to HTTP responses. Challenge and
// verification failures collapse into a single 401 so the response does not
// reveal which check failed; the specific cause is logged.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ceremony.ErrAccountLocked):
		h.writeError(w, http.StatusLocked, ErrorCodeAccountLocked, "account locked due to repeated failures")
	case ceremony.IsUnknownIdentity(err):
		h.writeError(w, http.StatusNotFound, ErrorCodeUnknownIdentity, "unknown identity")
	case errors.Is(err, ceremony.ErrNoRegisteredAuthenticator):
		h.writeError(w, http.StatusNotFound, ErrorCodeNoAuthenticator, "no registered authenticator")
	case errors.Is(err, ceremony.ErrCredentialBound):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "credential already registered")
	case ceremony.IsChallengeInvalid(err), ceremony.IsVerificationFailed(err), ceremony.IsReplayDetected(err):
		h.logger.Warn("ceremony rejected", "error", err)
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	case errors.Is(err, ceremony.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
	default:
		h.logger.Error("ceremony handler error", "error", err)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
