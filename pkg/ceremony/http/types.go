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

import "encoding/json"

// BeginRegistrationRequest is the request body for starting registration.
type BeginRegistrationRequest struct {
	// Email is the identity's user key (required).
	Email string `json:"email"`
}

// FinishRegistrationRequest is the request body for completing registration.
type FinishRegistrationRequest struct {
	// Email is the identity's user key (required).
	Email string `json:"email"`

	// Credential is the attestation response produced by the browser's
	// navigator.credentials.create call.
	Credential json.RawMessage `json:"credential"`
}

// BeginAuthenticationRequest is the request body for starting
// authentication.
type BeginAuthenticationRequest struct {
	// Email is the identity's user key (required).
	Email string `json:"email"`
}

// FinishAuthenticationRequest is the request body for completing
// authentication.
type FinishAuthenticationRequest struct {
	// Email is the identity's user key (required).
	Email string `json:"email"`

	// Credential is the assertion response produced by the browser's
	// navigator.credentials.get call.
	Credential json.RawMessage `json:"credential"`
}

// RegistrationStatusResponse is the response for registration status.
type RegistrationStatusResponse struct {
	// Registered indicates the identity has at least one registered
	// authenticator.
	Registered bool `json:"registered"`
}

// RegistrationResponse is the response after successful registration.
type RegistrationResponse struct {
	// Verified is true when attestation verification succeeded.
	Verified bool `json:"verified"`

	// CredentialID is the base64url-encoded credential identifier.
	CredentialID string `json:"credential_id"`
}

// AuthResponse is the response after successful authentication.
type AuthResponse struct {
	// Verified is true when assertion verification succeeded.
	Verified bool `json:"verified"`

	// Token is the session token (JWT or base64 user handle).
	Token string `json:"token"`

	// UserID is the base64url-encoded user handle.
	UserID string `json:"user_id"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeUnknownIdentity    = "unknown_identity"
	ErrorCodeNoAuthenticator    = "no_registered_authenticator"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeAccountLocked      = "account_locked"
	ErrorCodeInternalError      = "internal_error"
)
