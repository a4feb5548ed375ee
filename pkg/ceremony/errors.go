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

package ceremony

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations.
var (
	// ErrUnknownIdentity is returned when the identity has never been seen.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrIdentityExists is returned when creating an identity that already exists.
	ErrIdentityExists = errors.New("identity already exists")

	// ErrNoRegisteredAuthenticator is returned when authentication is
	// attempted for an identity with no registered credentials.
	ErrNoRegisteredAuthenticator = errors.New("no registered authenticator")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialBound is returned when a credential ID is already
	// registered under a different identity.
	ErrCredentialBound = errors.New("credential bound to another identity")

	// ErrNoActiveChallenge is returned when completing a ceremony with no
	// outstanding challenge for the (identity, kind) pair.
	ErrNoActiveChallenge = errors.New("no active challenge")

	// ErrChallengeMismatch is returned when the presented challenge does not
	// match the issued one. The stored challenge is invalidated regardless.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrChallengeExpired is returned when the issued challenge has aged out.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrVerificationFailed is returned when the verifier rejects the
	// authenticator response, or fails while checking it.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrReplayDetected is returned when a signature counter fails to
	// advance. Treated as a verification failure by the orchestrator.
	ErrReplayDetected = errors.New("signature counter replay detected")

	// ErrAccountLocked is returned when the identity is locked out after
	// repeated authentication failures.
	ErrAccountLocked = errors.New("account locked")

	// ErrInvalidRequest is returned when the request is malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("ceremony service not configured")
)

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsUnknownIdentity returns true if the error indicates an unknown identity.
func IsUnknownIdentity(err error) bool {
	return errors.Is(err, ErrUnknownIdentity)
}

// IsChallengeInvalid returns true for any of the challenge-consumption
// failures. Callers surface these as a generic ceremony rejection and log
// the specific subtype.
func IsChallengeInvalid(err error) bool {
	return errors.Is(err, ErrNoActiveChallenge) ||
		errors.Is(err, ErrChallengeMismatch) ||
		errors.Is(err, ErrChallengeExpired)
}

// IsVerificationFailed returns true if the error indicates verification failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsReplayDetected returns true if the error indicates a counter replay.
func IsReplayDetected(err error) bool {
	return errors.Is(err, ErrReplayDetected)
}

// IsAccountLocked returns true if the error indicates the identity is locked.
func IsAccountLocked(err error) bool {
	return errors.Is(err, ErrAccountLocked)
}
