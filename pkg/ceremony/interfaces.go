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
	"context"
)

// IdentityStore is the interface applications implement for identity
// persistence. Identities are created by the login gate (out of this
// package's scope) and are never deleted by the ceremony core.
type IdentityStore interface {
	// Get retrieves an identity by its user key.
	// Returns ErrUnknownIdentity if the identity does not exist.
	Get(ctx context.Context, key string) (*Identity, error)

	// GetByHandle retrieves an identity by its WebAuthn user handle.
	// Returns ErrUnknownIdentity if the identity does not exist.
	GetByHandle(ctx context.Context, handle []byte) (*Identity, error)

	// Create creates a new identity with the given key and display name.
	// Returns ErrIdentityExists if the key is already taken.
	Create(ctx context.Context, key, name string) (*Identity, error)
}

// CredentialStore manages registered authenticator records. Records are
// created on successful registration, have only their signature counter
// mutated afterwards, and are never removed by the ceremony core.
type CredentialStore interface {
	// ListAuthenticators returns the identity's records in registration
	// order. An identity with no records yields an empty slice, not an error.
	ListAuthenticators(ctx context.Context, identityKey string) ([]*AuthenticatorRecord, error)

	// FindByCredentialID retrieves a record by exact byte equality on the
	// credential ID. Returns ErrCredentialNotFound if absent.
	FindByCredentialID(ctx context.Context, identityKey string, credID []byte) (*AuthenticatorRecord, error)

	// InsertIfAbsent stores a new record. Inserting a credential ID already
	// registered to the same identity is a no-op returning false; a
	// credential ID registered to a different identity returns
	// ErrCredentialBound.
	InsertIfAbsent(ctx context.Context, identityKey string, rec *AuthenticatorRecord) (bool, error)

	// AdvanceCounter commits a new signature counter for the record. The
	// new value must exceed the stored one, except that zero is accepted
	// while the stored counter is also zero (authenticators that never
	// increment). Any other non-increase returns ErrReplayDetected. The
	// prior-value check and the commit are atomic with respect to
	// concurrent advances on the same record.
	AdvanceCounter(ctx context.Context, identityKey string, credID []byte, newCounter uint32) error
}

// LockoutPolicy tracks consecutive authentication failures per identity.
// Implemented by pkg/lockout; registration ceremonies never consult it.
type LockoutPolicy interface {
	// RecordFailure increments the failure count and returns the new count.
	// Failures older than the inactivity window decay to zero first.
	RecordFailure(identityKey string) int

	// Reset zeroes the failure count. Called on successful authentication.
	Reset(identityKey string)

	// IsLocked reports whether the identity has reached the lockout
	// threshold within the inactivity window.
	IsLocked(identityKey string) bool

	// Threshold returns the failure count at which the identity locks.
	Threshold() int
}

// TokenGenerator is an optional interface for minting the opaque success
// token returned after a verified authentication. If not provided, the
// service returns the base64-encoded user handle.
type TokenGenerator interface {
	// GenerateToken creates a token for the verified identity.
	GenerateToken(ctx context.Context, identity *Identity) (string, error)
}
