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
	"bytes"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// Kind identifies which of the two ceremonies a challenge belongs to.
// Registration and authentication challenges for the same identity are
// tracked independently.
type Kind string

const (
	// KindRegistration is the new-authenticator registration ceremony.
	KindRegistration Kind = "registration"

	// KindAuthentication is the assertion ceremony against a registered
	// authenticator.
	KindAuthentication Kind = "authentication"
)

// Identity is a registered user of the relying party, keyed by a stable
// user key (typically an email address). The WebAuthn user handle is a
// random UUID assigned when the identity is first created.
//
// Identity implements webauthn.User so it can be handed to the verifier
// directly.
type Identity struct {
	// Key is the stable user key, unique per user.
	Key string `json:"key"`

	// Handle is the WebAuthn user handle (user ID) for this identity.
	Handle []byte `json:"handle"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// CreatedAt is when the identity was first seen.
	CreatedAt time.Time `json:"created_at"`

	// records are the registered authenticators, in registration order.
	records []*AuthenticatorRecord
}

// NewIdentity creates an identity with a freshly assigned user handle.
func NewIdentity(key, name string) *Identity {
	if name == "" {
		name = key
	}
	id := uuid.New()
	return &Identity{
		Key:       key,
		Handle:    id[:],
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// WebAuthnID returns the identity's user handle.
func (i *Identity) WebAuthnID() []byte {
	return i.Handle
}

// WebAuthnName returns the identity's user key.
func (i *Identity) WebAuthnName() string {
	return i.Key
}

// WebAuthnDisplayName returns the identity's display name.
func (i *Identity) WebAuthnDisplayName() string {
	if i.Name == "" {
		return i.Key
	}
	return i.Name
}

// WebAuthnCredentials returns the registered authenticators in the
// go-webauthn representation.
func (i *Identity) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(i.records))
	for n, rec := range i.records {
		creds[n] = rec.ToWebAuthn()
	}
	return creds
}

// Records returns the identity's registered authenticators.
func (i *Identity) Records() []*AuthenticatorRecord {
	return i.records
}

// addRecord appends a record; used by the credential store under its lock.
func (i *Identity) addRecord(rec *AuthenticatorRecord) {
	i.records = append(i.records, rec)
}

// snapshot returns a copy of the identity with copied records. The store
// takes snapshots under its shard lock, so verifier reads through the copy
// never race with counter advances on the stored records.
func (i *Identity) snapshot() *Identity {
	c := *i
	c.records = make([]*AuthenticatorRecord, len(i.records))
	for n, rec := range i.records {
		c.records[n] = rec.clone()
	}
	return &c
}

// findRecord returns the record with the given credential ID, or nil.
func (i *Identity) findRecord(credID []byte) *AuthenticatorRecord {
	for _, rec := range i.records {
		if bytes.Equal(rec.ID, credID) {
			return rec
		}
	}
	return nil
}

// AuthenticatorRecord is one registered credential stored by the relying
// party. The credential ID and public key are opaque to this package; they
// are compared by exact byte equality and passed through to the verifier.
type AuthenticatorRecord struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte `json:"id"`

	// IdentityKey is the user key this credential belongs to.
	IdentityKey string `json:"identity_key"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used.
	AttestationType string `json:"attestation_type"`

	// Transport lists the transports supported by the authenticator.
	Transport []protocol.AuthenticatorTransport `json:"transport,omitempty"`

	// Flags contains authenticator capability flags.
	Flags RecordFlags `json:"flags"`

	// SignCount is the signature counter for clone detection. It is the
	// only field mutated after registration, via CredentialStore.AdvanceCounter.
	SignCount uint32 `json:"sign_count"`

	// AAGUID is the authenticator's model identifier.
	AAGUID []byte `json:"aaguid"`

	// CloneWarning records that the verifier flagged a possible clone.
	CloneWarning bool `json:"clone_warning"`

	// Attachment indicates how the authenticator is attached.
	Attachment protocol.AuthenticatorAttachment `json:"attachment,omitempty"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// RecordFlags contains authenticator capability flags.
type RecordFlags struct {
	// UserPresent indicates the user was present during the operation.
	UserPresent bool `json:"user_present"`

	// UserVerified indicates the user was verified (e.g., biometric, PIN).
	UserVerified bool `json:"user_verified"`

	// BackupEligible indicates the credential can be backed up.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState indicates the credential is currently backed up.
	BackupState bool `json:"backup_state"`
}

// clone returns a copy of the record. The byte slices are written once at
// registration and never mutated, so the copy shares them.
func (r *AuthenticatorRecord) clone() *AuthenticatorRecord {
	c := *r
	return &c
}

// ToWebAuthn converts a record to the go-webauthn library's Credential type.
func (r *AuthenticatorRecord) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              r.ID,
		PublicKey:       r.PublicKey,
		AttestationType: r.AttestationType,
		Transport:       r.Transport,
		Flags: webauthn.CredentialFlags{
			UserPresent:    r.Flags.UserPresent,
			UserVerified:   r.Flags.UserVerified,
			BackupEligible: r.Flags.BackupEligible,
			BackupState:    r.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:       r.AAGUID,
			SignCount:    r.SignCount,
			CloneWarning: r.CloneWarning,
			Attachment:   r.Attachment,
		},
	}
}

// FromWebAuthnCredential creates an AuthenticatorRecord from the credential
// the verifier produced at the end of a registration ceremony.
func FromWebAuthnCredential(identityKey string, wc *webauthn.Credential) *AuthenticatorRecord {
	return &AuthenticatorRecord{
		ID:              wc.ID,
		IdentityKey:     identityKey,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transport:       wc.Transport,
		Flags: RecordFlags{
			UserPresent:    wc.Flags.UserPresent,
			UserVerified:   wc.Flags.UserVerified,
			BackupEligible: wc.Flags.BackupEligible,
			BackupState:    wc.Flags.BackupState,
		},
		SignCount:    wc.Authenticator.SignCount,
		AAGUID:       wc.Authenticator.AAGUID,
		CloneWarning: wc.Authenticator.CloneWarning,
		Attachment:   wc.Authenticator.Attachment,
		CreatedAt:    time.Now().UTC(),
	}
}

// Outcome is the terminal state of a completed ceremony.
type Outcome string

const (
	// OutcomeVerified means the ceremony completed successfully and its
	// state changes were committed.
	OutcomeVerified Outcome = "verified"

	// OutcomeRejected means the challenge or verification check failed.
	OutcomeRejected Outcome = "rejected"

	// OutcomeLocked means the failure pushed the identity over the lockout
	// threshold. Callers must render a lockout affordance, not a retry.
	OutcomeLocked Outcome = "locked"
)
