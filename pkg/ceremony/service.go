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
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/jeremyhahn/go-bioauth/pkg/metrics"
)

// ServiceParams holds the dependencies required to construct a Service.
type ServiceParams struct {
	Config      *Config
	Identities  IdentityStore
	Credentials CredentialStore
	Challenges  *ChallengeManager
	Lockout     LockoutPolicy

	// Tokens is optional. Without one, FinishLogin returns the identity's
	// base64url-encoded user handle as the session token.
	Tokens TokenGenerator

	Logger *slog.Logger
}

// Service orchestrates WebAuthn registration and authentication ceremonies.
// It owns the begin/finish state flow; challenge bookkeeping, credential
// persistence and lockout accounting live behind the injected dependencies.
type Service struct {
	config      *Config
	webauthn    *webauthn.WebAuthn
	identities  IdentityStore
	credentials CredentialStore
	challenges  *ChallengeManager
	lockout     LockoutPolicy
	tokens      TokenGenerator
	logger      *slog.Logger
}

// LoginResult is the outcome of a successful authentication ceremony.
type LoginResult struct {
	Identity *Identity
	Record   *AuthenticatorRecord
	Token    string
}

// NewService creates a ceremony service from the given parameters.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, NewError("NewService", fmt.Errorf("%w: config is required", ErrNotConfigured))
	}
	if params.Identities == nil {
		return nil, NewError("NewService", fmt.Errorf("%w: identity store is required", ErrNotConfigured))
	}
	if params.Credentials == nil {
		return nil, NewError("NewService", fmt.Errorf("%w: credential store is required", ErrNotConfigured))
	}
	if params.Challenges == nil {
		return nil, NewError("NewService", fmt.Errorf("%w: challenge manager is required", ErrNotConfigured))
	}
	if params.Lockout == nil {
		return nil, NewError("NewService", fmt.Errorf("%w: lockout policy is required", ErrNotConfigured))
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, NewError("NewService", fmt.Errorf("%w: %v", ErrNotConfigured, err))
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, NewError("NewService", fmt.Errorf("%w: %v", ErrNotConfigured, err))
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config:      params.Config,
		webauthn:    wa,
		identities:  params.Identities,
		credentials: params.Credentials,
		challenges:  params.Challenges,
		lockout:     params.Lockout,
		tokens:      params.Tokens,
		logger:      logger,
	}, nil
}

// EnsureIdentity returns the identity for key, creating it on first sight.
// The returned bool reports whether the identity was created by this call.
func (s *Service) EnsureIdentity(ctx context.Context, key, name string) (*Identity, bool, error) {
	identity, err := s.identities.Get(ctx, key)
	if err == nil {
		return identity, false, nil
	}
	if !errors.Is(err, ErrUnknownIdentity) {
		return nil, false, WrapError("EnsureIdentity", err)
	}

	identity, err = s.identities.Create(ctx, key, name)
	if err != nil {
		// Lost a create race; the winner's identity is the one to use.
		if errors.Is(err, ErrIdentityExists) {
			identity, err = s.identities.Get(ctx, key)
			if err == nil {
				return identity, false, nil
			}
		}
		return nil, false, WrapError("EnsureIdentity", err)
	}

	s.logger.Info("identity created", "identity", key)
	return identity, true, nil
}

// RegistrationStatus reports whether the identity has at least one
// registered authenticator.
func (s *Service) RegistrationStatus(ctx context.Context, identityKey string) (bool, error) {
	records, err := s.credentials.ListAuthenticators(ctx, identityKey)
	if err != nil {
		return false, WrapError("RegistrationStatus", err)
	}
	return len(records) > 0, nil
}

// BeginRegistration starts a registration ceremony for a known identity.
// Already-registered credentials are sent as exclusions so the browser will
// not re-register an authenticator the identity already holds.
func (s *Service) BeginRegistration(ctx context.Context, identityKey string) (*protocol.CredentialCreation, error) {
	identity, err := s.identities.Get(ctx, identityKey)
	if err != nil {
		return nil, WrapError("BeginRegistration", err)
	}

	records, err := s.credentials.ListAuthenticators(ctx, identityKey)
	if err != nil {
		return nil, WrapError("BeginRegistration", err)
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(records))
	for _, rec := range records {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: rec.ID,
			Transport:    rec.Transport,
		})
	}

	opts := []webauthn.RegistrationOption{
		webauthn.WithExclusions(exclusions),
		webauthn.WithConveyancePreference(protocol.ConveyancePreference(s.config.AttestationPreference)),
		webauthn.WithAuthenticatorSelection(s.authenticatorSelection()),
	}

	creation, session, err := s.webauthn.BeginRegistration(identity, opts...)
	if err != nil {
		return nil, NewError("BeginRegistration", fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}

	s.challenges.Issue(identityKey, KindRegistration, session)
	metrics.RecordChallengeIssued(metrics.CeremonyRegistration)

	s.logger.Debug("registration ceremony started",
		"identity", identityKey,
		"exclusions", len(exclusions))

	return creation, nil
}

// FinishRegistration completes a registration ceremony. The pending
// challenge is consumed before attestation is verified, so a failed
// attestation cannot be retried against the same challenge. Registration
// failures never count toward the lockout policy.
func (s *Service) FinishRegistration(ctx context.Context, identityKey string, parsed *protocol.ParsedCredentialCreationData) (*AuthenticatorRecord, error) {
	identity, err := s.identities.Get(ctx, identityKey)
	if err != nil {
		return nil, WrapError("FinishRegistration", err)
	}

	presented := string(parsed.Response.CollectedClientData.Challenge)
	session, err := s.challenges.Consume(identityKey, KindRegistration, presented)
	if err != nil {
		return nil, WrapError("FinishRegistration", err)
	}

	cred, err := s.webauthn.CreateCredential(identity, *session, parsed)
	if err != nil {
		s.logger.Warn("attestation verification failed",
			"identity", identityKey,
			"error", err)
		return nil, NewError("FinishRegistration", fmt.Errorf("%w: %v", ErrVerificationFailed, err))
	}

	rec := FromWebAuthnCredential(identityKey, cred)
	inserted, err := s.credentials.InsertIfAbsent(ctx, identityKey, rec)
	if err != nil {
		return nil, WrapError("FinishRegistration", err)
	}
	if !inserted {
		// Same credential re-registered by the same identity; keep the
		// original record.
		existing, err := s.credentials.FindByCredentialID(ctx, identityKey, rec.ID)
		if err != nil {
			return nil, WrapError("FinishRegistration", err)
		}
		return existing, nil
	}

	s.logger.Info("authenticator registered",
		"identity", identityKey,
		"credential_id", fmt.Sprintf("%x", rec.ID),
		"aaguid", fmt.Sprintf("%x", rec.AAGUID),
		"attestation", rec.AttestationType)

	return rec, nil
}

// BeginLogin starts an authentication ceremony. A locked identity is
// refused before any challenge is minted.
func (s *Service) BeginLogin(ctx context.Context, identityKey string) (*protocol.CredentialAssertion, error) {
	identity, err := s.identities.Get(ctx, identityKey)
	if err != nil {
		return nil, WrapError("BeginLogin", err)
	}

	if s.lockout.IsLocked(identityKey) {
		return nil, WrapError("BeginLogin", ErrAccountLocked)
	}

	records, err := s.credentials.ListAuthenticators(ctx, identityKey)
	if err != nil {
		return nil, WrapError("BeginLogin", err)
	}
	if len(records) == 0 {
		return nil, WrapError("BeginLogin", ErrNoRegisteredAuthenticator)
	}

	assertion, session, err := s.webauthn.BeginLogin(identity,
		webauthn.WithUserVerification(protocol.UserVerificationRequirement(s.config.UserVerification)))
	if err != nil {
		return nil, NewError("BeginLogin", fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}

	s.challenges.Issue(identityKey, KindAuthentication, session)
	metrics.RecordChallengeIssued(metrics.CeremonyAuthentication)

	s.logger.Debug("authentication ceremony started",
		"identity", identityKey,
		"allowed_credentials", len(records))

	return assertion, nil
}

// FinishLogin completes an authentication ceremony. The pending challenge
// is consumed first; after that, every failure on the credential itself
// (unknown credential, bad assertion, replayed counter) is charged to the
// lockout policy, and a success resets it.
func (s *Service) FinishLogin(ctx context.Context, identityKey string, parsed *protocol.ParsedCredentialAssertionData) (*LoginResult, error) {
	identity, err := s.identities.Get(ctx, identityKey)
	if err != nil {
		return nil, WrapError("FinishLogin", err)
	}

	if s.lockout.IsLocked(identityKey) {
		return nil, WrapError("FinishLogin", ErrAccountLocked)
	}

	presented := string(parsed.Response.CollectedClientData.Challenge)
	session, err := s.challenges.Consume(identityKey, KindAuthentication, presented)
	if err != nil {
		return nil, WrapError("FinishLogin", err)
	}

	rec, err := s.credentials.FindByCredentialID(ctx, identityKey, parsed.RawID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			s.logger.Warn("assertion for unknown credential",
				"identity", identityKey,
				"credential_id", fmt.Sprintf("%x", parsed.RawID))
			return nil, s.chargeFailure(identityKey, ErrVerificationFailed)
		}
		return nil, WrapError("FinishLogin", err)
	}

	// A present user handle must resolve to the identity that began the
	// ceremony; an assertion carrying another identity's handle is rejected
	// before the verifier runs.
	if handle := parsed.Response.UserHandle; len(handle) > 0 {
		owner, err := s.identities.GetByHandle(ctx, handle)
		if err != nil || owner.Key != identity.Key {
			s.logger.Warn("assertion user handle does not match identity",
				"identity", identityKey)
			return nil, s.chargeFailure(identityKey, ErrVerificationFailed)
		}
	}

	cred, err := s.webauthn.ValidateLogin(identity, *session, parsed)
	if err != nil {
		s.logger.Warn("assertion verification failed",
			"identity", identityKey,
			"error", err)
		return nil, s.chargeFailure(identityKey, ErrVerificationFailed)
	}

	if err := s.credentials.AdvanceCounter(ctx, identityKey, rec.ID, cred.Authenticator.SignCount); err != nil {
		if errors.Is(err, ErrReplayDetected) {
			s.logger.Warn("signature counter did not advance",
				"identity", identityKey,
				"credential_id", fmt.Sprintf("%x", rec.ID),
				"stored", rec.SignCount,
				"presented", cred.Authenticator.SignCount)
			return nil, s.chargeFailure(identityKey, ErrReplayDetected)
		}
		return nil, WrapError("FinishLogin", err)
	}

	s.lockout.Reset(identityKey)
	metrics.RecordLockoutEvent(metrics.EventReset)

	token, err := s.issueToken(ctx, identity)
	if err != nil {
		return nil, WrapError("FinishLogin", err)
	}

	s.logger.Info("authentication verified",
		"identity", identityKey,
		"credential_id", fmt.Sprintf("%x", rec.ID))

	return &LoginResult{
		Identity: identity,
		Record:   rec,
		Token:    token,
	}, nil
}

// chargeFailure records a failed attempt and maps the result to an error:
// the attempt that reaches the threshold, and every one after it, reports
// the account as locked.
func (s *Service) chargeFailure(identityKey string, base error) error {
	count := s.lockout.RecordFailure(identityKey)
	metrics.RecordLockoutEvent(metrics.EventFailure)
	if count >= s.lockout.Threshold() {
		if count == s.lockout.Threshold() {
			metrics.RecordLockoutEvent(metrics.EventLocked)
		}
		s.logger.Warn("identity locked",
			"identity", identityKey,
			"failures", count)
		return NewError("FinishLogin", ErrAccountLocked)
	}
	s.logger.Info("failed authentication attempt",
		"identity", identityKey,
		"failures", count,
		"threshold", s.lockout.Threshold())
	return NewError("FinishLogin", base)
}

func (s *Service) issueToken(ctx context.Context, identity *Identity) (string, error) {
	if s.tokens != nil {
		return s.tokens.GenerateToken(ctx, identity)
	}
	return base64.RawURLEncoding.EncodeToString(identity.Handle), nil
}

func (s *Service) authenticatorSelection() protocol.AuthenticatorSelection {
	selection := protocol.AuthenticatorSelection{
		UserVerification: protocol.UserVerificationRequirement(s.config.UserVerification),
	}
	if s.config.ResidentKeyRequirement != "" {
		selection.ResidentKey = protocol.ResidentKeyRequirement(s.config.ResidentKeyRequirement)
		if selection.ResidentKey == protocol.ResidentKeyRequirementRequired {
			selection.RequireResidentKey = protocol.ResidentKeyRequired()
		}
	}
	if s.config.AuthenticatorAttachment != "" {
		selection.AuthenticatorAttachment = protocol.AuthenticatorAttachment(s.config.AuthenticatorAttachment)
	}
	return selection
}
