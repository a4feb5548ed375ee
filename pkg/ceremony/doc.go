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

// Package ceremony implements WebAuthn registration and authentication
// ceremonies over github.com/go-webauthn/webauthn.
//
// The Service orchestrates the begin/finish flow of both ceremonies. Each
// begin operation mints a challenge held by the ChallengeManager, keyed by
// identity and ceremony kind; issuing a new challenge for the same pair
// replaces the old one, and finishing a ceremony consumes the challenge
// whether or not verification succeeds, so a challenge is never usable
// twice.
//
// Credentials are tracked as AuthenticatorRecords behind the
// CredentialStore interface. The store enforces credential-ID uniqueness
// across identities and advances each record's signature counter with a
// strictly-greater check, rejecting assertions whose counter stalls or
// regresses.
//
// Failed authentication attempts are charged to a LockoutPolicy. An
// identity that accumulates enough failures is refused at BeginLogin before
// any challenge is minted; a verified assertion clears its slate.
//
// Example usage:
//
//	store := ceremony.NewMemoryStore()
//	challenges := ceremony.NewChallengeManager(5*time.Minute, logger)
//	defer challenges.Stop()
//
//	svc, err := ceremony.NewService(ceremony.ServiceParams{
//		Config: &ceremony.Config{
//			RPID:          "example.com",
//			RPDisplayName: "Example",
//			RPOrigins:     []string{"https://example.com"},
//		},
//		Identities:  store,
//		Credentials: store,
//		Challenges:  challenges,
//		Lockout:     lockout.NewTracker(lockout.Config{}, logger),
//		Logger:      logger,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	creation, err := svc.BeginRegistration(ctx, "alice@example.com")
package ceremony
