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
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChallengeManager(t *testing.T, ttl time.Duration) *ChallengeManager {
	t.Helper()
	m := NewChallengeManager(ttl, nil)
	t.Cleanup(m.Stop)
	return m
}

func sessionWithChallenge(challenge string) *webauthn.SessionData {
	return &webauthn.SessionData{Challenge: challenge}
}

func TestChallengeManager_IssueConsume(t *testing.T) {
	m := newTestChallengeManager(t, time.Minute)

	m.Issue("alice", KindRegistration, sessionWithChallenge("chal-1"))
	assert.Equal(t, 1, m.Pending())

	session, err := m.Consume("alice", KindRegistration, "chal-1")
	require.NoError(t, err)
	assert.Equal(t, "chal-1", session.Challenge)
	assert.Equal(t, 0, m.Pending())
}

func TestChallengeManager_ConsumeIsOneShot(t *testing.T) {
	m := newTestChallengeManager(t, time.Minute)

	m.Issue("alice", KindAuthentication, sessionWithChallenge("chal-1"))

	_, err := m.Consume("alice", KindAuthentication, "chal-1")
	require.NoError(t, err)

	_, err = m.Consume("alice", KindAuthentication, "chal-1")
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func TestChallengeManager_MismatchBurnsChallenge(t *testing.T) {
	m := newTestChallengeManager(t, time.Minute)

	m.Issue("alice", KindAuthentication, sessionWithChallenge("chal-1"))

	_, err := m.Consume("alice", KindAuthentication, "wrong")
	assert.ErrorIs(t, err, ErrChallengeMismatch)

	// The mismatch already consumed the entry.
	_, err = m.Consume("alice", KindAuthentication, "chal-1")
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func TestChallengeManager_ReissueReplaces(t *testing.T) {
	m := newTestChallengeManager(t, time.Minute)

	m.Issue("alice", KindRegistration, sessionWithChallenge("chal-1"))
	m.Issue("alice", KindRegistration, sessionWithChallenge("chal-2"))
	assert.Equal(t, 1, m.Pending())

	// The superseded challenge no longer matches.
	_, err := m.Consume("alice", KindRegistration, "chal-1")
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestChallengeManager_KindsAreIndependent(t *testing.T) {
	m := newTestChallengeManager(t, time.Minute)

	m.Issue("alice", KindRegistration, sessionWithChallenge("reg-chal"))
	m.Issue("alice", KindAuthentication, sessionWithChallenge("auth-chal"))
	assert.Equal(t, 2, m.Pending())

	_, err := m.Consume("alice", KindRegistration, "reg-chal")
	require.NoError(t, err)

	session, err := m.Consume("alice", KindAuthentication, "auth-chal")
	require.NoError(t, err)
	assert.Equal(t, "auth-chal", session.Challenge)
}

func TestChallengeManager_Expiry(t *testing.T) {
	m := newTestChallengeManager(t, 10*time.Millisecond)

	m.Issue("alice", KindAuthentication, sessionWithChallenge("chal-1"))
	time.Sleep(30 * time.Millisecond)

	_, err := m.Consume("alice", KindAuthentication, "chal-1")
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestChallengeManager_Sweep(t *testing.T) {
	m := newTestChallengeManager(t, 10*time.Millisecond)

	m.Issue("alice", KindAuthentication, sessionWithChallenge("chal-1"))
	m.Issue("bob", KindRegistration, sessionWithChallenge("chal-2"))
	assert.Equal(t, 2, m.Pending())

	assert.Eventually(t, func() bool {
		return m.Pending() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestChallengeManager_ConsumeUnknownIdentity(t *testing.T) {
	m := newTestChallengeManager(t, time.Minute)

	_, err := m.Consume("nobody", KindRegistration, "chal-1")
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}
