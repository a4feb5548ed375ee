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
	"log/slog"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// challengeKey identifies a pending ceremony. An identity holds at most one
// pending challenge per ceremony kind; issuing another replaces it.
type challengeKey struct {
	identityKey string
	kind        Kind
}

type challengeEntry struct {
	session  *webauthn.SessionData
	issuedAt time.Time
}

// ChallengeManager tracks pending ceremony challenges and enforces
// single use. Expired entries are reaped by a background sweeper.
type ChallengeManager struct {
	mu      sync.Mutex
	pending map[challengeKey]*challengeEntry

	ttl    time.Duration
	logger *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewChallengeManager creates a challenge manager with the given entry TTL
// and starts its sweep worker. Call Stop to release the worker.
func NewChallengeManager(ttl time.Duration, logger *slog.Logger) *ChallengeManager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &ChallengeManager{
		pending: make(map[challengeKey]*challengeEntry),
		ttl:     ttl,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	go m.sweepWorker()
	return m
}

// Issue records a pending challenge for the identity and ceremony kind. Any
// prior pending challenge for the same pair is discarded, so only the most
// recently issued challenge can complete.
func (m *ChallengeManager) Issue(identityKey string, kind Kind, session *webauthn.SessionData) {
	key := challengeKey{identityKey: identityKey, kind: kind}

	m.mu.Lock()
	if _, exists := m.pending[key]; exists {
		m.logger.Debug("replacing pending challenge",
			"identity", identityKey,
			"kind", string(kind))
	}
	m.pending[key] = &challengeEntry{
		session:  session,
		issuedAt: time.Now(),
	}
	m.mu.Unlock()
}

// Consume retrieves and removes the pending challenge for the identity and
// ceremony kind. The entry is removed no matter the outcome: a mismatched or
// expired presentation still burns the challenge, so it cannot be retried.
//
// presented is the base64url challenge echoed in the client's response.
func (m *ChallengeManager) Consume(identityKey string, kind Kind, presented string) (*webauthn.SessionData, error) {
	key := challengeKey{identityKey: identityKey, kind: kind}

	m.mu.Lock()
	entry, ok := m.pending[key]
	if ok {
		delete(m.pending, key)
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrNoActiveChallenge
	}
	if time.Since(entry.issuedAt) > m.ttl {
		return nil, ErrChallengeExpired
	}
	if entry.session.Challenge != presented {
		return nil, ErrChallengeMismatch
	}
	return entry.session, nil
}

// Pending returns the number of outstanding challenges.
func (m *ChallengeManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Stop terminates the sweep worker. Safe to call more than once.
func (m *ChallengeManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

func (m *ChallengeManager) sweepWorker() {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

// sweep drops entries whose TTL has elapsed.
func (m *ChallengeManager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.pending {
		if time.Since(entry.issuedAt) > m.ttl {
			delete(m.pending, key)
			m.logger.Debug("expired pending challenge",
				"identity", key.identityKey,
				"kind", string(key.kind))
		}
	}
}
