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
	"encoding/hex"
	"sync"
	"time"
)

// storeShardCount is the number of identity shards. Mutations are
// serialized per shard, so operations for distinct identities almost
// never contend on one lock.
const storeShardCount = 16

// fnv1a hashes an identity key for shard selection.
func fnv1a(key string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return h
}

// storeShard holds the identities whose keys hash to this shard.
type storeShard struct {
	mu         sync.RWMutex
	identities map[string]*Identity
}

// MemoryStore is an in-memory implementation of IdentityStore and
// CredentialStore whose lifetime matches the process. Credential identifiers
// are unique across the whole store, not just per identity.
type MemoryStore struct {
	shards [storeShardCount]storeShard

	// indexMu guards the global credential-ID and user-handle indexes.
	// Lock ordering: shard lock first, then indexMu.
	indexMu     sync.RWMutex
	credOwner   map[string]string // hex credential ID -> identity key
	handleIndex map[string]string // hex user handle -> identity key
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		credOwner:   make(map[string]string),
		handleIndex: make(map[string]string),
	}
	for i := range s.shards {
		s.shards[i].identities = make(map[string]*Identity)
	}
	return s
}

func (s *MemoryStore) shard(key string) *storeShard {
	return &s.shards[fnv1a(key)%storeShardCount]
}

// Get retrieves an identity by its user key. The returned identity is a
// snapshot taken under the shard lock; later record mutations are not
// visible through it.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Identity, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	identity, ok := sh.identities[key]
	if !ok {
		return nil, ErrUnknownIdentity
	}
	return identity.snapshot(), nil
}

// GetByHandle retrieves an identity by its WebAuthn user handle.
func (s *MemoryStore) GetByHandle(ctx context.Context, handle []byte) (*Identity, error) {
	s.indexMu.RLock()
	key, ok := s.handleIndex[hex.EncodeToString(handle)]
	s.indexMu.RUnlock()
	if !ok {
		return nil, ErrUnknownIdentity
	}
	return s.Get(ctx, key)
}

// Create creates a new identity with the given key and display name.
func (s *MemoryStore) Create(ctx context.Context, key, name string) (*Identity, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.identities[key]; ok {
		return nil, ErrIdentityExists
	}

	identity := NewIdentity(key, name)
	sh.identities[key] = identity

	s.indexMu.Lock()
	s.handleIndex[hex.EncodeToString(identity.Handle)] = key
	s.indexMu.Unlock()

	return identity.snapshot(), nil
}

// ListAuthenticators returns the identity's records in registration order.
func (s *MemoryStore) ListAuthenticators(ctx context.Context, identityKey string) ([]*AuthenticatorRecord, error) {
	sh := s.shard(identityKey)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	identity, ok := sh.identities[identityKey]
	if !ok {
		return nil, ErrUnknownIdentity
	}

	// Copies, so callers never share mutable state with the store.
	records := make([]*AuthenticatorRecord, len(identity.records))
	for n, rec := range identity.records {
		records[n] = rec.clone()
	}
	return records, nil
}

// FindByCredentialID retrieves a record by exact byte equality.
func (s *MemoryStore) FindByCredentialID(ctx context.Context, identityKey string, credID []byte) (*AuthenticatorRecord, error) {
	sh := s.shard(identityKey)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	identity, ok := sh.identities[identityKey]
	if !ok {
		return nil, ErrUnknownIdentity
	}

	rec := identity.findRecord(credID)
	if rec == nil {
		return nil, ErrCredentialNotFound
	}
	return rec.clone(), nil
}

// InsertIfAbsent stores a new record, enforcing store-wide credential-ID
// uniqueness. Re-registering the same credential for the same identity is a
// no-op; for a different identity it fails with ErrCredentialBound.
func (s *MemoryStore) InsertIfAbsent(ctx context.Context, identityKey string, rec *AuthenticatorRecord) (bool, error) {
	sh := s.shard(identityKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	identity, ok := sh.identities[identityKey]
	if !ok {
		return false, ErrUnknownIdentity
	}

	credKey := hex.EncodeToString(rec.ID)

	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if owner, exists := s.credOwner[credKey]; exists {
		if owner == identityKey {
			return false, nil
		}
		return false, ErrCredentialBound
	}

	rec.IdentityKey = identityKey
	identity.addRecord(rec)
	s.credOwner[credKey] = identityKey

	return true, nil
}

// AdvanceCounter commits a new signature counter. The prior-value check and
// the commit happen under the shard lock, so two completions racing on the
// same record cannot both pass with the same prior value.
func (s *MemoryStore) AdvanceCounter(ctx context.Context, identityKey string, credID []byte, newCounter uint32) error {
	sh := s.shard(identityKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	identity, ok := sh.identities[identityKey]
	if !ok {
		return ErrUnknownIdentity
	}

	rec := identity.findRecord(credID)
	if rec == nil {
		return ErrCredentialNotFound
	}

	// Authenticators that never increment report zero forever; accept a
	// zero counter only while the stored one is still zero.
	if newCounter == 0 && rec.SignCount == 0 {
		rec.LastUsedAt = time.Now().UTC()
		return nil
	}
	if newCounter <= rec.SignCount {
		return ErrReplayDetected
	}

	rec.SignCount = newCounter
	rec.LastUsedAt = time.Now().UTC()
	return nil
}

// IdentityCount returns the number of identities in the store.
func (s *MemoryStore) IdentityCount() int {
	count := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		count += len(s.shards[i].identities)
		s.shards[i].mu.RUnlock()
	}
	return count
}

// CredentialCount returns the total number of records in the store.
func (s *MemoryStore) CredentialCount() int {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return len(s.credOwner)
}
