// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store. Identities are copied
// on the way in and out, so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]*Identity // normalized email -> Identity
	byID    map[string]string    // ID -> normalized email
}

// NewMemoryStore creates a new in-memory identity store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEmail: make(map[string]*Identity),
		byID:    make(map[string]string),
	}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, exists := s.byEmail[NormalizeEmail(email)]
	if !exists {
		return nil, ErrIdentityNotFound
	}
	return identity.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := NormalizeEmail(identity.Email)
	if _, exists := s.byEmail[key]; exists {
		return ErrIdentityExists
	}
	if _, exists := s.byID[identity.ID]; exists {
		return ErrIdentityExists
	}

	stored := identity.Clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.byEmail[key] = stored
	s.byID[stored.ID] = key
	identity.CreatedAt, identity.UpdatedAt = now, now
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, exists := s.byID[id]
	if !exists {
		return nil, ErrIdentityNotFound
	}
	return s.byEmail[key].Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldKey, exists := s.byID[id]
	if !exists {
		return ErrIdentityNotFound
	}
	existing := s.byEmail[oldKey]

	key := NormalizeEmail(identity.Email)
	if _, taken := s.byEmail[key]; taken && key != oldKey {
		return ErrIdentityExists
	}
	if _, taken := s.byID[identity.ID]; taken && identity.ID != id {
		return ErrIdentityExists
	}

	stored := identity.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	delete(s.byEmail, oldKey)
	delete(s.byID, id)
	s.byEmail[key] = stored
	s.byID[stored.ID] = key
	identity.CreatedAt, identity.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identities := make([]*Identity, 0, len(s.byEmail))
	for _, identity := range s.byEmail {
		identities = append(identities, identity.Clone())
	}
	sort.Slice(identities, func(i, j int) bool { return identities[i].ID < identities[j].ID })
	return identities, nil
}
