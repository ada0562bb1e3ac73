// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import "sync"

// Collection is the process-wide set of identities that signed in since
// start-up, keyed by ID. It mirrors what the host keeps loaded in memory.
type Collection struct {
	mu   sync.RWMutex
	byID map[string]*Identity
}

func NewCollection() *Collection {
	return &Collection{byID: make(map[string]*Identity)}
}

// Add registers identity, replacing any entry with the same ID.
func (c *Collection) Add(identity *Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[identity.ID] = identity.Clone()
}

func (c *Collection) Get(id string) (*Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	identity, ok := c.byID[id]
	return identity.Clone(), ok
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
