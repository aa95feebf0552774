// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mpkcache

import (
	"sync"
	"time"

	"github.com/nullspace-chat/core/lib/clock"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/serverapi"
)

// TTL is how long a fetched medium-key set remains usable without a
// re-fetch, matching the ≤1 hour cache window the specification
// requires between publish and lookup.
const TTL = time.Hour

type entry struct {
	keys      []serverapi.SignedMediumPK
	expiresAt time.Time
}

// Cache holds recently fetched medium-key sets keyed by username. The
// zero value is not usable; construct with New.
type Cache struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]entry
}

// New returns an empty Cache that uses c to read the current time.
func New(c clock.Clock) *Cache {
	return &Cache{clock: c, entries: make(map[string]entry)}
}

// Get returns the cached medium keys for username, if present and not
// yet expired.
func (c *Cache) Get(username ref.Username) ([]serverapi.SignedMediumPK, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[username.String()]
	if !ok || !c.clock.Now().Before(e.expiresAt) {
		return nil, false
	}
	return e.keys, true
}

// Put stores keys for username, valid for TTL from now.
func (c *Cache) Put(username ref.Username, keys []serverapi.SignedMediumPK) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[username.String()] = entry{
		keys:      keys,
		expiresAt: c.clock.Now().Add(TTL),
	}
}

// Invalidate drops any cached entry for username, so the next Get for
// it misses.
func (c *Cache) Invalidate(username ref.Username) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, username.String())
}
