// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"sync"
	"time"
)

// ttlCache is a bounded map whose entries expire a fixed duration
// after insertion. When full, expired entries are evicted first; if
// none have expired the oldest entry goes.
type ttlCache[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]cacheEntry[V]
}

type cacheEntry[V any] struct {
	value    V
	inserted time.Time
}

func newTTLCache[V any](ttl time.Duration, maxEntries int) *ttlCache[V] {
	return &ttlCache[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]cacheEntry[V]),
	}
}

func (c *ttlCache[V]) get(key string, now time.Time) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || now.Sub(entry.inserted) >= c.ttl {
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[V]) put(key string, value V, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = cacheEntry[V]{value: value, inserted: now}
}

func (c *ttlCache[V]) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if now.Sub(entry.inserted) >= c.ttl {
			delete(c.entries, key)
			continue
		}
		if oldestKey == "" || entry.inserted.Before(oldest) {
			oldestKey, oldest = key, entry.inserted
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ttlCache[V]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
