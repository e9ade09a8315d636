// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache provides the TTL cache the relayer keeps attestations in,
// so re-relays of the same message within the freshness window reuse the
// signatures instead of re-signing.
package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value     V
	createdAt time.Time
}

// TTLCache caches fetched values per key for a fixed freshness window.
// Concurrent fetches of the same key are deduplicated through singleflight.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	group   singleflight.Group
}

// NewTTLCache creates a cache whose entries stay fresh for ttl.
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
	}
}

// Get returns the cached value for key while it is fresh, fetching and
// caching it otherwise. Fetch errors are not cached.
func (c *TTLCache[K, V]) Get(key K, fetch func(K) (V, error)) (V, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(e.createdAt) < c.ttl {
		return e.value, nil
	}

	v, err, _ := c.group.Do(keyString(key), func() (any, error) {
		value, err := fetch(key)
		if err != nil {
			return *new(V), err
		}
		c.mu.Lock()
		c.entries[key] = entry[V]{value: value, createdAt: time.Now()}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return *new(V), err
	}
	return v.(V), nil
}

// Invalidate drops the cached value for key.
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// keyString admits both fmt.Stringer keys and primitives.
func keyString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
