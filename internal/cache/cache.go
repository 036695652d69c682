// Package cache provides a TTL-bounded in-memory cache.
package cache

import (
	"errors"
	"sync"
	"time"
)

// ErrEmptyKey is returned when a cache key is empty
var ErrEmptyKey = errors.New("cache key cannot be empty")

const defaultCleanupInterval = 1 * time.Minute

// TTLCache caches values for a fixed TTL. A background goroutine drops
// expired entries until Close is called.
type TTLCache[V any] struct {
	entries map[string]*Entry[V]
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	done    chan struct{} // Signal to stop cleanup goroutine
	once    sync.Once
}

// Entry is a cached value with its expiration metadata
type Entry[V any] struct {
	Value     V
	CachedAt  time.Time
	ExpiresAt time.Time
}

// New creates a cache with the given TTL and starts its cleanup goroutine
func New[V any](ttl time.Duration) *TTLCache[V] {
	return newWithInterval[V](ttl, defaultCleanupInterval)
}

func newWithInterval[V any](ttl, interval time.Duration) *TTLCache[V] {
	c := &TTLCache[V]{
		entries: make(map[string]*Entry[V]),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop(interval)
	return c
}

// Store caches a value under key with the configured TTL
func (c *TTLCache[V]) Store(key string, value V) error {
	if key == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &Entry[V]{
		Value:     value,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	return nil
}

// Get returns the value under key. ok is false when the key is missing or
// the entry has expired.
func (c *TTLCache[V]) Get(key string) (value V, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || c.now().After(entry.ExpiresAt) {
		return value, false
	}
	return entry.Value, true
}

// Delete removes key from the cache
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the number of entries, including expired ones not yet cleaned
func (c *TTLCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry[V])
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *TTLCache[V]) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *TTLCache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

// cleanup removes expired entries
func (c *TTLCache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}
