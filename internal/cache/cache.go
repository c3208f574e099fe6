// SPDX-License-Identifier: MIT

// Package cache provides short-lived byte caching for rendered responses
// and camera snapshots, with in-memory and Redis backends.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores opaque payloads under string keys with a per-entry TTL.
type Cache interface {
	// Get returns the payload for key. ok is false when the key is
	// missing or expired.
	Get(ctx context.Context, key string) (payload []byte, ok bool)
	// Set stores payload under key for ttl.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)
	// Delete removes key.
	Delete(ctx context.Context, key string)
	// Stats returns counters since startup.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
	Size      int
}

type entry struct {
	payload []byte
	expires time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expires)
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   Stats
	stop    chan struct{}
	once    sync.Once
}

// NewMemory creates an in-memory cache. A background janitor evicts expired
// entries every cleanupInterval; pass 0 to disable it.
func NewMemory(cleanupInterval time.Duration) *memoryCache {
	c := &memoryCache{
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.expired(time.Now()) {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.payload, true
}

func (c *memoryCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{payload: payload, expires: time.Now().Add(ttl)}
	c.stats.Sets++
}

func (c *memoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.Size = len(c.entries)
	return stats
}

func (c *memoryCache) deleteExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
}

// Close stops the janitor goroutine.
func (c *memoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *memoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

type noopCache struct{}

// NewNoop returns a cache that stores nothing, for deployments that disable
// response caching.
func NewNoop() Cache { return noopCache{} }

func (noopCache) Get(context.Context, string) ([]byte, bool)            { return nil, false }
func (noopCache) Set(context.Context, string, []byte, time.Duration)    {}
func (noopCache) Delete(context.Context, string)                        {}
func (noopCache) Stats() Stats                                          { return Stats{} }
