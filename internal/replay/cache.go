// ABOUTME: Thread-safe TTL cache of values keyed by issued response id.
// ABOUTME: Lets stateless providers continue a transcript from a chaining token.

package replay

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores the value, its last-use time, and its list element.
type cacheEntry[V any] struct {
	value    V
	lastUsed time.Time
	element  *list.Element
}

// Cache is a thread-safe, size-limited map whose entries expire after ttl
// without use. Reads refresh an entry, so an active chain stays alive.
// A doubly-linked list keeps entries in least-recently-used order for O(1)
// eviction.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry[V]
	order      *list.List // keys, least recently used at front
	ttl        time.Duration
	maxEntries int
	done       chan struct{}
	closed     bool
}

// New creates a cache with the given TTL and capacity.
// A background goroutine periodically removes expired entries.
func New[V any](ttl time.Duration, maxEntries int) *Cache[V] {
	c := &Cache[V]{
		entries:    make(map[string]*cacheEntry[V]),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		done:       make(chan struct{}),
	}
	go c.sweep(sweepInterval(ttl))
	return c
}

// sweepInterval runs cleanup once a minute, or more often for short TTLs.
func sweepInterval(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

// Get returns the value stored under key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	now := time.Now()
	if c.expired(entry, now) {
		c.removeLocked(key, entry)
		return zero, false
	}
	entry.lastUsed = now
	c.order.MoveToBack(entry.element)
	return entry.value, true
}

// Put stores value under key. If the cache is at capacity, the least
// recently used entry is evicted to make room.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if entry, exists := c.entries[key]; exists {
		entry.value = value
		entry.lastUsed = now
		c.order.MoveToBack(entry.element)
		return
	}

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &cacheEntry[V]{
		value:    value,
		lastUsed: now,
		element:  elem,
	}
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the least recently used entry. Must be called with mu held.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// expired reports whether entry has gone unused for ttl. A zero ttl never expires.
func (c *Cache[V]) expired(entry *cacheEntry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(entry.lastUsed) >= c.ttl
}

// removeLocked drops key. Must be called with mu held.
func (c *Cache[V]) removeLocked(key string, entry *cacheEntry[V]) {
	c.order.Remove(entry.element)
	delete(c.entries, key)
}

// sweep runs in a background goroutine, periodically removing expired entries.
func (c *Cache[V]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

// removeExpired drops every entry unused for longer than ttl.
func (c *Cache[V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if c.expired(entry, now) {
			c.removeLocked(key, entry)
		}
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
