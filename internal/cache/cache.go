// Package cache provides a thread-safe TTL cache for assembled grading
// reports, fronting the file-based report store.
package cache

import (
	"sync"
	"time"
)

// Item is a cached value with expiration.
type Item struct {
	Data      []byte
	ExpiresAt time.Time
}

// IsExpired checks whether the item has expired.
func (i *Item) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// Cache is a thread-safe in-memory cache with TTL.
type Cache struct {
	mu       sync.RWMutex
	items    map[string]*Item
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache with the specified TTL and starts its janitor.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		items: make(map[string]*Item),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			for key, item := range c.items {
				if item.IsExpired() {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// Stop terminates the janitor goroutine. Safe to call more than once;
// the cache itself remains usable after Stop, entries just stop being
// swept eagerly.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Get retrieves a value, reporting whether it was present and fresh.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || item.IsExpired() {
		return nil, false
	}
	return item.Data, true
}

// Set stores a value under the cache TTL.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &Item{
		Data:      data,
		ExpiresAt: time.Now().Add(c.ttl),
	}
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of cached items, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
