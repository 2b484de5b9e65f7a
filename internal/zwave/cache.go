package zwave

import (
	"sync"
)

// CacheKey addresses one configuration parameter on one node.
type CacheKey struct {
	Home  string
	Node  byte
	Param Param
}

// Cache holds the last known value of every parameter read or written.
// It does NOT talk to the network and has no expiry; entries live for the
// process lifetime unless cleared.
type Cache struct {
	mu     sync.RWMutex
	values map[CacheKey]int
}

// NewCache creates an empty parameter cache.
func NewCache() *Cache {
	return &Cache{
		values: make(map[CacheKey]int),
	}
}

// Get returns the cached value for key.
func (c *Cache) Get(key CacheKey) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]
	return v, ok
}

// Set stores value for key.
func (c *Cache) Set(key CacheKey, value int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[key] = value
}

// Invalidate removes an entry from the cache.
func (c *Cache) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.values, key)
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = make(map[CacheKey]int)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.values)
}
