package catalog

import (
	"sync"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

type cacheEntry struct {
	version store.Version
	schema  SchemaMap
}

// Cache memoises schema maps per store. An entry is served only while the
// store Version it was captured at is still current.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns a copy of the cached map for key if it was stored at version.
func (c *Cache) Get(key string, version store.Version) (SchemaMap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.version != version {
		return nil, false
	}
	return e.schema.Clone(), true
}

// Put stores a copy of schema for key at version.
func (c *Cache) Put(key string, version store.Version, schema SchemaMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{version: version, schema: schema.Clone()}
}

// Invalidate drops the entry for key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
