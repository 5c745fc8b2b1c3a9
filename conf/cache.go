package conf

// Cache memoizes resolved configuration lookups, including negative
// results. Contents are only valid within one logical connection; the
// owning Resolver clears it on BindConnection. Not safe for concurrent
// use: one cache per connection, never shared.
type Cache struct {
	enabled bool
	entries map[string]*Entry // nil value = cached absence
}

// NewCache creates an enabled, empty cache.
func NewCache() *Cache {
	return &Cache{
		enabled: true,
		entries: make(map[string]*Entry),
	}
}

// Get returns the cached entry for the scope and whether the scope has a
// cached result at all. A (nil, true) return is a cached negative: the
// store was consulted and holds no entry for this scope. When the cache
// is disabled Get always misses.
func (c *Cache) Get(key ScopeKey) (*Entry, bool) {
	if !c.enabled {
		return nil, false
	}
	e, ok := c.entries[key.Key()]
	return e, ok
}

// Put records the resolution result for the scope. Pass nil to cache
// absence. No-op while the cache is disabled.
func (c *Cache) Put(key ScopeKey, e *Entry) {
	if !c.enabled {
		return
	}
	c.entries[key.Key()] = e
}

// Clear empties the cache. Must run at the start of each logical
// connection so no stale cross-connection state survives.
func (c *Cache) Clear() {
	c.entries = make(map[string]*Entry)
}

// SetEnabled toggles pass-through mode. Disabling does not drop existing
// contents; re-enabling resumes use of whatever was cached before.
func (c *Cache) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// Enabled reports whether caching is active.
func (c *Cache) Enabled() bool {
	return c.enabled
}
