package pipeline

import "sync"

// RunCache memoizes resolved translations keyed by normalized dish name.
// It is an explicit handle owned by the host: one per scan session, or one
// shared across sessions when repeated menus are expected. The zero number
// of entries is the only reset a fresh run needs.
type RunCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewRunCache creates an empty run cache.
func NewRunCache() *RunCache {
	return &RunCache{entries: make(map[string]string)}
}

// Get returns the memoized translation for a normalized name.
func (c *RunCache) Get(normalized string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[normalized]
	return v, ok
}

// Put memoizes a resolved translation.
func (c *RunCache) Put(normalized, translated string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[normalized] = translated
}

// Len returns the number of memoized translations.
func (c *RunCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops all memoized translations.
func (c *RunCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string)
}
