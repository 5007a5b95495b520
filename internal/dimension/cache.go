package dimension

import "sync"

// Cache maps dimension names to ids, and the attributes last written for
// them, for the lifetime of a process. It is append-only: rows deleted or
// edited behind its back stay cached until restart.
type Cache struct {
	mu      sync.RWMutex
	entries map[Kind]map[string]cached
}

type cached struct {
	id    uint
	attrs map[string]any
}

func NewCache() *Cache {
	return &Cache{entries: make(map[Kind]map[string]cached)}
}

func (c *Cache) Get(kind Kind, name string) (uint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[kind][name]
	return e.id, ok
}

// Put records id for name, forgetting known attributes if the id changed
func (c *Cache) Put(kind Kind, name string, id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byName, ok := c.entries[kind]
	if !ok {
		byName = make(map[string]cached)
		c.entries[kind] = byName
	}
	if e, ok := byName[name]; ok && e.id == id {
		return
	}
	byName[name] = cached{id: id}
}

// PutAttributes records column values known to be stored for a cached name
func (c *Cache) PutAttributes(kind Kind, name string, attrs map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[kind][name]
	if !ok {
		return
	}
	merged := make(map[string]any, len(e.attrs)+len(attrs))
	for col, v := range e.attrs {
		merged[col] = v
	}
	for col, v := range attrs {
		merged[col] = v
	}
	e.attrs = merged
	c.entries[kind][name] = e
}

// HasAttributes reports whether every column in attrs is known to hold the
// given value already
func (c *Cache) HasAttributes(kind Kind, name string, attrs map[string]any) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[kind][name]
	if !ok {
		return false
	}
	for col, v := range attrs {
		known, ok := e.attrs[col]
		if !ok || known != v {
			return false
		}
	}
	return true
}

// Len returns the number of cached names of kind
func (c *Cache) Len(kind Kind) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries[kind])
}
