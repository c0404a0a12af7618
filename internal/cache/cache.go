// Package cache holds read-side aggregates keyed by group and key.
//
// Every group has a generation counter. Readers take the generation before
// loading from storage and hand it back to Set; if a writer invalidated the
// group in between, the stale value is dropped instead of stored.
package cache

import (
	"sync"
	"time"
)

// Group names a family of cached aggregates that are invalidated together.
type Group string

const (
	PortfolioSummary Group = "portfolio-summary"
	PortfolioSymbol  Group = "portfolio-symbol"
)

// PortfolioGroups are the groups affected by any position change.
var PortfolioGroups = []Group{PortfolioSummary, PortfolioSymbol}

type entry struct {
	value   any
	expires time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu          sync.RWMutex
	ttl         time.Duration
	entries     map[Group]map[string]entry
	generations map[Group]uint64
	now         func() time.Time
}

// New creates a cache whose entries expire after ttl. A zero ttl keeps
// entries until invalidated.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:         ttl,
		entries:     make(map[Group]map[string]entry),
		generations: make(map[Group]uint64),
		now:         time.Now,
	}
}

// Get returns the cached value and the group generation. The generation is
// returned on a miss too, for the subsequent Set.
func (c *Cache) Get(group Group, key string) (any, uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	gen := c.generations[group]
	e, ok := c.entries[group][key]
	if !ok || (!e.expires.IsZero() && c.now().After(e.expires)) {
		return nil, gen, false
	}
	return e.value, gen, true
}

// Set stores value unless the group was invalidated after generation gen was
// observed. It reports whether the value was stored.
func (c *Cache) Set(group Group, key string, value any, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[group] != gen {
		return false
	}
	bucket, ok := c.entries[group]
	if !ok {
		bucket = make(map[string]entry)
		c.entries[group] = bucket
	}
	e := entry{value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	bucket[key] = e
	return true
}

// Invalidate drops every entry of the groups and bumps their generations.
func (c *Cache) Invalidate(groups ...Group) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, g := range groups {
		delete(c.entries, g)
		c.generations[g]++
	}
}

// Len counts live entries in group.
func (c *Cache) Len(group Group) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries[group])
}
