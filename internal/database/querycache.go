package database

import (
	"sync"
	"time"
)

// queryCache holds materialized query results keyed by normalized query and
// parameters. Entries expire by TTL; closing the owning connection purges
// everything. No per-table invalidation exists because the source database
// is read-only for the session.
type queryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	rows      *Rows
	createdAt time.Time
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *queryCache) get(key string) (*Rows, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.createdAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.rows, true
}

func (c *queryCache) put(key string, rows *Rows) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{rows: rows, createdAt: c.now()}
}

func (c *queryCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
