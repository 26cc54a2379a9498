package records

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Default limits of CachedSource.
const (
	DefaultCacheEntries = 16
	DefaultCacheTTL     = 5 * time.Minute
)

// CachedSource keeps recently loaded records in memory. Entries are evicted
// least-recently-used once MaxEntries is exceeded, and expire after TTL so
// edits to the underlying files are eventually picked up. It is safe for
// concurrent use.
type CachedSource struct {
	Source
	cache *expirable.LRU[string, *Record]
}

// NewCachedSource wraps src. Non-positive limits select the defaults.
func NewCachedSource(src Source, maxEntries int, ttl time.Duration) *CachedSource {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{
		Source: src,
		cache:  expirable.NewLRU[string, *Record](maxEntries, nil, ttl),
	}
}

// Load returns the cached record or loads and caches it.
func (c *CachedSource) Load(id string) (*Record, error) {
	if rec, ok := c.cache.Get(id); ok {
		return rec, nil
	}
	rec, err := c.Source.Load(id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, rec)
	return rec, nil
}

// Purge drops every cached record.
func (c *CachedSource) Purge() { c.cache.Purge() }
