package directory

import (
	"strings"
	"sync"
	"time"
)

// maxCacheEntries triggers a sweep of expired entries when reached.
const maxCacheEntries = 4096

type cacheEntry struct {
	value     bool
	expiresAt time.Time
}

// Cached memoizes ChannelExists and ChannelAllowed of another Catalog, with
// separate lifetimes for true and false answers. Topics and authentication
// always go to the underlying catalog.
type Cached struct {
	mu       sync.RWMutex
	catalog  Catalog
	gen      uint64
	entries  map[string]cacheEntry
	trueTTL  time.Duration
	falseTTL time.Duration
	now      func() time.Time
}

var _ Catalog = (*Cached)(nil)

// NewCached wraps catalog. A zero TTL disables caching for that answer.
func NewCached(catalog Catalog, trueTTL, falseTTL time.Duration) *Cached {
	return &Cached{
		catalog:  catalog,
		entries:  make(map[string]cacheEntry),
		trueTTL:  trueTTL,
		falseTTL: falseTTL,
		now:      time.Now,
	}
}

// Catalog returns the wrapped catalog.
func (c *Cached) Catalog() Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog
}

// SetCatalog replaces the wrapped catalog and drops every cached answer.
func (c *Cached) SetCatalog(catalog Catalog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = catalog
	c.gen++
	c.entries = make(map[string]cacheEntry)
}

func (c *Cached) ChannelExists(name string) bool {
	return c.memo("exists\x00"+name, func(catalog Catalog) bool {
		return catalog.ChannelExists(name)
	})
}

func (c *Cached) ChannelAllowed(name, nick string) bool {
	return c.memo("allowed\x00"+name+"\x00"+strings.ToLower(nick), func(catalog Catalog) bool {
		return catalog.ChannelAllowed(name, nick)
	})
}

func (c *Cached) ChannelTopic(name string) (string, bool) {
	return c.Catalog().ChannelTopic(name)
}

func (c *Cached) Authenticate(nick, password string) bool {
	return c.Catalog().Authenticate(nick, password)
}

// Invalidate drops every cached answer about channel.
func (c *Cached) Invalidate(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		_, rest, _ := strings.Cut(key, "\x00")
		if rest == channel || strings.HasPrefix(rest, channel+"\x00") {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of cached answers, expired ones included.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cached) memo(key string, fn func(Catalog) bool) bool {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	catalog, gen := c.catalog, c.gen
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.value
	}

	value := fn(catalog)
	ttl := c.falseTTL
	if value {
		ttl = c.trueTTL
	}
	if ttl <= 0 {
		return value
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// an answer from a replaced catalog is not cached
	if c.gen != gen {
		return value
	}
	if len(c.entries) >= maxCacheEntries {
		c.sweep(now)
	}
	c.entries[key] = cacheEntry{value: value, expiresAt: now.Add(ttl)}
	return value
}

// sweep removes expired entries. Callers hold mu.
func (c *Cached) sweep(now time.Time) {
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
