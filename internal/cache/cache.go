// Package cache stores completed segment analyses keyed by content
// fingerprint so identical segments are never re-analyzed.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Enabled bool  `json:"enabled"`
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Evicted int64 `json:"evicted"`
	Expired int64 `json:"expired"`
}

type entry struct {
	key      Fingerprint
	value    string
	size     int64
	storedAt time.Time
}

// Cache is a mutex-guarded LRU with optional TTL expiry. A nil or
// disabled Cache is safe to use: Get always misses and Put is a no-op.
type Cache struct {
	mu         sync.Mutex
	enabled    bool
	maxEntries int           // 0 means unbounded
	ttl        time.Duration // 0 means entries never expire
	order      *list.List    // front is most recently used
	items      map[Fingerprint]*list.Element
	bytes      int64
	hits       int64
	misses     int64
	evicted    int64
	expired    int64

	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the cache to n entries, evicting the least
// recently used beyond that. Zero removes the bound.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithTTL expires entries after d. Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Disabled makes the cache inert while keeping call sites unchanged.
func Disabled() Option {
	return func(c *Cache) { c.enabled = false }
}

// New creates an enabled Cache with the given options.
func New(opts ...Option) *Cache {
	c := &Cache{
		enabled: true,
		order:   list.New(),
		items:   make(map[Fingerprint]*list.Element),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached analysis for key. Expired entries are removed
// on access and reported as misses.
func (c *Cache) Get(key Fingerprint) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return "", false
	}

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return "", false
	}

	ent := el.Value.(*entry)
	if c.ttl > 0 && c.now().Sub(ent.storedAt) > c.ttl {
		c.removeLocked(el)
		c.expired++
		c.misses++
		return "", false
	}

	c.order.MoveToFront(el)
	c.hits++
	return ent.value, true
}

// Put stores an analysis under key, overwriting any previous value and
// evicting the least recently used entries past the capacity bound.
func (c *Cache) Put(key Fingerprint, value string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		c.bytes += int64(len(value)) - ent.size
		ent.value = value
		ent.size = int64(len(value))
		ent.storedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	ent := &entry{key: key, value: value, size: int64(len(value)), storedAt: c.now()}
	c.items[key] = c.order.PushFront(ent)
	c.bytes += ent.size

	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		c.removeLocked(c.order.Back())
		c.evicted++
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops all entries but keeps hit/miss counters.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[Fingerprint]*list.Element)
	c.bytes = 0
}

// Snapshot returns current statistics.
func (c *Cache) Snapshot() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Enabled: c.enabled,
		Entries: c.order.Len(),
		Bytes:   c.bytes,
		Hits:    c.hits,
		Misses:  c.misses,
		Evicted: c.evicted,
		Expired: c.expired,
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	ent := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, ent.key)
	c.bytes -= ent.size
}
