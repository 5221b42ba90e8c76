// Package cache provides a generic in-process key/value store with per-entry
// expiry and a bounded size. Eviction on insert is FIFO by insertion order,
// not LRU: reading an entry never changes its eviction position.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultTTL is used when no TTL option is given.
const DefaultTTL = 5 * time.Minute

// entry is the stored value plus its absolute expiry.
type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// TTLCache is a concurrency-safe cache with per-entry expiry.
// A zero maxSize means the cache is unbounded.
type TTLCache[K comparable, V any] struct {
	mu         sync.Mutex
	items      map[K]*list.Element
	order      *list.List // front = oldest inserted
	defaultTTL time.Duration
	maxSize    int
	now        func() time.Time
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	defaultTTL time.Duration
	maxSize    int
	now        func() time.Time
}

// WithDefaultTTL sets the TTL applied by Set when no override is given.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultTTL = d
		}
	}
}

// WithMaxSize bounds the number of entries. Inserting a new key into a full
// cache evicts the oldest-inserted entry first.
func WithMaxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an empty TTLCache.
func New[K comparable, V any](opts ...Option) *TTLCache[K, V] {
	o := options{
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[K, V]{
		items:      make(map[K]*list.Element),
		order:      list.New(),
		defaultTTL: o.defaultTTL,
		maxSize:    o.maxSize,
		now:        o.now,
	}
}

// Set stores value under key with the default TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A non-positive ttl falls back to the
// default TTL. Overwriting an existing key keeps its insertion position.
func (c *TTLCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expiresAt
		return
	}

	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		if oldest := c.order.Front(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	el := c.order.PushBack(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el
}

// Get returns the value for key. An expired entry is removed before
// answering and reported as missing.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.expired(e) {
		c.removeElement(el)
		return zero, false
	}
	return e.value, true
}

// Has reports whether key holds a live entry, evicting it if expired.
func (c *TTLCache[K, V]) Has(key K) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key. It reports whether an entry was present.
func (c *TTLCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Prune removes every expired entry and returns how many were removed.
// Relative order of surviving entries is unchanged.
func (c *TTLCache[K, V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if c.expired(el.Value.(*entry[K, V])) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

// Len returns the number of stored entries, including expired entries that
// have not been evicted yet.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns live keys in insertion order.
func (c *TTLCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[K, V])
		if !c.expired(e) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Clear removes all entries.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element)
	c.order.Init()
}

func (c *TTLCache[K, V]) expired(e *entry[K, V]) bool {
	return c.now().After(e.expiresAt)
}

// removeElement must be called with mu held.
func (c *TTLCache[K, V]) removeElement(el *list.Element) {
	e := el.Value.(*entry[K, V])
	delete(c.items, e.key)
	c.order.Remove(el)
}
