package uniqueness

import (
	"container/list"
	"sync"
)

// DefaultCacheCapacity bounds LocalCache when no capacity is configured.
const DefaultCacheCapacity = 1000

// LocalCache remembers recently issued hashes in process. Eviction is FIFO
// by insertion order. It never reports a hash that was not added, so a hit
// is always a true repeat; a miss says nothing.
type LocalCache struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	items map[string]*list.Element
}

// NewLocalCache returns a cache holding at most capacity hashes.
// Non-positive capacities use DefaultCacheCapacity.
func NewLocalCache(capacity int) *LocalCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &LocalCache{
		cap:   capacity,
		order: list.New(),
		items: make(map[string]*list.Element, capacity),
	}
}

// Contains reports whether hash is cached.
func (c *LocalCache) Contains(hash string) bool {
	c.mu.Lock()
	_, ok := c.items[hash]
	c.mu.Unlock()
	return ok
}

// Add inserts hash, evicting the oldest entry past capacity. Re-adding a
// cached hash does not refresh its position.
func (c *LocalCache) Add(hash string) { c.TryAdd(hash) }

// TryAdd inserts hash and reports whether it was absent. Exactly one of any
// number of concurrent callers with the same hash gets true.
func (c *LocalCache) TryAdd(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[hash]; ok {
		return false
	}
	c.items[hash] = c.order.PushBack(hash)
	for c.order.Len() > c.cap {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(string))
	}
	return true
}

// Remove drops hash if present.
func (c *LocalCache) Remove(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[hash]; ok {
		c.order.Remove(el)
		delete(c.items, hash)
	}
}

// Len returns the number of cached hashes.
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the configured bound.
func (c *LocalCache) Capacity() int { return c.cap }
