package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/pagedir/internal/resource"
)

// Stats reports cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// LRU is a byte-bounded LRU cache of immutable values. Cached slices must be
// treated as read-only by callers.
type LRU[K comparable] struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[K]*list.Element
	order    *list.List
	rc       *resource.Controller

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type entry[K comparable] struct {
	key   K
	value []byte
}

// NewLRU creates a cache holding at most capacity bytes. If rc is not nil, cached
// bytes are also accounted against its memory limit.
func NewLRU[K comparable](capacity int64, rc *resource.Controller) *LRU[K] {
	return &LRU[K]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
		rc:       rc,
	}
}

// Get returns the cached value for key.
func (c *LRU[K]) Get(key K) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(el)
		return el.Value.(*entry[K]).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches value under key. Values larger than the capacity, or that the
// resource controller cannot admit, are not cached.
func (c *LRU[K]) Set(key K, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := int64(len(value))
	if n > c.capacity {
		return
	}
	if el, ok := c.items[key]; ok {
		c.removeElement(el, false)
	}
	for c.size+n > c.capacity {
		c.removeElement(c.order.Back(), true)
	}
	if !c.rc.TryAcquireMemory(n) {
		return
	}
	c.items[key] = c.order.PushFront(&entry[K]{key: key, value: value})
	c.size += n
}

// Invalidate removes every entry whose key matches and returns how many were removed.
func (c *LRU[K]) Invalidate(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var drop []*list.Element
	for key, el := range c.items {
		if match(key) {
			drop = append(drop, el)
		}
	}
	for _, el := range drop {
		c.removeElement(el, false)
	}
	return len(drop)
}

// Purge empties the cache and releases its memory.
func (c *LRU[K]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rc.ReleaseMemory(c.size)
	c.items = make(map[K]*list.Element)
	c.order.Init()
	c.size = 0
}

func (c *LRU[K]) removeElement(el *list.Element, evicted bool) {
	c.order.Remove(el)
	e := el.Value.(*entry[K])
	delete(c.items, e.key)
	n := int64(len(e.value))
	c.size -= n
	c.rc.ReleaseMemory(n)
	if evicted {
		c.evictions.Add(1)
	}
}

// Len returns the number of cached entries.
func (c *LRU[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Size returns the number of cached bytes.
func (c *LRU[K]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns hit, miss and eviction counts.
func (c *LRU[K]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
