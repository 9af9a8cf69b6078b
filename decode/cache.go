package decode

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pagefold/renderkit/codec"
)

// DefaultCacheCapacity bounds the page cache when no explicit capacity is
// configured.
const DefaultCacheCapacity = 16

// PageCache holds decoded page handles keyed by page index. Entries are
// reclaimable: the cache is bounded and drops the least recently used page
// when capacity is exceeded, and Evict/Clear stand in for external memory
// pressure. A miss, including a post-eviction miss, re-requests the page
// from the document, which may re-trigger a full decode.
//
// The cache is accessed by the worker lane and by metric queries on caller
// goroutines, so all map access is guarded by one mutex. Get holds the lock
// across document page creation so the same index is never decoded twice
// concurrently.
type PageCache struct {
	mu       sync.Mutex
	doc      codec.Document
	capacity int
	entries  map[int]*cacheEntry
	head     *cacheEntry // most recently used
	tail     *cacheEntry // least recently used

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	index int
	page  codec.Page
	prev  *cacheEntry
	next  *cacheEntry
}

// NewPageCache creates a cache over doc holding at most capacity pages.
// A non-positive capacity falls back to DefaultCacheCapacity.
func NewPageCache(doc codec.Document, capacity int) *PageCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &PageCache{
		doc:      doc,
		capacity: capacity,
		entries:  make(map[int]*cacheEntry, capacity),
	}
}

// Get returns the live cached page for index, or asks the document for a new
// one and caches it. Creating a page may start its decode, so Get can be
// expensive on a miss.
func (c *PageCache) Get(ctx context.Context, index int) (codec.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[index]; ok {
		c.moveToFront(e)
		c.hits.Add(1)
		return e.page, nil
	}

	c.misses.Add(1)
	page, err := c.doc.Page(ctx, index)
	if err != nil {
		var de *codec.DecodeError
		if !errors.As(err, &de) {
			err = &codec.DecodeError{PageIndex: index, Err: err}
		}
		return nil, err
	}

	e := &cacheEntry{index: index, page: page}
	c.entries[index] = e
	c.addToFront(e)
	for len(c.entries) > c.capacity && c.tail != nil {
		c.removeTail()
		c.evictions.Add(1)
	}
	return page, nil
}

// Evict drops the entry for index if present, reporting whether an entry was
// removed. The next Get for the index re-requests the page from the document.
func (c *PageCache) Evict(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[index]
	if !ok {
		return false
	}
	c.remove(e)
	delete(c.entries, index)
	c.evictions.Add(1)
	return true
}

// Clear drops every entry.
func (c *PageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]*cacheEntry, c.capacity)
	c.head = nil
	c.tail = nil
}

// Len returns the number of cached pages.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Contains reports whether index is currently cached, without touching the
// recency order.
func (c *PageCache) Contains(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[index]
	return ok
}

// Stats returns cumulative hit, miss and eviction counts.
func (c *PageCache) Stats() (hits, misses, evictions int64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

func (c *PageCache) addToFront(e *cacheEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *PageCache) moveToFront(e *cacheEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *PageCache) remove(e *cacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *PageCache) removeTail() {
	e := c.tail
	if e == nil {
		return
	}
	delete(c.entries, e.index)
	c.remove(e)
}
