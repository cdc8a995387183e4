package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/arraywin/dataset"
	"github.com/hupe1980/arraywin/resource"
)

// LRU is a byte-bounded cache that evicts least-recently-used chunks.
// Chunks inside the retention window set by Retain are never evicted, so
// the cache may exceed its capacity while the window is larger than it.
// Chunks outside the window are rejected once only pinned chunks remain.
type LRU struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[int]*list.Element
	evictList *list.List
	resident  *roaring.Bitmap
	retain    dataset.Range
	rc        *resource.Controller

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

var _ Cache = (*LRU)(nil)

type entry struct {
	index int
	chunk Chunk
	size  int64
}

// NewLRU creates a new LRU cache with the given capacity in bytes.
// If rc is provided, it will be used to track memory usage.
func NewLRU(capacity int64, rc *resource.Controller) *LRU {
	return &LRU{
		capacity:  capacity,
		items:     make(map[int]*list.Element),
		evictList: list.New(),
		resident:  roaring.New(),
		rc:        rc,
	}
}

// Retain pins the chunk indices in w against eviction. An empty range
// clears the pin.
func (c *LRU) Retain(w dataset.Range) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retain = w
	c.evict()
}

func (c *LRU) Get(_ context.Context, index int) (Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[index]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry).chunk, true
	}
	c.misses.Add(1)
	return Chunk{}, false
}

func (c *LRU) Put(_ context.Context, index int, ch Chunk) bool {
	if index < 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[index]; ok {
		c.evictList.MoveToFront(ent)
		return false
	}

	size := ch.SizeBytes()
	pinned := c.pinned(index)
	if size > c.capacity && !pinned {
		return false
	}

	// Evict locally first; that also returns memory to rc.
	for c.size+size > c.capacity {
		if !c.evictOne() {
			break
		}
	}
	// Only pinned chunks are left; only another pinned chunk may overflow.
	if !pinned && c.size+size > c.capacity {
		return false
	}

	if !c.rc.TryAcquireMemory(size) {
		// The global limit is hit. Shed unpinned chunks until it admits us.
		for {
			if !c.evictOne() {
				return false
			}
			if c.rc.TryAcquireMemory(size) {
				break
			}
		}
	}

	element := c.evictList.PushFront(&entry{index: index, chunk: ch, size: size})
	c.items[index] = element
	c.resident.Add(uint32(index))
	c.size += size
	return true
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU) Resident() *roaring.Bitmap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resident.Clone()
}

func (c *LRU) Stats() Stats {
	c.mu.Lock()
	entries, size := len(c.items), c.size
	c.mu.Unlock()

	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: entries,
		Bytes:   size,
	}
}

// Evictions returns the number of chunks evicted so far.
func (c *LRU) Evictions() int64 {
	return c.evictions.Load()
}

// Size returns the current size of the cache in bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Close releases all accounted memory.
func (c *LRU) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
	return nil
}

func (c *LRU) pinned(index int) bool {
	return index >= c.retain.Start && index < c.retain.End
}

func (c *LRU) evict() {
	for c.size > c.capacity {
		if !c.evictOne() {
			return
		}
	}
}

// evictOne removes the least-recently-used unpinned chunk. Must hold lock.
func (c *LRU) evictOne() bool {
	for e := c.evictList.Back(); e != nil; e = e.Prev() {
		if c.pinned(e.Value.(*entry).index) {
			continue
		}
		c.removeElement(e)
		c.evictions.Add(1)
		return true
	}
	return false
}

func (c *LRU) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	ent := e.Value.(*entry)
	delete(c.items, ent.index)
	c.resident.Remove(uint32(ent.index))
	c.size -= ent.size
	c.rc.ReleaseMemory(ent.size)
}
