package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
)

// Cache maps chunk index to chunk data.
type Cache interface {
	// Get returns the chunk stored at index. ok=false if missing.
	Get(ctx context.Context, index int) (c Chunk, ok bool)
	// Put stores c at index unless an entry already exists. It reports
	// whether c was stored.
	Put(ctx context.Context, index int, c Chunk) bool
	// Len returns the number of resident chunks.
	Len() int
	// Resident returns a snapshot of the resident chunk indices.
	Resident() *roaring.Bitmap
	// Stats returns hit and miss counters.
	Stats() Stats
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
	Bytes   int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Map is the append-only cache: entries are never evicted or replaced.
type Map struct {
	mu       sync.RWMutex
	items    map[int]Chunk
	resident *roaring.Bitmap
	bytes    int64

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Cache = (*Map)(nil)

// NewMap creates an empty append-only cache.
func NewMap() *Map {
	return &Map{
		items:    make(map[int]Chunk),
		resident: roaring.New(),
	}
}

func (m *Map) Get(_ context.Context, index int) (Chunk, bool) {
	m.mu.RLock()
	c, ok := m.items[index]
	m.mu.RUnlock()

	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return c, ok
}

func (m *Map) Put(_ context.Context, index int, c Chunk) bool {
	if index < 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[index]; ok {
		return false
	}
	m.items[index] = c
	m.resident.Add(uint32(index))
	m.bytes += c.SizeBytes()
	return true
}

func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Map) Resident() *roaring.Bitmap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resident.Clone()
}

func (m *Map) Stats() Stats {
	m.mu.RLock()
	entries, bytes := len(m.items), m.bytes
	m.mu.RUnlock()

	return Stats{
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
		Entries: entries,
		Bytes:   bytes,
	}
}
