package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/arraywin/resource"
)

// DiskConfig holds configuration for the disk cache.
type DiskConfig struct {
	// RootDir is the directory where chunk files are stored.
	RootDir string
	// MaxSizeBytes is the maximum size of the chunk files in bytes.
	// 0 means unlimited.
	MaxSizeBytes int64
	// Compression is the codec for chunk files.
	Compression Compression
	// Resource bounds concurrent background writes. If nil, a controller
	// with its default background limit is created.
	Resource *resource.Controller
}

// Disk keeps encoded chunks as files under RootDir, one file per chunk
// index, with an in-memory LRU index of what is on disk. Writes happen in
// the background; a chunk becomes visible to Get once its file is in place.
type Disk struct {
	mu          sync.Mutex
	rootDir     string
	maxSize     int64
	currentSize int64
	comp        Compression
	rc          *resource.Controller

	items   map[int]*diskEntry
	pending map[int]struct{}
	lruHead *diskEntry
	lruTail *diskEntry
	wg      sync.WaitGroup

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Cache = (*Disk)(nil)

type diskEntry struct {
	index      int
	size       int64
	filePath   string
	next, prev *diskEntry
}

// NewDisk creates a disk-backed chunk cache, indexing any chunk files
// already present in RootDir.
func NewDisk(cfg DiskConfig) (*Disk, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("cache: disk cache needs a root directory")
	}
	if cfg.MaxSizeBytes < 0 {
		return nil, fmt.Errorf("cache: negative disk cache size %d", cfg.MaxSizeBytes)
	}
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, err
	}

	rc := cfg.Resource
	if rc == nil {
		rc = resource.NewController(resource.Config{})
	}

	c := &Disk{
		rootDir: cfg.RootDir,
		maxSize: cfg.MaxSizeBytes,
		comp:    cfg.Compression,
		rc:      rc,
		items:   make(map[int]*diskEntry),
		pending: make(map[int]struct{}),
	}
	c.scanExistingFiles()

	return c, nil
}

func (c *Disk) scanExistingFiles() {
	entries, err := os.ReadDir(c.rootDir)
	if err != nil {
		return
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		var index int
		if n, err := fmt.Sscanf(de.Name(), "%d.chunk", &index); err != nil || n != 1 {
			continue
		}
		if de.Name() != chunkFileName(index) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		c.addToLRU(index, filepath.Join(c.rootDir, de.Name()), info.Size())
	}
	for c.over(0) && c.lruTail != nil {
		c.evictOne()
	}
}

// over reports whether adding extra bytes exceeds the size limit.
func (c *Disk) over(extra int64) bool {
	return c.maxSize > 0 && c.currentSize+extra > c.maxSize
}

func chunkFileName(index int) string {
	return fmt.Sprintf("%d.chunk", index)
}

func (c *Disk) Get(_ context.Context, index int) (Chunk, bool) {
	c.mu.Lock()
	ent, ok := c.items[index]
	if ok {
		c.moveToFront(ent)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return Chunk{}, false
	}

	data, err := os.ReadFile(ent.filePath)
	var ch Chunk
	if err == nil {
		ch, err = decodeChunk(data)
	}
	if err != nil || ch.Index != index {
		c.mu.Lock()
		if cur, ok := c.items[index]; ok && cur == ent {
			_ = os.Remove(ent.filePath)
			c.removeEntry(ent)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return Chunk{}, false
	}

	c.hits.Add(1)
	return ch, true
}

// Put schedules a background write of ch. It returns false when the chunk
// is already on disk or in flight, or when no write slot is free.
func (c *Disk) Put(_ context.Context, index int, ch Chunk) bool {
	if index < 0 {
		return false
	}

	c.mu.Lock()
	if ent, ok := c.items[index]; ok {
		c.moveToFront(ent)
		c.mu.Unlock()
		return false
	}
	if _, ok := c.pending[index]; ok {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	data, err := encodeChunk(ch, c.comp)
	if err != nil {
		return false
	}
	size := int64(len(data))
	if c.maxSize > 0 && size > c.maxSize {
		return false
	}

	// Skip rather than block: losing a disk copy only costs a refetch.
	if !c.rc.TryAcquireBackground() {
		return false
	}

	c.mu.Lock()
	if _, ok := c.pending[index]; ok {
		c.mu.Unlock()
		c.rc.ReleaseBackground()
		return false
	}
	c.pending[index] = struct{}{}
	c.mu.Unlock()

	absPath := filepath.Join(c.rootDir, chunkFileName(index))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.rc.ReleaseBackground()

		ok := writeFileAtomic(absPath, data)

		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.pending, index)
		if !ok {
			return
		}
		for c.over(size) {
			if c.lruTail == nil {
				break
			}
			c.evictOne()
		}
		c.addToLRU(index, absPath, size)
	}()

	return true
}

func writeFileAtomic(absPath string, data []byte) bool {
	tmpFile, err := os.CreateTemp(filepath.Dir(absPath), "tmp-chunk-*")
	if err != nil {
		return false
	}
	tmpName := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName)
		return false
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return false
	}
	if err := os.Rename(tmpName, absPath); err != nil {
		_ = os.Remove(tmpName)
		return false
	}
	return true
}

func (c *Disk) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Disk) Resident() *roaring.Bitmap {
	c.mu.Lock()
	defer c.mu.Unlock()

	bm := roaring.New()
	for index := range c.items {
		bm.Add(uint32(index))
	}
	return bm
}

func (c *Disk) Stats() Stats {
	c.mu.Lock()
	entries, size := len(c.items), c.currentSize
	c.mu.Unlock()

	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: entries,
		Bytes:   size,
	}
}

// Flush waits for all background writes to complete.
func (c *Disk) Flush() {
	c.wg.Wait()
}

// Close waits for all background writes to complete.
func (c *Disk) Close() error {
	c.wg.Wait()
	return nil
}

// Internal LRU helpers (must hold lock)

func (c *Disk) addToLRU(index int, path string, size int64) {
	ent := &diskEntry{
		index:    index,
		filePath: path,
		size:     size,
	}
	c.items[index] = ent
	c.currentSize += size

	if c.lruHead == nil {
		c.lruHead = ent
		c.lruTail = ent
	} else {
		ent.next = c.lruHead
		c.lruHead.prev = ent
		c.lruHead = ent
	}
}

func (c *Disk) moveToFront(ent *diskEntry) {
	if c.lruHead == ent {
		return
	}

	if ent.prev != nil {
		ent.prev.next = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	}
	if c.lruTail == ent {
		c.lruTail = ent.prev
	}

	ent.next = c.lruHead
	ent.prev = nil
	if c.lruHead != nil {
		c.lruHead.prev = ent
	}
	c.lruHead = ent
	if c.lruTail == nil {
		c.lruTail = ent
	}
}

func (c *Disk) removeEntry(ent *diskEntry) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		c.lruHead = ent.next
	}

	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		c.lruTail = ent.prev
	}

	ent.next, ent.prev = nil, nil
	delete(c.items, ent.index)
	c.currentSize -= ent.size
}

func (c *Disk) evictOne() {
	if c.lruTail == nil {
		return
	}
	_ = os.Remove(c.lruTail.filePath)
	c.removeEntry(c.lruTail)
}
