package blobstore

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore keeps blobs in memory. It can simulate a remote link by
// delaying every range read, which makes cancellation observable in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]memoryVersion
	latency atomic.Int64

	ranges atomic.Int64
	bytes  atomic.Int64
}

// memoryGen numbers every MemoryStore write in the process, so a version
// is never reused after Delete or across stores.
var memoryGen atomic.Uint64

type memoryVersion struct {
	data []byte
	gen  uint64
}

// ReadStats counts the range reads served by a MemoryStore.
type ReadStats struct {
	Ranges int64
	Bytes  int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryVersion)}
}

// SetLatency delays every subsequent range read by d. The delay ends early
// with the context's error when the reading context is cancelled.
func (m *MemoryStore) SetLatency(d time.Duration) {
	m.latency.Store(int64(d))
}

// Stats returns the range reads served so far.
func (m *MemoryStore) Stats() ReadStats {
	return ReadStats{Ranges: m.ranges.Load(), Bytes: m.bytes.Load()}
}

// Open pins the current version of name.
func (m *MemoryStore) Open(_ context.Context, name string) (Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &memoryBlob{store: m, name: name, version: v}, nil
}

// Put stores a copy of data as the next version of name.
func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	v := memoryVersion{data: bytes.Clone(data), gen: memoryGen.Add(1)}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = v
	return nil
}

// Delete removes name. Blobs already opened fail their next read.
func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, name)
	return nil
}

// List returns the names under prefix in lexical order.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (m *MemoryStore) current(name string, gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blobs[name].gen == gen
}

func (m *MemoryStore) wait(ctx context.Context) error {
	d := time.Duration(m.latency.Load())
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type memoryBlob struct {
	store   *MemoryStore
	name    string
	version memoryVersion
}

func (b *memoryBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	return ReadAtRange(ctx, b, p, off)
}

func (b *memoryBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if err := b.store.wait(ctx); err != nil {
		return nil, err
	}
	if !b.store.current(b.name, b.version.gen) {
		return nil, ErrChanged
	}

	size := int64(len(b.version.data))
	if off >= size || length <= 0 {
		return EmptyRange(), nil
	}
	end := min(off+length, size)
	b.store.ranges.Add(1)
	b.store.bytes.Add(end - off)
	return io.NopCloser(bytes.NewReader(b.version.data[off:end])), nil
}

// Version returns the generation counter of the pinned blob.
func (b *memoryBlob) Version() string {
	return strconv.FormatUint(b.version.gen, 10)
}

func (b *memoryBlob) Size() int64 {
	return int64(len(b.version.data))
}

func (b *memoryBlob) Close() error {
	return nil
}
