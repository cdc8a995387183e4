package cache

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/arraywin/dataset"
)

// Tiered stacks a fast cache in front of a slower one. Misses in the front
// tier fall back to the back tier and promote the chunk on a hit.
type Tiered struct {
	front Cache
	back  Cache
}

var _ Cache = (*Tiered)(nil)

// NewTiered creates a two-level cache.
func NewTiered(front, back Cache) *Tiered {
	return &Tiered{front: front, back: back}
}

func (t *Tiered) Get(ctx context.Context, index int) (Chunk, bool) {
	if c, ok := t.front.Get(ctx, index); ok {
		return c, true
	}
	c, ok := t.back.Get(ctx, index)
	if !ok {
		return Chunk{}, false
	}
	t.front.Put(ctx, index, c)
	return c, true
}

func (t *Tiered) Put(ctx context.Context, index int, c Chunk) bool {
	stored := t.front.Put(ctx, index, c)
	if t.back.Put(ctx, index, c) {
		stored = true
	}
	return stored
}

// Len returns the number of distinct chunks resident in either tier.
func (t *Tiered) Len() int {
	return int(t.Resident().GetCardinality())
}

func (t *Tiered) Resident() *roaring.Bitmap {
	return roaring.Or(t.front.Resident(), t.back.Resident())
}

// Stats reports front-tier counters, with Hits including back-tier hits.
func (t *Tiered) Stats() Stats {
	f, b := t.front.Stats(), t.back.Stats()
	return Stats{
		Hits:    f.Hits + b.Hits,
		Misses:  b.Misses,
		Entries: t.Len(),
		Bytes:   f.Bytes,
	}
}

// Retain pins w in the front tier when it supports pinning.
func (t *Tiered) Retain(w dataset.Range) {
	if r, ok := t.front.(interface{ Retain(dataset.Range) }); ok {
		r.Retain(w)
	}
}

// Front returns the fast tier.
func (t *Tiered) Front() Cache { return t.front }

// Back returns the slow tier.
func (t *Tiered) Back() Cache { return t.back }
