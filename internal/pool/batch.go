// Package pool provides single-owner leases of pooled backing arrays,
// carried inside batch change notifications so that a 500-item AddRange
// doesn't force the notification pipeline to allocate a 500-item copy on
// every hop. Grounded on the get/reset/return idiom of
// storage/pools.GetByteSlice in the retrieved entitydb example, generalized
// from []byte to any element type and given single-owner dispose
// semantics instead of bare sync.Pool reuse.
package pool

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// SlicePool is a typed wrapper over sync.Pool for []T backing arrays.
type SlicePool[T any] struct {
	pool       sync.Pool
	initialCap int
}

// NewSlicePool creates a pool whose fresh slices start with initialCap
// capacity.
func NewSlicePool[T any](initialCap int) *SlicePool[T] {
	if initialCap <= 0 {
		initialCap = 64
	}
	p := &SlicePool[T]{initialCap: initialCap}
	p.pool.New = func() any {
		s := make([]T, 0, initialCap)
		return &s
	}
	return p
}

// Get leases a zero-length slice with spare capacity.
func (p *SlicePool[T]) Get() *[]T {
	s := p.pool.Get().(*[]T)
	*s = (*s)[:0]
	return s
}

// Put returns a leased slice to the pool. Slices that have grown
// excessively large are dropped instead of pooled, matching the
// "don't pool buffers over N" guard used throughout entitydb's pools
// package.
func (p *SlicePool[T]) Put(s *[]T) {
	if cap(*s) > 64*p.initialCap {
		return
	}
	p.pool.Put(s)
}

// Batch is a single-owner lease of a pooled backing array carrying a
// batch notification's payload. Ownership starts with the producer and
// passes to the changebus.Bus it is emitted on: Emit disposes it when the
// notification is dropped, otherwise the drainer disposes it after every
// subscriber and the legacy sink have run. Subscribers (views included)
// never dispose it. Dispose must be called exactly once; a second call
// panics, surfacing the pool-hygiene bug immediately instead of silently
// corrupting a reused slice.
type Batch[T any] struct {
	pool     *SlicePool[T]
	items    *[]T
	count    int
	disposed atomic.Bool
}

// NewBatch leases a backing array from pool and copies items into it. The
// caller retains ownership of the input slice; Batch owns its own copy.
func NewBatch[T any](pool *SlicePool[T], items []T) *Batch[T] {
	leased := pool.Get()
	*leased = append(*leased, items...)
	return &Batch[T]{pool: pool, items: leased, count: len(items)}
}

// Items returns the batch payload, valid until Dispose is called.
func (b *Batch[T]) Items() []T {
	return (*b.items)[:b.count]
}

// Count returns the number of valid elements in Items().
func (b *Batch[T]) Count() int {
	return b.count
}

// Dispose returns the backing array to its pool. Must be called exactly
// once by the terminal consumer.
func (b *Batch[T]) Dispose() {
	if !b.disposed.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("pool: Batch disposed twice (count=%d)", b.count))
	}
	if b.pool != nil {
		b.pool.Put(b.items)
	}
}

// IsDisposed reports whether Dispose has already run. Exposed for tests
// asserting pool hygiene (invariant 5: every delivered Batch is disposed
// exactly once).
func (b *Batch[T]) IsDisposed() bool {
	return b.disposed.Load()
}
