package collection

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/shardflow/internal/changebus"
	"github.com/dreamware/shardflow/internal/hashtable"
	"github.com/dreamware/shardflow/internal/index"
	"github.com/dreamware/shardflow/internal/pool"
)

// listShard is one shard's leaf store plus the lock that guards it.
type listShard[T comparable] struct {
	mu    sync.RWMutex
	store *hashtable.ShardList[T]
}

// ShardedList is a concurrency-sharded, reactive, order-agnostic
// collection: items are distributed across shards by their own hash
// (there is no separate key), so "position" is meaningful only within a
// shard, never across the whole container. GetAtGlobalIndex/IndexOf
// impose a total order over the container by walking shards in a fixed
// sequence (shard 0's items, then shard 1's, and so on); that order is
// stable only between mutations and is not meant to reflect insertion
// order.
type ShardedList[T comparable] struct {
	shards [shardCount]*listShard[T]
	bus    *changebus.Bus[T]
	pool   *pool.SlicePool[T]

	indexMu    sync.RWMutex
	indices    map[string]indexAdapter[T]
	rawIndices map[string]any

	disposed atomic.Bool
}

// ListOption configures a ShardedList at construction time.
type ListOption[T comparable] func(*ShardedList[T])

// WithListBusOptions forwards changebus.Option values (metrics, a legacy
// sink) to the container's internal Bus.
func WithListBusOptions[T comparable](opts ...changebus.Option[T]) ListOption[T] {
	return func(l *ShardedList[T]) {
		l.bus = changebus.New(opts...)
	}
}

// NewShardedList creates an empty ShardedList with minCapPerShard leaf
// capacity per shard.
func NewShardedList[T comparable](minCapPerShard int, opts ...ListOption[T]) *ShardedList[T] {
	l := &ShardedList[T]{
		pool:       pool.NewSlicePool[T](64),
		indices:    make(map[string]indexAdapter[T]),
		rawIndices: make(map[string]any),
	}
	for i := range l.shards {
		l.shards[i] = &listShard[T]{store: hashtable.NewShardList[T](minCapPerShard)}
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.bus == nil {
		l.bus = changebus.New[T]()
	}
	return l
}

func shardIndexForItem[T comparable](item T) int {
	mixed := hashtable.Mix(hashtable.HashKey(item))
	return int(mixed>>30) & (shardCount - 1)
}

func (l *ShardedList[T]) isDisposed() bool {
	return l.disposed.Load()
}

// Bus exposes the container's change-notification bus for view
// construction.
func (l *ShardedList[T]) Bus() *changebus.Bus[T] {
	return l.bus
}

// Add appends item to its shard, updates every registered index, and
// emits Added. It returns ErrDisposed if the container has been closed.
func (l *ShardedList[T]) Add(item T) error {
	if l.isDisposed() {
		return ErrDisposed
	}
	sh := l.shards[shardIndexForItem(item)]
	sh.mu.Lock()
	sh.store.Push(item)
	l.addToIndices(item)
	l.bus.Emit(changebus.Notification[T]{Action: changebus.Added, Item: &item})
	sh.mu.Unlock()
	return nil
}

// Remove deletes the first occurrence of item from its shard, returning
// true if found, and emits Removed. It returns ErrDisposed if the
// container has been closed.
func (l *ShardedList[T]) Remove(item T) (bool, error) {
	if l.isDisposed() {
		return false, ErrDisposed
	}
	sh := l.shards[shardIndexForItem(item)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if !sh.store.RemoveValue(item) {
		return false, nil
	}
	l.removeFromIndices(item)
	l.bus.Emit(changebus.Notification[T]{Action: changebus.Removed, Item: &item})
	return true, nil
}

// Contains reports whether item is present in its shard.
func (l *ShardedList[T]) Contains(item T) bool {
	sh := l.shards[shardIndexForItem(item)]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.store.Contains(item)
}

// Count returns the total number of live items across every shard.
func (l *ShardedList[T]) Count() int {
	total := 0
	for _, sh := range l.shards {
		sh.mu.RLock()
		total += sh.store.Len()
		sh.mu.RUnlock()
	}
	return total
}

// Snapshot returns a copy of every live item across all shards.
func (l *ShardedList[T]) Snapshot() []T {
	out := make([]T, 0, l.Count())
	for _, sh := range l.shards {
		sh.mu.RLock()
		items := sh.store.AsSpan()
		out = append(out, items...)
		sh.mu.RUnlock()
	}
	return out
}

// GetAtGlobalIndex returns the item at global position i, walking shards
// in fixed order (shard 0 first) and treating each shard's live items as
// a contiguous block. Returns ErrIndexOutOfRange if i falls outside
// [0, Count()).
func (l *ShardedList[T]) GetAtGlobalIndex(i int) (T, error) {
	var zero T
	if i < 0 {
		return zero, ErrIndexOutOfRange
	}
	offset := i
	for _, sh := range l.shards {
		sh.mu.RLock()
		n := sh.store.Len()
		if offset < n {
			v := sh.store.Get(offset)
			sh.mu.RUnlock()
			return v, nil
		}
		offset -= n
		sh.mu.RUnlock()
	}
	return zero, ErrIndexOutOfRange
}

// SetAtGlobalIndex always returns ErrUnsupportedOperation: a ShardedList
// has no notion of positional assignment, since an item's shard (and
// therefore its position) is derived from its own hash, not from where a
// caller wants it to sit.
func (l *ShardedList[T]) SetAtGlobalIndex(i int, value T) error {
	return ErrUnsupportedOperation
}

// IndexOf returns item's position in the global order defined by
// GetAtGlobalIndex, and true, or (-1, false) if item is not present.
func (l *ShardedList[T]) IndexOf(item T) (int, bool) {
	base := 0
	for _, sh := range l.shards {
		sh.mu.RLock()
		span := sh.store.AsSpan()
		for i, v := range span {
			if v == item {
				sh.mu.RUnlock()
				return base + i, true
			}
		}
		base += len(span)
		sh.mu.RUnlock()
	}
	return -1, false
}

// Clear empties every shard and every registered index, emitting a single
// Cleared notification. It returns ErrDisposed if the container has been
// closed.
func (l *ShardedList[T]) Clear() error {
	if l.isDisposed() {
		return ErrDisposed
	}
	l.lockAllAscending()
	for _, sh := range l.shards {
		sh.store.Clear()
	}
	l.unlockAllDescending()

	l.indexMu.Lock()
	for _, adapter := range l.indices {
		adapter.rebuild(nil)
	}
	l.indexMu.Unlock()

	l.bus.Emit(changebus.Notification[T]{Action: changebus.Cleared})
	return nil
}

func (l *ShardedList[T]) lockAllAscending() {
	for _, sh := range l.shards {
		sh.mu.Lock()
	}
}

func (l *ShardedList[T]) unlockAllDescending() {
	for i := len(l.shards) - 1; i >= 0; i-- {
		l.shards[i].mu.Unlock()
	}
}

// AddRange appends every item, fanning out across shards with errgroup
// once len(items) reaches parallelThreshold, and emits a single
// BatchAdded notification. It returns ErrDisposed if the container has
// been closed.
func (l *ShardedList[T]) AddRange(items []T) error {
	if len(items) == 0 {
		return nil
	}
	if l.isDisposed() {
		return ErrDisposed
	}
	var byShard [shardCount][]T
	for _, item := range items {
		idx := shardIndexForItem(item)
		byShard[idx] = append(byShard[idx], item)
	}

	apply := func(idx int) {
		chunk := byShard[idx]
		if len(chunk) == 0 {
			return
		}
		sh := l.shards[idx]
		sh.mu.Lock()
		sh.store.AddRange(chunk)
		sh.mu.Unlock()
	}

	if len(items) >= parallelThreshold {
		var g errgroup.Group
		for i := range l.shards {
			i := i
			g.Go(func() error { apply(i); return nil })
		}
		_ = g.Wait()
	} else {
		for i := range l.shards {
			apply(i)
		}
	}

	for _, item := range items {
		l.addToIndices(item)
	}
	batch := pool.NewBatch(l.pool, items)
	l.bus.Emit(changebus.Notification[T]{Action: changebus.BatchAdded, Batch: batch})
	return nil
}

// RemoveRange deletes every item present in items, fanning out across
// shards for large batches, and emits a single BatchRemoved notification
// carrying every item that was actually present. It returns ErrDisposed
// if the container has been closed.
func (l *ShardedList[T]) RemoveRange(items []T) error {
	if len(items) == 0 {
		return nil
	}
	if l.isDisposed() {
		return ErrDisposed
	}
	var byShard [shardCount][]T
	for _, item := range items {
		idx := shardIndexForItem(item)
		byShard[idx] = append(byShard[idx], item)
	}

	removedCh := make(chan []T, shardCount)
	apply := func(idx int) {
		chunk := byShard[idx]
		if len(chunk) == 0 {
			removedCh <- nil
			return
		}
		sh := l.shards[idx]
		removed := make([]T, 0, len(chunk))
		sh.mu.Lock()
		for _, item := range chunk {
			if sh.store.RemoveValue(item) {
				removed = append(removed, item)
			}
		}
		sh.mu.Unlock()
		removedCh <- removed
	}

	if len(items) >= parallelThreshold {
		var g errgroup.Group
		for i := range l.shards {
			i := i
			g.Go(func() error { apply(i); return nil })
		}
		_ = g.Wait()
	} else {
		for i := range l.shards {
			apply(i)
		}
	}
	close(removedCh)

	var removed []T
	for rs := range removedCh {
		removed = append(removed, rs...)
	}
	for _, item := range removed {
		l.removeFromIndices(item)
	}

	batch := pool.NewBatch(l.pool, removed)
	l.bus.Emit(changebus.Notification[T]{Action: changebus.BatchRemoved, Batch: batch})
	return nil
}

// RemoveMany deletes every item matching predicate, scanning each shard
// under its own write lock, and emits a single BatchOp notification
// carrying every removed item. It returns ErrDisposed if the container
// has been closed.
func (l *ShardedList[T]) RemoveMany(predicate func(T) bool) error {
	if l.isDisposed() {
		return ErrDisposed
	}
	var removed []T
	for _, sh := range l.shards {
		sh.mu.Lock()
		n := sh.store.Len()
		var idxs []int
		for i := 0; i < n; i++ {
			if predicate(sh.store.Get(i)) {
				idxs = append(idxs, i)
			}
		}
		for i := len(idxs) - 1; i >= 0; i-- {
			idx := idxs[i]
			removed = append(removed, sh.store.Get(idx))
			sh.store.RemoveAt(idx)
		}
		sh.mu.Unlock()
	}

	for _, item := range removed {
		l.removeFromIndices(item)
	}

	batch := pool.NewBatch(l.pool, removed)
	l.bus.Emit(changebus.Notification[T]{Action: changebus.BatchOp, Batch: batch})
	return nil
}

// ListEditor exposes raw shard access to a function passed to Edit, while
// every shard lock is held for the duration of the call.
type ListEditor[T comparable] struct {
	l *ShardedList[T]
}

// Add mutates the container from inside an Edit callback. Index updates
// are deferred to the end of Edit so a single rebuild suffices no matter
// how many items the callback touches.
func (e *ListEditor[T]) Add(item T) {
	sh := e.l.shards[shardIndexForItem(item)]
	sh.store.Push(item)
}

// Remove mutates the container from inside an Edit callback.
func (e *ListEditor[T]) Remove(item T) {
	sh := e.l.shards[shardIndexForItem(item)]
	sh.store.RemoveValue(item)
}

// Edit acquires every shard's write lock (ascending order) for the
// duration of fn, giving fn a consistent, atomic view across the whole
// container. After fn returns, every registered index is rebuilt from a
// fresh snapshot and a single BatchOp notification is emitted. It
// returns ErrDisposed if the container has been closed.
func (l *ShardedList[T]) Edit(fn func(*ListEditor[T])) error {
	if l.isDisposed() {
		return ErrDisposed
	}
	l.lockAllAscending()
	fn(&ListEditor[T]{l: l})
	items := make([]T, 0)
	for _, sh := range l.shards {
		items = append(items, sh.store.AsSpan()...)
	}
	l.unlockAllDescending()

	l.indexMu.Lock()
	for _, adapter := range l.indices {
		adapter.rebuild(items)
	}
	l.indexMu.Unlock()

	l.bus.Emit(changebus.Notification[T]{Action: changebus.BatchOp})
	return nil
}

func (l *ShardedList[T]) addToIndices(item T) {
	l.indexMu.RLock()
	defer l.indexMu.RUnlock()
	for _, adapter := range l.indices {
		adapter.add(item)
	}
}

func (l *ShardedList[T]) removeFromIndices(item T) {
	l.indexMu.RLock()
	defer l.indexMu.RUnlock()
	for _, adapter := range l.indices {
		adapter.remove(item)
	}
}

// AddListIndex registers a named secondary index over l's items, keyed by
// keyFn, and immediately backfills it from every item currently present.
// Registering an already-registered name replaces it: the old index is
// dropped and a fresh one is built in its place.
func AddListIndex[T comparable, K2 comparable](l *ShardedList[T], name string, keyFn func(T) K2) *index.SecondaryIndex[T, K2] {
	idx := index.New[T, K2](keyFn)

	l.indexMu.Lock()
	l.indices[name] = &boundIndex[T, K2]{idx: idx}
	l.rawIndices[name] = idx
	l.indexMu.Unlock()

	idx.Rebuild(l.Snapshot())
	return idx
}

// GetListItemsBySecondaryIndex returns the posting list for key under the
// named index, or ErrInvalidIndexName if name was never registered (or
// was registered with a different derived-key type).
func GetListItemsBySecondaryIndex[T comparable, K2 comparable](l *ShardedList[T], name string, key K2) ([]T, error) {
	l.indexMu.RLock()
	raw, ok := l.rawIndices[name]
	l.indexMu.RUnlock()
	if !ok {
		return nil, ErrInvalidIndexName
	}
	idx, ok := raw.(*index.SecondaryIndex[T, K2])
	if !ok {
		return nil, ErrInvalidIndexName
	}
	return idx.Get(key), nil
}

// ListItemMatchesSecondaryIndex reports whether item belongs in key's
// posting list under the named index, or ErrInvalidIndexName if name was
// never registered (or was registered with a different derived-key
// type).
func ListItemMatchesSecondaryIndex[T comparable, K2 comparable](l *ShardedList[T], name string, item T, key K2) (bool, error) {
	l.indexMu.RLock()
	raw, ok := l.rawIndices[name]
	l.indexMu.RUnlock()
	if !ok {
		return false, ErrInvalidIndexName
	}
	idx, ok := raw.(*index.SecondaryIndex[T, K2])
	if !ok {
		return false, ErrInvalidIndexName
	}
	return idx.Matches(item, key), nil
}

// Close stops the container's change bus. After Close, every mutating
// operation returns ErrDisposed instead of touching the underlying
// shards; Close itself waits for the drainer to finish any in-flight
// notification. Safe to call more than once.
func (l *ShardedList[T]) Close() {
	if !l.disposed.CompareAndSwap(false, true) {
		return
	}
	l.bus.Close()
}
