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

const shardCount = 4

// parallelThreshold is the minimum batch size at which a bulk operation
// fans work out across shards with errgroup instead of running serially
// on the caller's goroutine. Below this size, goroutine setup cost
// dominates any parallelism gained.
const parallelThreshold = 256

// mapShard is one shard's leaf store plus the lock that guards it.
type mapShard[K comparable, V any] struct {
	mu    sync.RWMutex
	store *hashtable.ShardMap[K, V]
}

// indexAdapter erases a SecondaryIndex's derived-key type parameter so a
// container can hold a heterogeneous set of named indices behind one map.
type indexAdapter[T any] interface {
	add(item T)
	remove(item T)
	update(oldItem, newItem T)
	rebuild(items []T)
}

type boundIndex[T comparable, K2 comparable] struct {
	idx *index.SecondaryIndex[T, K2]
}

func (b *boundIndex[T, K2]) add(item T)               { b.idx.Add(item) }
func (b *boundIndex[T, K2]) remove(item T)             { b.idx.Remove(item) }
func (b *boundIndex[T, K2]) update(oldItem, newItem T) { b.idx.Update(oldItem, newItem) }
func (b *boundIndex[T, K2]) rebuild(items []T)         { b.idx.Rebuild(items) }

// ShardedMap is a concurrency-sharded, reactive key/value container. Keys
// must be comparable; values are indexed by derived keys through named
// secondary indices rather than by the map key itself, so that "find
// every value whose department is HR" reads the same whether the
// container is a ShardedMap or a ShardedList.
type ShardedMap[K comparable, V any] struct {
	shards [shardCount]*mapShard[K, V]
	bus    *changebus.Bus[V]
	pool   *pool.SlicePool[V]

	indexMu    sync.RWMutex
	indices    map[string]indexAdapter[V]
	rawIndices map[string]any

	disposed atomic.Bool
}

// MapOption configures a ShardedMap at construction time.
type MapOption[K comparable, V any] func(*ShardedMap[K, V])

// WithMapBusOptions forwards changebus.Option values (metrics, a legacy
// sink) to the container's internal Bus.
func WithMapBusOptions[K comparable, V any](opts ...changebus.Option[V]) MapOption[K, V] {
	return func(m *ShardedMap[K, V]) {
		m.bus = changebus.New(opts...)
	}
}

// NewShardedMap creates an empty ShardedMap with minCapPerShard leaf
// capacity per shard.
func NewShardedMap[K comparable, V any](minCapPerShard int, opts ...MapOption[K, V]) *ShardedMap[K, V] {
	m := &ShardedMap[K, V]{
		pool:       pool.NewSlicePool[V](64),
		indices:    make(map[string]indexAdapter[V]),
		rawIndices: make(map[string]any),
	}
	for i := range m.shards {
		m.shards[i] = &mapShard[K, V]{store: hashtable.NewShardMap[K, V](minCapPerShard)}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = changebus.New[V]()
	}
	return m
}

func shardIndexFor[K comparable](key K) int {
	mixed := hashtable.Mix(hashtable.HashKey(key))
	return int(mixed>>30) & (shardCount - 1)
}

func (m *ShardedMap[K, V]) shardFor(key K) *mapShard[K, V] {
	return m.shards[shardIndexFor(key)]
}

func (m *ShardedMap[K, V]) isDisposed() bool {
	return m.disposed.Load()
}

// Bus exposes the container's change-notification bus for view
// construction.
func (m *ShardedMap[K, V]) Bus() *changebus.Bus[V] {
	return m.bus
}

// Get returns the value for key and true, or the zero value and false.
func (m *ShardedMap[K, V]) Get(key K) (V, bool) {
	sh := m.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.store.TryGet(key)
}

// ContainsKey reports whether key is present.
func (m *ShardedMap[K, V]) ContainsKey(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Set inserts or overwrites key's value, updating every registered index
// and emitting Added (new key) or Updated (existing key). It returns
// ErrDisposed if the container has been closed.
func (m *ShardedMap[K, V]) Set(key K, value V) error {
	if m.isDisposed() {
		return ErrDisposed
	}
	sh := m.shardFor(key)
	sh.mu.Lock()
	old, existed := sh.store.TryGet(key)
	sh.store.Set(key, value)

	if existed {
		m.updateIndices(old, value)
	} else {
		m.addToIndices(value)
	}

	if existed {
		m.bus.Emit(changebus.Notification[V]{Action: changebus.Updated, Item: &value})
	} else {
		m.bus.Emit(changebus.Notification[V]{Action: changebus.Added, Item: &value})
	}
	sh.mu.Unlock()
	return nil
}

// TryAdd inserts value at key only if key is absent, returning false and
// ErrKeyExists without modifying the container if it is already present.
// It returns ErrDisposed if the container has been closed.
func (m *ShardedMap[K, V]) TryAdd(key K, value V) (bool, error) {
	if m.isDisposed() {
		return false, ErrDisposed
	}
	sh := m.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if !sh.store.TryAdd(key, value) {
		return false, ErrKeyExists
	}
	m.addToIndices(value)
	m.bus.Emit(changebus.Notification[V]{Action: changebus.Added, Item: &value})
	return true, nil
}

// Update replaces the value stored at key, requiring that key already be
// present. It returns ErrKeyNotFound if key is absent and ErrDisposed if
// the container has been closed — the strict counterpart to AddOrUpdate
// for callers that want an update-only operation to fail loudly instead
// of silently inserting.
func (m *ShardedMap[K, V]) Update(key K, value V) error {
	if m.isDisposed() {
		return ErrDisposed
	}
	sh := m.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	old, existed := sh.store.TryGet(key)
	if !existed {
		return ErrKeyNotFound
	}
	sh.store.Set(key, value)
	m.updateIndices(old, value)
	m.bus.Emit(changebus.Notification[V]{Action: changebus.Updated, Item: &value})
	return nil
}

// AddOrUpdate inserts addValue if key is absent, or replaces the existing
// value with updateFn(key, existing) if present, returning the value that
// ended up stored. It returns ErrDisposed if the container has been
// closed.
func (m *ShardedMap[K, V]) AddOrUpdate(key K, addValue V, updateFn func(key K, existing V) V) (V, error) {
	if m.isDisposed() {
		var zero V
		return zero, ErrDisposed
	}
	sh := m.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	old, existed := sh.store.TryGet(key)
	var final V
	if existed {
		final = updateFn(key, old)
		sh.store.Set(key, final)
		m.updateIndices(old, final)
		m.bus.Emit(changebus.Notification[V]{Action: changebus.Updated, Item: &final})
	} else {
		final = addValue
		sh.store.Set(key, final)
		m.addToIndices(final)
		m.bus.Emit(changebus.Notification[V]{Action: changebus.Added, Item: &final})
	}
	return final, nil
}

// Remove deletes key if present, returning its value and true. It returns
// ErrDisposed if the container has been closed.
func (m *ShardedMap[K, V]) Remove(key K) (V, bool, error) {
	if m.isDisposed() {
		var zero V
		return zero, false, ErrDisposed
	}
	sh := m.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.store.Remove(key)
	if !ok {
		return v, false, nil
	}
	m.removeFromIndices(v)
	m.bus.Emit(changebus.Notification[V]{Action: changebus.Removed, Item: &v})
	return v, true, nil
}

// Count returns the total number of live entries across every shard.
func (m *ShardedMap[K, V]) Count() int {
	total := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		total += sh.store.Count()
		sh.mu.RUnlock()
	}
	return total
}

// Keys returns a snapshot slice of every live key across all shards.
func (m *ShardedMap[K, V]) Keys() []K {
	out := make([]K, 0, m.Count())
	for _, sh := range m.shards {
		sh.mu.RLock()
		out = append(out, sh.store.Keys()...)
		sh.mu.RUnlock()
	}
	return out
}

// Values returns a snapshot slice of every live value across all shards.
// Equivalent to Snapshot, provided under the name spec callers expect
// alongside Keys.
func (m *ShardedMap[K, V]) Values() []V {
	return m.Snapshot()
}

// Snapshot returns a copy of every live value across all shards. It locks
// shards one at a time (not all at once), so a concurrent writer may be
// reflected or not depending on timing, but the returned slice itself is
// an independent copy safe to range over.
func (m *ShardedMap[K, V]) Snapshot() []V {
	out := make([]V, 0, m.Count())
	for _, sh := range m.shards {
		sh.mu.RLock()
		out = append(out, sh.store.Values()...)
		sh.mu.RUnlock()
	}
	return out
}

// Clear empties every shard and every registered index, emitting a single
// Cleared notification. It returns ErrDisposed if the container has been
// closed.
func (m *ShardedMap[K, V]) Clear() error {
	if m.isDisposed() {
		return ErrDisposed
	}
	m.lockAllAscending()
	for _, sh := range m.shards {
		sh.store.Clear()
	}
	m.unlockAllDescending()

	m.indexMu.Lock()
	for _, adapter := range m.indices {
		adapter.rebuild(nil)
	}
	m.indexMu.Unlock()

	m.bus.Emit(changebus.Notification[V]{Action: changebus.Cleared})
	return nil
}

func (m *ShardedMap[K, V]) lockAllAscending() {
	for _, sh := range m.shards {
		sh.mu.Lock()
	}
}

func (m *ShardedMap[K, V]) unlockAllDescending() {
	for i := len(m.shards) - 1; i >= 0; i-- {
		m.shards[i].mu.Unlock()
	}
}

// Entry pairs a key with its value for bulk operations.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// AddRange inserts every key/value pair, fanning out across shards with
// errgroup once len(entries) reaches parallelThreshold, and emits a
// single BatchAdded notification carrying the value of every entry,
// including entries that overwrote an existing key. It returns
// ErrDisposed if the container has been closed.
func (m *ShardedMap[K, V]) AddRange(entries []Entry[K, V]) error {
	if len(entries) == 0 {
		return nil
	}
	if m.isDisposed() {
		return ErrDisposed
	}
	byShard := m.partitionByShard(entries)

	var replaced [shardCount][]V
	apply := func(idx int) {
		items := byShard[idx]
		if len(items) == 0 {
			return
		}
		sh := m.shards[idx]
		sh.mu.Lock()
		for _, e := range items {
			if old, ok := sh.store.TryGet(e.Key); ok {
				replaced[idx] = append(replaced[idx], old)
			}
			sh.store.Set(e.Key, e.Value)
		}
		sh.mu.Unlock()
	}

	if len(entries) >= parallelThreshold {
		var g errgroup.Group
		for i := range m.shards {
			i := i
			g.Go(func() error { apply(i); return nil })
		}
		_ = g.Wait()
	} else {
		for i := range m.shards {
			apply(i)
		}
	}

	for _, olds := range replaced {
		for _, old := range olds {
			m.removeFromIndices(old)
		}
	}
	values := make([]V, len(entries))
	for i, e := range entries {
		values[i] = e.Value
		m.addToIndices(e.Value)
	}
	batch := pool.NewBatch(m.pool, values)
	m.bus.Emit(changebus.Notification[V]{Action: changebus.BatchAdded, Batch: batch})
	return nil
}

func (m *ShardedMap[K, V]) partitionByShard(entries []Entry[K, V]) [shardCount][]Entry[K, V] {
	var byShard [shardCount][]Entry[K, V]
	for _, e := range entries {
		idx := shardIndexFor(e.Key)
		byShard[idx] = append(byShard[idx], e)
	}
	return byShard
}

// RemoveRange deletes every key present in keys, fanning out across
// shards for large batches, and emits a single BatchRemoved notification
// carrying every value that was actually present. It returns ErrDisposed
// if the container has been closed.
func (m *ShardedMap[K, V]) RemoveRange(keys []K) error {
	if len(keys) == 0 {
		return nil
	}
	if m.isDisposed() {
		return ErrDisposed
	}
	var byShard [shardCount][]K
	for _, k := range keys {
		idx := shardIndexFor(k)
		byShard[idx] = append(byShard[idx], k)
	}

	removedCh := make(chan []V, shardCount)
	apply := func(idx int) {
		ks := byShard[idx]
		if len(ks) == 0 {
			removedCh <- nil
			return
		}
		sh := m.shards[idx]
		removed := make([]V, 0, len(ks))
		sh.mu.Lock()
		for _, k := range ks {
			if v, ok := sh.store.Remove(k); ok {
				removed = append(removed, v)
			}
		}
		sh.mu.Unlock()
		removedCh <- removed
	}

	if len(keys) >= parallelThreshold {
		var g errgroup.Group
		for i := range m.shards {
			i := i
			g.Go(func() error { apply(i); return nil })
		}
		_ = g.Wait()
	} else {
		for i := range m.shards {
			apply(i)
		}
	}
	close(removedCh)

	var removed []V
	for rs := range removedCh {
		removed = append(removed, rs...)
	}
	for _, v := range removed {
		m.removeFromIndices(v)
	}

	batch := pool.NewBatch(m.pool, removed)
	m.bus.Emit(changebus.Notification[V]{Action: changebus.BatchRemoved, Batch: batch})
	return nil
}

// RemoveMany deletes every value matching predicate, scanning each shard
// under its own write lock, and emits a single BatchOp notification
// carrying every removed value (not BatchRemoved: a predicate scan is
// conceptually the same "arbitrary bulk edit" shape as Edit, not a
// caller-supplied key list). It returns ErrDisposed if the container has
// been closed.
func (m *ShardedMap[K, V]) RemoveMany(predicate func(V) bool) error {
	if m.isDisposed() {
		return ErrDisposed
	}
	var removed []V
	for _, sh := range m.shards {
		sh.mu.Lock()
		var keys []K
		sh.store.Iterate(func(k K, v V) bool {
			if predicate(v) {
				keys = append(keys, k)
			}
			return true
		})
		for _, k := range keys {
			if v, ok := sh.store.Remove(k); ok {
				removed = append(removed, v)
			}
		}
		sh.mu.Unlock()
	}

	for _, v := range removed {
		m.removeFromIndices(v)
	}

	batch := pool.NewBatch(m.pool, removed)
	m.bus.Emit(changebus.Notification[V]{Action: changebus.BatchOp, Batch: batch})
	return nil
}

// Editor exposes raw shard access to a function passed to Edit, while
// every shard lock is held for the duration of the call.
type Editor[K comparable, V any] struct {
	m *ShardedMap[K, V]
}

// Set mutates the container from inside an Edit callback. Index updates
// are deferred to the end of Edit so a single rebuild suffices no matter
// how many keys the callback touches.
func (e *Editor[K, V]) Set(key K, value V) {
	sh := e.m.shardFor(key)
	sh.store.Set(key, value)
}

// Remove mutates the container from inside an Edit callback.
func (e *Editor[K, V]) Remove(key K) {
	sh := e.m.shardFor(key)
	sh.store.Remove(key)
}

// Edit acquires every shard's write lock (ascending order) for the
// duration of fn, giving fn a consistent, atomic view across the whole
// container. After fn returns, every registered index is rebuilt from a
// fresh snapshot (cheaper to reason about than tracking which keys fn
// touched) and a single BatchOp notification is emitted. It returns
// ErrDisposed if the container has been closed.
func (m *ShardedMap[K, V]) Edit(fn func(*Editor[K, V])) error {
	if m.isDisposed() {
		return ErrDisposed
	}
	m.lockAllAscending()
	fn(&Editor[K, V]{m: m})
	values := make([]V, 0)
	for _, sh := range m.shards {
		values = append(values, sh.store.Values()...)
	}
	m.unlockAllDescending()

	m.indexMu.Lock()
	for _, adapter := range m.indices {
		adapter.rebuild(values)
	}
	m.indexMu.Unlock()

	m.bus.Emit(changebus.Notification[V]{Action: changebus.BatchOp})
	return nil
}

func (m *ShardedMap[K, V]) addToIndices(value V) {
	m.indexMu.RLock()
	defer m.indexMu.RUnlock()
	for _, adapter := range m.indices {
		adapter.add(value)
	}
}

func (m *ShardedMap[K, V]) removeFromIndices(value V) {
	m.indexMu.RLock()
	defer m.indexMu.RUnlock()
	for _, adapter := range m.indices {
		adapter.remove(value)
	}
}

func (m *ShardedMap[K, V]) updateIndices(oldValue, newValue V) {
	m.indexMu.RLock()
	defer m.indexMu.RUnlock()
	for _, adapter := range m.indices {
		adapter.update(oldValue, newValue)
	}
}

// AddMapIndex registers a named secondary index over m's values, keyed by
// keyFn, and immediately backfills it from every value currently
// present. Registering an already-registered name replaces it: the old
// index is dropped and a fresh one is built in its place, matching the
// container's "last registration wins" indexing policy.
func AddMapIndex[K comparable, V any, K2 comparable](m *ShardedMap[K, V], name string, keyFn func(V) K2) *index.SecondaryIndex[V, K2] {
	idx := index.New[V, K2](keyFn)

	m.indexMu.Lock()
	m.indices[name] = &boundIndex[V, K2]{idx: idx}
	m.rawIndices[name] = idx
	m.indexMu.Unlock()

	idx.Rebuild(m.Snapshot())
	return idx
}

// GetItemsBySecondaryIndex returns the posting list for key under the
// named index, or ErrInvalidIndexName if name was never registered (or
// was registered with a different derived-key type).
func GetItemsBySecondaryIndex[K comparable, V any, K2 comparable](m *ShardedMap[K, V], name string, key K2) ([]V, error) {
	m.indexMu.RLock()
	raw, ok := m.rawIndices[name]
	m.indexMu.RUnlock()
	if !ok {
		return nil, ErrInvalidIndexName
	}
	idx, ok := raw.(*index.SecondaryIndex[V, K2])
	if !ok {
		return nil, ErrInvalidIndexName
	}
	return idx.Get(key), nil
}

// ItemMatchesSecondaryIndex reports whether item belongs in key's posting
// list under the named index, or ErrInvalidIndexName if name was never
// registered (or was registered with a different derived-key type).
func ItemMatchesSecondaryIndex[K comparable, V any, K2 comparable](m *ShardedMap[K, V], name string, item V, key K2) (bool, error) {
	m.indexMu.RLock()
	raw, ok := m.rawIndices[name]
	m.indexMu.RUnlock()
	if !ok {
		return false, ErrInvalidIndexName
	}
	idx, ok := raw.(*index.SecondaryIndex[V, K2])
	if !ok {
		return false, ErrInvalidIndexName
	}
	return idx.Matches(item, key), nil
}

// Close stops the container's change bus. After Close, every mutating
// operation returns ErrDisposed instead of touching the underlying
// shards; Close itself waits for the drainer to finish any in-flight
// notification. Safe to call more than once.
func (m *ShardedMap[K, V]) Close() {
	if !m.disposed.CompareAndSwap(false, true) {
		return
	}
	m.bus.Close()
}
