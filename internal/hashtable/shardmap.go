package hashtable

import "fmt"

// entry is one slot of a ShardMap's entry array.
//
// next encodes three disjoint states:
//   - next >= 0:  the index of the next entry in this bucket's chain
//   - next == -1: end of chain
//   - next <= -2: this entry is free; the previous free-list head is
//     -3-next (see ShardMap.freeList), so the last entry of the free
//     list, whose previous head was the empty list (-1), holds -2
type entry[K comparable, V any] struct {
	key   K
	value V
	hash  uint32
	next  int32
}

const (
	endOfChain   int32 = -1
	freeListBase int32 = -3
)

// ShardMap is a single-threaded, open-addressed hash table with chained
// buckets, a free list for reclaimed slots, and a value-reference upsert
// primitive. It is the leaf store behind each shard of a ShardedMap.
//
// Invariant (checked by tests; find panics if a probe reaches a free-list
// entry): count equals
// highWater minus freeCount, every live entry is reachable from exactly
// one bucket chain, and every free entry is reachable from the free list.
type ShardMap[K comparable, V any] struct {
	buckets   []int32 // 1-based entry index; 0 means empty
	entries   []entry[K, V]
	highWater int32 // number of entries ever allocated (<= len(entries))
	freeList  int32 // -1 if empty
	freeCount int32
}

// NewShardMap creates an empty table with at least minBuckets slots
// (rounded up to a power of two, floor 16).
func NewShardMap[K comparable, V any](minBuckets int) *ShardMap[K, V] {
	n := NextPowerOfTwo(minBuckets)
	if n < 16 {
		n = 16
	}
	return &ShardMap[K, V]{
		buckets:  make([]int32, n),
		entries:  make([]entry[K, V], 0, n),
		freeList: endOfChain,
	}
}

// Count returns the number of live entries.
func (m *ShardMap[K, V]) Count() int {
	return int(m.highWater - m.freeCount)
}

func (m *ShardMap[K, V]) threshold() int {
	return (len(m.buckets) * 72) / 100
}

func (m *ShardMap[K, V]) bucketIndex(mixedHash uint32) int {
	return BucketOf(mixedHash, len(m.buckets))
}

// find returns the entry index for key, or -1 if absent.
func (m *ShardMap[K, V]) find(key K, mixedHash uint32) int32 {
	i := m.buckets[m.bucketIndex(mixedHash)] - 1
	for i >= 0 {
		e := &m.entries[i]
		if e.hash == mixedHash && e.key == key {
			return i
		}
		i = e.next
		if i < endOfChain {
			panic(fmt.Sprintf("hashtable: corrupt bucket chain (free-list entry reached while probing, next=%d)", i))
		}
	}
	return -1
}

// TryGet returns the value for key and true, or the zero value and false.
func (m *ShardMap[K, V]) TryGet(key K) (V, bool) {
	mixedHash := Mix(HashKey(key))
	if len(m.buckets) == 0 {
		var zero V
		return zero, false
	}
	i := m.find(key, mixedHash)
	if i < 0 {
		var zero V
		return zero, false
	}
	return m.entries[i].value, true
}

// ContainsKey reports whether key is present.
func (m *ShardMap[K, V]) ContainsKey(key K) bool {
	_, ok := m.TryGet(key)
	return ok
}

// GetValueRefOrAddDefault returns a pointer to the value slot for key,
// creating a zero-valued entry if key is absent. The returned pointer
// is valid until the next insert, Remove or Clear on this ShardMap (an
// insert may resize or grow the entry slice) — callers must not retain it
// across those.
func (m *ShardMap[K, V]) GetValueRefOrAddDefault(key K) (ref *V, existed bool) {
	mixedHash := Mix(HashKey(key))
	if i := m.find(key, mixedHash); i >= 0 {
		return &m.entries[i].value, true
	}
	idx := m.allocate(key, mixedHash)
	return &m.entries[idx].value, false
}

// TryAdd inserts key/value only if key is not already present. Returns
// false without modifying the table if key exists.
func (m *ShardMap[K, V]) TryAdd(key K, value V) bool {
	mixedHash := Mix(HashKey(key))
	if m.find(key, mixedHash) >= 0 {
		return false
	}
	idx := m.allocate(key, mixedHash)
	m.entries[idx].value = value
	return true
}

// Set unconditionally stores value at key, inserting or overwriting.
func (m *ShardMap[K, V]) Set(key K, value V) {
	ref, _ := m.GetValueRefOrAddDefault(key)
	*ref = value
}

// allocate links a brand-new entry for key into its bucket chain, reusing
// a free-list slot when available, and returns its index.
func (m *ShardMap[K, V]) allocate(key K, mixedHash uint32) int32 {
	var idx int32
	if m.freeCount > 0 {
		idx = m.freeList
		m.freeList = freeListBase - m.entries[idx].next
		m.freeCount--
	} else {
		if int(m.highWater) >= m.threshold() {
			m.resize(len(m.buckets) * 2)
		}
		if int(m.highWater) == len(m.entries) {
			m.entries = append(m.entries, entry[K, V]{})
		}
		idx = m.highWater
		m.highWater++
	}

	b := m.bucketIndex(mixedHash)
	m.entries[idx] = entry[K, V]{
		key:  key,
		hash: mixedHash,
		next: m.buckets[b] - 1,
	}
	m.buckets[b] = idx + 1
	return idx
}

// Remove deletes key if present, returning its value and true; otherwise
// the zero value and false.
func (m *ShardMap[K, V]) Remove(key K) (V, bool) {
	var zero V
	if len(m.buckets) == 0 {
		return zero, false
	}
	mixedHash := Mix(HashKey(key))
	b := m.bucketIndex(mixedHash)

	prev := int32(-1)
	i := m.buckets[b] - 1
	for i >= 0 {
		e := &m.entries[i]
		if e.hash == mixedHash && e.key == key {
			if prev < 0 {
				m.buckets[b] = e.next + 1
			} else {
				m.entries[prev].next = e.next
			}
			v := e.value
			e.key = zeroKey[K]()
			e.value = zero
			e.next = freeListBase - m.freeList
			m.freeList = i
			m.freeCount++
			return v, true
		}
		prev = i
		i = e.next
	}
	return zero, false
}

func zeroKey[K comparable]() K {
	var z K
	return z
}

// Clear empties the table, resetting counters but keeping the current
// bucket-array capacity.
func (m *ShardMap[K, V]) Clear() {
	for i := range m.buckets {
		m.buckets[i] = 0
	}
	m.entries = m.entries[:0]
	m.highWater = 0
	m.freeList = endOfChain
	m.freeCount = 0
}

// EnsureCapacity resizes the table so it can hold at least n live entries
// without triggering a resize during subsequent inserts, growing the
// bucket array to the smallest power of two satisfying the 0.72 load
// factor for n entries.
func (m *ShardMap[K, V]) EnsureCapacity(n int) {
	want := NextPowerOfTwo(int(float64(n)/0.72) + 1)
	if want > len(m.buckets) {
		m.resize(want)
	}
}

// resize grows the bucket array to newSize (a power of two) and relinks
// every live entry's chain; free-list entries are not relinked.
func (m *ShardMap[K, V]) resize(newSize int) {
	newBuckets := make([]int32, newSize)
	for i := int32(0); i < m.highWater; i++ {
		e := &m.entries[i]
		if e.next < endOfChain {
			continue // free-list entry, skip
		}
		b := BucketOf(e.hash, newSize)
		e.next = newBuckets[b] - 1
		newBuckets[b] = i + 1
	}
	m.buckets = newBuckets
}

// Iterate calls fn for every live entry in entry-array order (free slots
// are reused, so this is not insertion order). Stops early if fn returns
// false.
func (m *ShardMap[K, V]) Iterate(fn func(key K, value V) bool) {
	for i := int32(0); i < m.highWater; i++ {
		e := &m.entries[i]
		if e.next < endOfChain {
			continue
		}
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Keys returns a snapshot slice of every live key, in iteration order.
func (m *ShardMap[K, V]) Keys() []K {
	keys := make([]K, 0, m.Count())
	m.Iterate(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Values returns a snapshot slice of every live value, in iteration order.
func (m *ShardMap[K, V]) Values() []V {
	values := make([]V, 0, m.Count())
	m.Iterate(func(_ K, v V) bool {
		values = append(values, v)
		return true
	})
	return values
}
