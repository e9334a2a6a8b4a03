// Package index implements the secondary-index multimap maintained by a
// ShardedList or ShardedMap: a derived key function mapping live items to
// a posting list. Grounded on the teacher's
// internal/coordinator.ShardRegistry, which maintains an analogous
// name/derived-key -> assignment map under a single RWMutex; here the
// "assignment" is a posting set of items instead of a single node.
package index

import "sync"

// SecondaryIndex is a multimap from a derived key K to the set of live
// items whose keyFn produces that key. It holds item copies — it is a
// data index, not an owner; removing an item from the index does not
// affect the container's logical lifetime (spec: indices hold weak
// semantic references).
//
// T must be comparable so the posting list can be represented as a set
// (map[T]struct{}) with O(1) membership and removal; this is a deliberate
// simplification of the source design's identity-vs-value equality split,
// recorded as an Open Question resolution in DESIGN.md.
type SecondaryIndex[T comparable, K comparable] struct {
	mu       sync.RWMutex
	keyFn    func(T) K
	postings map[K]map[T]struct{}
}

// New creates an index keyed by keyFn, initially empty.
func New[T comparable, K comparable](keyFn func(T) K) *SecondaryIndex[T, K] {
	return &SecondaryIndex[T, K]{
		keyFn:    keyFn,
		postings: make(map[K]map[T]struct{}),
	}
}

// Add inserts item into the posting list for keyFn(item).
func (idx *SecondaryIndex[T, K]) Add(item T) {
	k := idx.keyFn(item)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	set, ok := idx.postings[k]
	if !ok {
		set = make(map[T]struct{})
		idx.postings[k] = set
	}
	set[item] = struct{}{}
}

// Remove deletes item from the posting list for keyFn(item), pruning the
// list entirely once it becomes empty.
func (idx *SecondaryIndex[T, K]) Remove(item T) {
	k := idx.keyFn(item)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	set, ok := idx.postings[k]
	if !ok {
		return
	}
	delete(set, item)
	if len(set) == 0 {
		delete(idx.postings, k)
	}
}

// Update moves item from its old derived key to its new one, emitting the
// removed(old)/added(new) pair described by the container's indexing
// policy for value replacement.
func (idx *SecondaryIndex[T, K]) Update(oldItem, newItem T) {
	idx.Remove(oldItem)
	idx.Add(newItem)
}

// Get returns a snapshot slice of the posting list for key, empty (not
// nil) if key has no entries.
func (idx *SecondaryIndex[T, K]) Get(key K) []T {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set := idx.postings[key]
	out := make([]T, 0, len(set))
	for item := range set {
		out = append(out, item)
	}
	return out
}

// Matches reports whether keyFn(item) == key.
func (idx *SecondaryIndex[T, K]) Matches(item T, key K) bool {
	return idx.keyFn(item) == key
}

// Rebuild discards all postings and re-derives them from items, used when
// an index is registered against a container that already holds data.
func (idx *SecondaryIndex[T, K]) Rebuild(items []T) {
	idx.mu.Lock()
	idx.postings = make(map[K]map[T]struct{})
	idx.mu.Unlock()

	for _, item := range items {
		idx.Add(item)
	}
}
