package hashtable

// ShardList is a single-threaded, pooled dynamic array supporting
// tail-append, mid-removal with a tail shift, and span access. It is the
// leaf store behind each shard of a ShardedList.
type ShardList[T comparable] struct {
	items []T
}

// NewShardList creates an empty list with at least minCap capacity
// (rounded up to a power of two, floor 16).
func NewShardList[T comparable](minCap int) *ShardList[T] {
	n := NextPowerOfTwo(minCap)
	if n < 16 {
		n = 16
	}
	return &ShardList[T]{items: make([]T, 0, n)}
}

// Len returns the logical element count.
func (l *ShardList[T]) Len() int {
	return len(l.items)
}

// Push appends item, doubling capacity on overflow.
func (l *ShardList[T]) Push(item T) {
	l.items = append(l.items, item)
}

// Get returns the element at i. Callers must check 0 <= i < Len().
func (l *ShardList[T]) Get(i int) T {
	return l.items[i]
}

// Set overwrites the element at i.
func (l *ShardList[T]) Set(i int, item T) {
	l.items[i] = item
}

// RemoveAt removes the element at i, shifting the tail down by one.
// Returns false if i is out of range.
func (l *ShardList[T]) RemoveAt(i int) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	copy(l.items[i:], l.items[i+1:])
	var zero T
	l.items[len(l.items)-1] = zero
	l.items = l.items[:len(l.items)-1]
	return true
}

// RemoveValue finds the first element equal to item via a linear scan and
// removes it, returning true if found.
func (l *ShardList[T]) RemoveValue(item T) bool {
	for i, v := range l.items {
		if v == item {
			return l.RemoveAt(i)
		}
	}
	return false
}

// Contains reports whether item is present via a linear scan.
func (l *ShardList[T]) Contains(item T) bool {
	for _, v := range l.items {
		if v == item {
			return true
		}
	}
	return false
}

// Clear empties the list, keeping its current capacity.
func (l *ShardList[T]) Clear() {
	l.items = l.items[:0]
}

// AddRange appends every element of items, in order.
func (l *ShardList[T]) AddRange(items []T) {
	l.items = append(l.items, items...)
}

// AsSpan returns the live backing slice. Callers must not retain it past
// the next mutating call on this ShardList.
func (l *ShardList[T]) AsSpan() []T {
	return l.items
}

// CopyTo copies every element into dst starting at index, panicking if
// dst is too short — matching the contract of Go's built-in copy when the
// caller has not sized dst correctly.
func (l *ShardList[T]) CopyTo(dst []T, index int) {
	if index+len(l.items) > len(dst) {
		panic("hashtable: CopyTo destination too small")
	}
	copy(dst[index:], l.items)
}
