// Package hashtable implements the single-threaded leaf stores that back
// each shard of a ShardedList or ShardedMap: an open-addressed hash table
// with a chained free list (ShardMap) and a pooled dynamic array
// (ShardList). Neither type is safe for concurrent use on its own — the
// sharded containers in internal/collection own one instance per shard and
// guard every access with that shard's RWMutex.
package hashtable

import (
	"fmt"
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
)

// goldenRatio32 is the 32-bit fractional part of the golden ratio, used to
// spread low-entropy hash codes across the high bits. The sharded
// containers pick a shard from the top bits of the mixed value, so without
// this step sequential integer keys (very common in practice) would all
// land in the same shard; bucket indices come from the low bits.
const goldenRatio32 uint32 = 0x9E3779B9

var seed = maphash.MakeSeed()

// Hashable lets a key type supply its own hash code, the Go analogue of a
// custom IEqualityComparer<K>. Types that don't implement it fall back to a
// small set of fast paths for common primitive kinds, and finally to a
// generic (slower) string-encoding path.
type Hashable interface {
	Hash() uint32
}

// HashKey computes the raw hash code for a key before sign-bit masking and
// golden-ratio mixing (applied by Mix). Implementations must be pure and
// deterministic for the lifetime of a table — changing the hash of a live
// key corrupts the bucket chains.
func HashKey[K comparable](key K) uint32 {
	switch v := any(key).(type) {
	case Hashable:
		return v.Hash()
	case string:
		return uint32(xxhash.Sum64String(v))
	case int:
		return uint32(v) ^ uint32(uint64(v)>>32)
	case int32:
		return uint32(v)
	case int64:
		return uint32(v) ^ uint32(uint64(v)>>32)
	case uint32:
		return v
	case uint64:
		return uint32(v) ^ uint32(v>>32)
	case uint:
		return uint32(v) ^ uint32(uint64(v)>>32)
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return uint32(xxhash.Sum64String(fmt.Sprintf("%g", v)))
	default:
		// Slow path: arbitrary comparable structs. Not on the hot path for
		// the shipped key types (string/int/uint keys), but keeps the
		// table generic for any comparable key a caller defines.
		var h maphash.Hash
		h.SetSeed(seed)
		_, _ = h.WriteString(fmt.Sprintf("%#v", v))
		return uint32(h.Sum64())
	}
}

// Mix masks off the sign bit of h and multiplies by the 32-bit golden
// ratio constant, matching the distribution strategy used by every
// ShardMap bucket computation.
func Mix(h uint32) uint32 {
	return (h &^ (1 << 31)) * goldenRatio32
}

// BucketOf returns the bucket index for a mixed hash in a table of
// numBuckets slots. numBuckets must be a power of two.
func BucketOf(mixedHash uint32, numBuckets int) int {
	return int(mixedHash) & (numBuckets - 1)
}

// NextPowerOfTwo returns the smallest power of two >= n, with a floor of 1.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
