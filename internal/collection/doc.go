// Package collection implements the sharded, thread-safe, reactive
// containers that sit on top of internal/hashtable's single-threaded leaf
// stores: ShardedMap and ShardedList.
//
// Sharding strategy:
//   - Every container fans its keys across shardCount (4) independent
//     leaf stores, each guarded by its own sync.RWMutex, so that
//     uncontended operations against different shards never block each
//     other.
//   - A key's shard is chosen from the top two bits of its golden-ratio
//     mixed hash (internal/hashtable.Mix), while the leaf store picks its
//     bucket from the low bits of that same mixed value. Deriving both
//     from disjoint bit ranges of one mix call keeps shard placement and
//     intra-shard bucket placement statistically independent without a
//     second hash pass.
//   - Whole-container operations (Clear, Edit) acquire every shard lock
//     in ascending shard-index order and release in descending order,
//     the standard deadlock-avoidance discipline for multi-lock
//     operations: as long as every caller orders its locks the same way,
//     no cycle can form. Snapshot, Count, Keys and Values instead take
//     each shard's read lock one at a time.
//
// Reactivity:
//   - Every mutation emits a internal/changebus.Notification describing
//     what changed. Single-key mutations emit while still holding the
//     owning shard's write lock, so that two racing mutations of the same
//     key are guaranteed to enqueue their notifications in the same order
//     they were applied to the store.
//   - Bulk operations (AddRange, RemoveRange, RemoveMany, Edit) apply
//     across shards first, then emit a single batch notification once
//     every shard's mutation has landed. AddRange and RemoveRange fan
//     the per-shard work out with golang.org/x/sync/errgroup once the
//     batch is large enough to be worth the goroutine overhead.
//
// Secondary indices are optional, named, derived-key multimaps
// (internal/index.SecondaryIndex) kept in sync with every mutation. A
// container holds its registered indices behind a single mutex, separate
// from the per-shard locks, because an index spans every shard's data by
// construction.
package collection
