package view

import (
	"time"

	"github.com/dreamware/shardflow/internal/changebus"
	"github.com/dreamware/shardflow/internal/index"
)

// NewIndexed builds a View whose membership tracks a single posting list
// of a secondary index: every item for which idx.Matches(item, key) holds.
// It is always FullRebuild, since a value replacement (Updated) or any
// BatchOp can move items in or out of the posting list in ways a View
// cannot infer from the notification alone — the index itself has already
// been updated by the container before the notification is emitted, so
// re-deriving from idx.Get(key) is always correct and cheap relative to a
// full container scan.
func NewIndexed[T comparable, K comparable](
	bus *changebus.Bus[T],
	idx *index.SecondaryIndex[T, K],
	key K,
	throttle time.Duration,
	scheduler func(func()),
) *View[T] {
	snapshotFn := func() []T { return idx.Get(key) }
	filter := func(item T) bool { return idx.Matches(item, key) }
	return New(bus, snapshotFn(), filter, throttle, scheduler, FullRebuild, snapshotFn)
}
