package view

import (
	"sync"
	"time"

	"github.com/dreamware/shardflow/internal/changebus"
)

// DynamicView is a View whose predicate can change at runtime. Each
// predicate replacement discards the current filtered contents and
// re-derives them from a fresh snapshot, since there is no way to tell
// which previously-excluded items now belong without re-scanning.
type DynamicView[T comparable] struct {
	mu sync.Mutex

	bus        *changebus.Bus[T]
	snapshotFn func() []T
	throttle   time.Duration
	scheduler  func(func())

	inner *View[T]
}

// NewDynamic builds a DynamicView with an initial predicate. snapshotFn
// must return a fresh, current snapshot of the underlying container's
// contents on every call; it backs both Updated/BatchOp rebuilds and every
// call to SetPredicate.
func NewDynamic[T comparable](
	bus *changebus.Bus[T],
	snapshotFn func() []T,
	predicate func(T) bool,
	throttle time.Duration,
	scheduler func(func()),
) *DynamicView[T] {
	dv := &DynamicView[T]{
		bus:        bus,
		snapshotFn: snapshotFn,
		throttle:   throttle,
		scheduler:  scheduler,
	}
	dv.inner = New(bus, snapshotFn(), predicate, throttle, scheduler, FullRebuild, snapshotFn)
	return dv
}

// SetPredicate swaps the active predicate and rebuilds the view's contents
// from a fresh snapshot under the new predicate.
func (dv *DynamicView[T]) SetPredicate(predicate func(T) bool) {
	dv.mu.Lock()
	defer dv.mu.Unlock()

	dv.inner.Dispose()
	dv.inner = New(dv.bus, dv.snapshotFn(), predicate, dv.throttle, dv.scheduler, FullRebuild, dv.snapshotFn)
}

// Items returns the view's current contents.
func (dv *DynamicView[T]) Items() []T {
	dv.mu.Lock()
	inner := dv.inner
	dv.mu.Unlock()
	return inner.Items()
}

// Changed returns the active channel signaling applied throttle ticks. The
// channel identity may change across a SetPredicate call, so callers that
// select on it in a loop should re-fetch it after each receive.
func (dv *DynamicView[T]) Changed() <-chan struct{} {
	dv.mu.Lock()
	defer dv.mu.Unlock()
	return dv.inner.Changed()
}

// Dispose releases the active inner view's subscription and goroutine.
func (dv *DynamicView[T]) Dispose() {
	dv.mu.Lock()
	defer dv.mu.Unlock()
	dv.inner.Dispose()
}
