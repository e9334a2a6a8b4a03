// Package view implements the reactive view layer: a read-only observable
// list derived from a container's change-notification stream, a static or
// dynamic predicate, and a throttle that buffers notifications into
// time-windowed batches before applying them.
//
// Grounded on the teacher's cmd/coordinator handlers, which build derived
// read models (cluster state summaries) from the authoritative store on
// demand; here the derived read model instead incrementally tracks a
// live, filtered subset and announces updates through a channel instead
// of an HTTP response.
package view

import (
	"sync"
	"time"

	"github.com/dreamware/shardflow/internal/changebus"
)

// RebuildMode controls how a View reacts to Updated and BatchOp
// notifications, which do not carry enough information to patch a filtered
// list incrementally.
type RebuildMode int

const (
	// Ignore drops Updated/BatchOp notifications, appropriate for a
	// static-predicate view over a list where values are never replaced
	// in place.
	Ignore RebuildMode = iota
	// FullRebuild re-derives the entire view from a fresh snapshot,
	// appropriate for map/dictionary views and index views where a value
	// replacement can move an item in or out of the filtered set.
	FullRebuild
)

// View is a derived, read-only observable list maintained by applying
// throttled notifications from a changebus.Bus under a predicate.
type View[T comparable] struct {
	mu     sync.Mutex
	items  []T
	filter func(T) bool

	mode       RebuildMode
	snapshotFn func() []T

	scheduler func(func())

	sub   *changebus.Subscription
	buf   []bufferedEvent[T]
	bufMu sync.Mutex

	changed chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// bufferedEvent is the view's own copy of a notification, captured
// synchronously inside the bus subscriber handler. It must never hold onto
// a *pool.Batch: the Bus disposes the batch the instant every subscriber's
// handler call returns, which can be well before the view's throttle loop
// next wakes up to apply buffered events.
type bufferedEvent[T any] struct {
	action changebus.Action
	item   *T
	items  []T
}

// New builds a View over bus, seeded from snapshot filtered by filter, and
// subscribes with the given throttle. scheduler runs each throttle tick's
// batch of list mutations (pass nil to run them directly on the view's own
// background goroutine). mode controls Updated/BatchOp handling; snapshotFn
// is required when mode is FullRebuild and is called to re-derive the view
// from scratch.
func New[T comparable](
	bus *changebus.Bus[T],
	snapshot []T,
	filter func(T) bool,
	throttle time.Duration,
	scheduler func(func()),
	mode RebuildMode,
	snapshotFn func() []T,
) *View[T] {
	v := &View[T]{
		filter:     filter,
		mode:       mode,
		snapshotFn: snapshotFn,
		scheduler:  scheduler,
		changed:    make(chan struct{}, 1),
		closeCh:    make(chan struct{}),
	}
	for _, item := range snapshot {
		if filter(item) {
			v.items = append(v.items, item)
		}
	}

	v.sub = bus.Subscribe(func(n changebus.Notification[T]) {
		ev := bufferedEvent[T]{action: n.Action, item: n.Item}
		if n.Batch != nil {
			// Copy out now: the batch is disposed as soon as this handler
			// returns.
			src := n.Batch.Items()
			ev.items = make([]T, len(src))
			copy(ev.items, src)
		}
		v.bufMu.Lock()
		v.buf = append(v.buf, ev)
		v.bufMu.Unlock()
	})

	v.wg.Add(1)
	go v.throttleLoop(throttle)

	return v
}

func (v *View[T]) throttleLoop(throttle time.Duration) {
	defer v.wg.Done()
	if throttle <= 0 {
		throttle = time.Millisecond
	}
	ticker := time.NewTicker(throttle)
	defer ticker.Stop()

	for {
		select {
		case <-v.closeCh:
			v.drain()
			return
		case <-ticker.C:
			v.drain()
		}
	}
}

func (v *View[T]) drain() {
	v.bufMu.Lock()
	if len(v.buf) == 0 {
		v.bufMu.Unlock()
		return
	}
	batch := v.buf
	v.buf = nil
	v.bufMu.Unlock()

	apply := func() {
		v.mu.Lock()
		for _, n := range batch {
			v.apply(n)
		}
		v.mu.Unlock()
		select {
		case v.changed <- struct{}{}:
		default:
		}
	}
	if v.scheduler != nil {
		v.scheduler(apply)
	} else {
		apply()
	}
}

// apply folds one buffered event into v.items. Caller holds v.mu.
func (v *View[T]) apply(ev bufferedEvent[T]) {
	switch ev.action {
	case changebus.Added:
		if ev.item != nil && v.filter(*ev.item) {
			v.items = append(v.items, *ev.item)
		}
	case changebus.Removed:
		if ev.item != nil {
			v.removeValue(*ev.item)
		}
	case changebus.BatchAdded:
		for _, item := range ev.items {
			if v.filter(item) {
				v.items = append(v.items, item)
			}
		}
	case changebus.BatchRemoved:
		for _, item := range ev.items {
			v.removeValue(item)
		}
	case changebus.Cleared:
		v.items = v.items[:0]
	case changebus.Updated, changebus.BatchOp:
		if v.mode == FullRebuild && v.snapshotFn != nil {
			v.rebuildLocked()
		}
	}
}

func (v *View[T]) removeValue(item T) {
	for i, existing := range v.items {
		if existing == item {
			v.items = append(v.items[:i], v.items[i+1:]...)
			return
		}
	}
}

func (v *View[T]) rebuildLocked() {
	fresh := v.snapshotFn()
	v.items = v.items[:0]
	for _, item := range fresh {
		if v.filter(item) {
			v.items = append(v.items, item)
		}
	}
}

// Items returns a snapshot of the view's current contents, in application
// order.
func (v *View[T]) Items() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]T, len(v.items))
	copy(out, v.items)
	return out
}

// Changed returns a channel that receives a value after every throttle
// tick that applied at least one notification. The channel is buffered
// (capacity 1): a consumer that misses a tick simply observes the latest
// state on its next read of Items.
func (v *View[T]) Changed() <-chan struct{} {
	return v.changed
}

// Dispose unsubscribes from the bus and stops the view's throttle loop.
// The underlying container is not affected.
func (v *View[T]) Dispose() {
	v.sub.Unsubscribe()
	close(v.closeCh)
	v.wg.Wait()
}
