// Package changebus implements the unbounded multi-producer,
// single-consumer change-notification pipeline shared by every sharded
// container: producers call Emit from inside a shard's write-lock critical
// section (so Emit must never block), a single drainer goroutine publishes
// each notification to every reactive subscriber and to at most one legacy
// collection-changed sink, and disposes any carried batch payload exactly
// once.
//
// Grounded on the teacher's internal/coordinator.HealthMonitor: a
// background goroutine driven by a ticker and a cancellation channel,
// generalized here into a pure drain loop woken by a condition variable
// instead of a ticker (the bus has work the instant something is
// enqueued, unlike a periodic health sweep).
package changebus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dreamware/shardflow/internal/pool"
	"github.com/dreamware/shardflow/internal/telemetry"
)

// Action identifies the kind of mutation a Notification describes.
type Action int

const (
	Added Action = iota
	Removed
	Updated
	Cleared
	BatchAdded
	BatchRemoved
	BatchOp
)

// String renders the action for logging and metrics labels.
func (a Action) String() string {
	switch a {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Updated:
		return "updated"
	case Cleared:
		return "cleared"
	case BatchAdded:
		return "batch_added"
	case BatchRemoved:
		return "batch_removed"
	case BatchOp:
		return "batch_op"
	default:
		return "unknown"
	}
}

// Notification describes one container mutation. At most one of Item or
// Batch is set; Cleared carries neither.
type Notification[T any] struct {
	Action Action
	Item   *T
	Batch  *pool.Batch[T]
}

// Handler receives notifications delivered by a Bus's drainer, in
// drainer (enqueue) order. Handlers run synchronously inside the drainer
// goroutine and must not block or call back into the container that owns
// this Bus.
type Handler[T any] func(Notification[T])

// Subscription lets a caller stop receiving notifications.
type Subscription struct {
	unsubscribe func()
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.unsubscribe()
}

// Option configures a Bus at construction time.
type Option[T any] func(*Bus[T])

// WithMetrics attaches a Metrics sink updated at emit/drain points.
func WithMetrics[T any](m *Metrics) Option[T] {
	return func(b *Bus[T]) { b.metrics = m }
}

// WithLegacySink registers the single legacy collection-changed callback
// and, optionally, a dispatch function that marshals the callback onto a
// captured UI context. A nil dispatch means the sink is invoked inline on
// the drainer goroutine.
func WithLegacySink[T any](sink func(LegacyEvent), dispatch func(func())) Option[T] {
	return func(b *Bus[T]) {
		b.legacySink = sink
		b.dispatch = dispatch
	}
}

// Bus is the queue + drainer + subject triple described by the engine's
// change-notification pipeline.
type Bus[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Notification[T]
	closed bool
	done   chan struct{}

	subMu     sync.RWMutex
	subs      map[int]Handler[T]
	nextSubID int

	legacySink func(LegacyEvent)
	dispatch   func(func())

	metrics *Metrics
}

// New creates a Bus and starts its drainer goroutine.
func New[T any](opts ...Option[T]) *Bus[T] {
	b := &Bus[T]{
		subs: make(map[int]Handler[T]),
		done: make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

// Subscribe registers h to receive every future notification, returning a
// Subscription that can later remove it.
func (b *Bus[T]) Subscribe(h Handler[T]) *Subscription {
	b.subMu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subs[id] = h
	b.subMu.Unlock()

	return &Subscription{unsubscribe: func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
	}}
}

func (b *Bus[T]) hasSubscribers() bool {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subs) > 0
}

// Emit enqueues n for the drainer. It is lock-free with respect to any
// shard lock the caller holds (the only synchronization here is the bus's
// own queue mutex, held for a handful of instructions). Single-item
// mutators call it from inside their write-lock critical section so that
// per-shard enqueue order matches mutation order; bulk operations, Clear
// and Edit call it after releasing their shard locks.
//
// When there are no subscribers and no legacy sink, Emit takes the fast
// path: it drops the notification and disposes any carried batch
// immediately, without ever touching the queue.
func (b *Bus[T]) Emit(n Notification[T]) {
	if !b.hasSubscribers() && b.legacySink == nil {
		disposeNotification(n)
		if b.metrics != nil {
			b.metrics.dropped(n.Action)
		}
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		disposeNotification(n)
		return
	}
	b.queue = append(b.queue, n)
	depth := len(b.queue)
	b.cond.Signal()
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.enqueued(n.Action, depth)
	}
}

func disposeNotification[T any](n Notification[T]) {
	if n.Batch != nil {
		n.Batch.Dispose()
	}
}

// Close marks the bus closed and returns once the drainer has delivered
// every notification already queued. Emit calls made after Close dispose
// their notification without delivering it. Subscribers receive no
// completion signal; they simply stop receiving notifications.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
	<-b.done
}

func (b *Bus[T]) run() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.mu.Unlock()
			close(b.done)
			return
		}
		n := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.dispatchOne(n)
	}
}

// dispatchOne publishes n to every subscriber, then to the legacy sink if
// registered, and finally disposes any carried batch exactly once. The
// Bus — not the individual subscriber — is the terminal disposer: every
// subscriber handler runs synchronously before dispatchOne disposes the
// batch, so a view that needs the batch's contents must copy what it
// needs out of Items() during its handler call. See DESIGN.md for why
// single, bus-owned disposal was chosen over "whichever consumer
// finishes last disposes", which cannot satisfy exactly-once disposal
// when more than one view subscribes to the same bus.
func (b *Bus[T]) dispatchOne(n Notification[T]) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.L().Error("changebus: subscriber panic recovered", zap.Any("recovered", r), zap.String("action", n.Action.String()))
		}
		disposeNotification(n)
		if b.metrics != nil {
			b.metrics.drained(n.Action)
		}
	}()

	b.publish(n)

	if b.legacySink != nil {
		event := ToLegacyEvent(n)
		post := func() { b.legacySink(event) }
		if b.dispatch != nil {
			b.dispatch(post)
		} else {
			post()
		}
	}
}

func (b *Bus[T]) publish(n Notification[T]) {
	b.subMu.RLock()
	handlers := make([]Handler[T], 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.subMu.RUnlock()

	for _, h := range handlers {
		h(n)
	}
}
