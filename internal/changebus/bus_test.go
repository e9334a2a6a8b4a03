package changebus

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardflow/internal/pool"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met before timeout")
}

func TestBusFastPathDropsWithoutSubscribers(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	p := pool.NewSlicePool[int](8)
	batch := pool.NewBatch(p, []int{1, 2, 3})
	bus.Emit(Notification[int]{Action: BatchAdded, Batch: batch})

	assert.True(t, batch.IsDisposed())
}

func TestBusDeliversInOrderAndDisposes(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	var mu sync.Mutex
	var seen []Action
	sub := bus.Subscribe(func(n Notification[int]) {
		mu.Lock()
		seen = append(seen, n.Action)
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	p := pool.NewSlicePool[int](8)
	batch := pool.NewBatch(p, []int{1, 2, 3})

	bus.Emit(Notification[int]{Action: Added})
	bus.Emit(Notification[int]{Action: Removed})
	bus.Emit(Notification[int]{Action: BatchAdded, Batch: batch})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Action{Added, Removed, BatchAdded}, seen)
	assert.True(t, batch.IsDisposed())
}

func TestBusLegacySinkReceivesResetForBatch(t *testing.T) {
	var mu sync.Mutex
	var events []LegacyEvent
	bus := New[int](WithLegacySink[int](func(e LegacyEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}, nil))
	defer bus.Close()

	p := pool.NewSlicePool[int](8)
	batch := pool.NewBatch(p, []int{1, 2})
	bus.Emit(Notification[int]{Action: BatchAdded, Batch: batch})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, Reset, events[0].Action)
	assert.True(t, batch.IsDisposed())
}

func TestBusDisposesBatchEvenWhenSubscriberPanics(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	sub := bus.Subscribe(func(Notification[int]) {
		panic("boom")
	})
	defer sub.Unsubscribe()

	p := pool.NewSlicePool[int](8)
	batch := pool.NewBatch(p, []int{1, 2, 3})
	bus.Emit(Notification[int]{Action: BatchAdded, Batch: batch})

	waitFor(t, time.Second, func() bool { return batch.IsDisposed() })
}

func TestBusMetricsCountDropsAndDrains(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")
	bus := New[int](WithMetrics[int](metrics))
	defer bus.Close()

	p := pool.NewSlicePool[int](8)
	bus.Emit(Notification[int]{Action: Added, Batch: nil})

	sub := bus.Subscribe(func(Notification[int]) {})
	defer sub.Unsubscribe()

	batch := pool.NewBatch(p, []int{1})
	bus.Emit(Notification[int]{Action: BatchAdded, Batch: batch})

	waitFor(t, time.Second, func() bool { return batch.IsDisposed() })

	counterTotals := func() map[string]float64 {
		totals := make(map[string]float64)
		families, err := reg.Gather()
		require.NoError(t, err)
		for _, mf := range families {
			for _, m := range mf.GetMetric() {
				if c := m.GetCounter(); c != nil {
					totals[mf.GetName()] += c.GetValue()
				}
			}
		}
		return totals
	}
	waitFor(t, time.Second, func() bool {
		return counterTotals()["test_changebus_notifications_drained_total"] == 1
	})
	totals := counterTotals()
	assert.Equal(t, float64(1), totals["test_changebus_notifications_dropped_total"])
	assert.Equal(t, float64(1), totals["test_changebus_notifications_enqueued_total"])
}
