package view

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardflow/internal/changebus"
	"github.com/dreamware/shardflow/internal/index"
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

func isEven(n int) bool { return n%2 == 0 }

func TestViewStaticFilterTracksAddRemove(t *testing.T) {
	bus := changebus.New[int]()
	defer bus.Close()

	v := New[int](bus, []int{2, 4}, isEven, time.Millisecond, nil, Ignore, nil)
	defer v.Dispose()

	one, three := 1, 3
	bus.Emit(changebus.Notification[int]{Action: changebus.Added, Item: &three})
	six := 6
	bus.Emit(changebus.Notification[int]{Action: changebus.Added, Item: &six})
	bus.Emit(changebus.Notification[int]{Action: changebus.Added, Item: &one})

	waitFor(t, time.Second, func() bool {
		return len(v.Items()) == 3
	})
	assert.ElementsMatch(t, []int{2, 4, 6}, v.Items())

	two := 2
	bus.Emit(changebus.Notification[int]{Action: changebus.Removed, Item: &two})

	waitFor(t, time.Second, func() bool {
		return len(v.Items()) == 2
	})
	assert.ElementsMatch(t, []int{4, 6}, v.Items())
}

func TestViewBatchAddedSurvivesBatchDisposal(t *testing.T) {
	bus := changebus.New[int]()
	defer bus.Close()

	v := New[int](bus, nil, isEven, time.Millisecond, nil, Ignore, nil)
	defer v.Dispose()

	p := pool.NewSlicePool[int](8)
	batch := pool.NewBatch(p, []int{1, 2, 3, 4, 5})
	bus.Emit(changebus.Notification[int]{Action: changebus.BatchAdded, Batch: batch})

	waitFor(t, time.Second, func() bool { return batch.IsDisposed() })
	waitFor(t, time.Second, func() bool { return len(v.Items()) == 2 })
	assert.ElementsMatch(t, []int{2, 4}, v.Items())
}

func TestViewBatchRemovedDropsMatchingItems(t *testing.T) {
	bus := changebus.New[int]()
	defer bus.Close()

	v := New[int](bus, []int{2, 4, 6, 8}, isEven, time.Millisecond, nil, Ignore, nil)
	defer v.Dispose()

	p := pool.NewSlicePool[int](8)
	batch := pool.NewBatch(p, []int{4, 8})
	bus.Emit(changebus.Notification[int]{Action: changebus.BatchRemoved, Batch: batch})

	waitFor(t, time.Second, func() bool { return len(v.Items()) == 2 })
	assert.ElementsMatch(t, []int{2, 6}, v.Items())
}

func TestViewClearedEmptiesItems(t *testing.T) {
	bus := changebus.New[int]()
	defer bus.Close()

	v := New[int](bus, []int{2, 4, 6}, isEven, time.Millisecond, nil, Ignore, nil)
	defer v.Dispose()

	bus.Emit(changebus.Notification[int]{Action: changebus.Cleared})

	waitFor(t, time.Second, func() bool { return len(v.Items()) == 0 })
}

func TestViewChangedSignalsOnApply(t *testing.T) {
	bus := changebus.New[int]()
	defer bus.Close()

	v := New[int](bus, nil, isEven, time.Millisecond, nil, Ignore, nil)
	defer v.Dispose()

	two := 2
	bus.Emit(changebus.Notification[int]{Action: changebus.Added, Item: &two})

	select {
	case <-v.Changed():
	case <-time.After(time.Second):
		t.Fatal("expected a change signal")
	}
}

func TestDynamicViewSetPredicateRebuilds(t *testing.T) {
	bus := changebus.New[int]()
	defer bus.Close()

	var mu sync.Mutex
	snapshot := []int{1, 2, 3, 4, 5, 6}
	snapshotFn := func() []int {
		mu.Lock()
		defer mu.Unlock()
		out := make([]int, len(snapshot))
		copy(out, snapshot)
		return out
	}

	dv := NewDynamic[int](bus, snapshotFn, isEven, time.Millisecond, nil)
	defer dv.Dispose()

	waitFor(t, time.Second, func() bool { return len(dv.Items()) == 3 })
	assert.ElementsMatch(t, []int{2, 4, 6}, dv.Items())

	isOdd := func(n int) bool { return n%2 != 0 }
	dv.SetPredicate(isOdd)

	assert.ElementsMatch(t, []int{1, 3, 5}, dv.Items())
}

type account struct {
	ID   int
	Dept string
}

func TestIndexViewTracksPostingListAndRebuildsOnUpdate(t *testing.T) {
	bus := changebus.New[account]()
	defer bus.Close()

	idx := index.New[account, string](func(a account) string { return a.Dept })
	hr1 := account{ID: 1, Dept: "HR"}
	eng1 := account{ID: 2, Dept: "ENG"}
	idx.Add(hr1)
	idx.Add(eng1)

	v := NewIndexed[account, string](bus, idx, "HR", time.Millisecond, nil)
	defer v.Dispose()

	assert.ElementsMatch(t, []account{hr1}, v.Items())

	movedHR := account{ID: 2, Dept: "HR"}
	idx.Update(eng1, movedHR)
	bus.Emit(changebus.Notification[account]{Action: changebus.Updated})

	waitFor(t, time.Second, func() bool { return len(v.Items()) == 2 })
	assert.ElementsMatch(t, []account{hr1, movedHR}, v.Items())
}
