// Package integration exercises the sharded reactive collection engine
// end-to-end: a ShardedMap, its secondary index, a legacy adapter sink,
// and a reactive View all observing the same stream of mutations.
package integration

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardflow/internal/changebus"
	"github.com/dreamware/shardflow/internal/collection"
	"github.com/dreamware/shardflow/internal/view"
)

type employee struct {
	ID   int
	Dept string
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
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

func TestReactiveEngineEndToEnd(t *testing.T) {
	var legacyMu sync.Mutex
	var legacyEvents []changebus.LegacyEvent

	employees := collection.NewShardedMap[int, employee](16, collection.WithMapBusOptions[int, employee](
		changebus.WithLegacySink[employee](func(e changebus.LegacyEvent) {
			legacyMu.Lock()
			legacyEvents = append(legacyEvents, e)
			legacyMu.Unlock()
		}, nil),
	))
	defer employees.Close()

	deptIndex := collection.AddMapIndex[int, employee, string](employees, "by-dept", func(e employee) string { return e.Dept })

	hrView := view.NewIndexed[employee, string](employees.Bus(), deptIndex, "HR", 10*time.Millisecond, nil)
	defer hrView.Dispose()

	const total = 1000
	entries := make([]collection.Entry[int, employee], total)
	for i := 0; i < total; i++ {
		dept := "ENG"
		if i%4 == 0 {
			dept = "HR"
		}
		entries[i] = collection.Entry[int, employee]{Key: i, Value: employee{ID: i, Dept: dept}}
	}
	employees.AddRange(entries)

	waitForCondition(t, 2*time.Second, func() bool { return len(hrView.Items()) == total/4 })
	assert.Equal(t, total, employees.Count())
	assert.Len(t, deptIndex.Get("HR"), total/4)

	moved, _ := employees.Get(1)
	moved.Dept = "HR"
	employees.Set(1, moved)

	waitForCondition(t, 2*time.Second, func() bool { return len(hrView.Items()) == total/4+1 })

	employees.RemoveRange([]int{0, 4, 8})
	waitForCondition(t, 2*time.Second, func() bool { return employees.Count() == total-3 })

	waitForCondition(t, 2*time.Second, func() bool {
		legacyMu.Lock()
		defer legacyMu.Unlock()
		return len(legacyEvents) >= 3
	})

	legacyMu.Lock()
	require.Len(t, legacyEvents, 3)
	assert.Equal(t, changebus.Reset, legacyEvents[0].Action)   // AddRange -> BatchAdded
	assert.Equal(t, changebus.Replace, legacyEvents[1].Action) // Set on existing key -> Updated
	assert.Equal(t, changebus.Reset, legacyEvents[2].Action)   // RemoveRange -> BatchRemoved
	legacyMu.Unlock()

	employees.Clear()
	waitForCondition(t, 2*time.Second, func() bool { return employees.Count() == 0 })
	waitForCondition(t, time.Second, func() bool { return len(hrView.Items()) == 0 })
}
