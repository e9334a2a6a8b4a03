package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contact struct {
	Name string
	Dept string
}

func TestSecondaryIndexByDept(t *testing.T) {
	idx := New[contact, string](func(c contact) string { return c.Dept })

	for i := 0; i < 500; i++ {
		idx.Add(contact{Name: fmt.Sprintf("hr-%d", i), Dept: "HR"})
	}
	for i := 0; i < 500; i++ {
		idx.Add(contact{Name: fmt.Sprintf("eng-%d", i), Dept: "ENG"})
	}

	hr := idx.Get("HR")
	require.Len(t, hr, 500)

	for _, c := range hr {
		idx.Remove(c)
	}
	assert.Empty(t, idx.Get("HR"))
	assert.Len(t, idx.Get("ENG"), 500)
}

func TestSecondaryIndexUpdateMovesPosting(t *testing.T) {
	idx := New[contact, string](func(c contact) string { return c.Dept })
	c := contact{Name: "alice", Dept: "HR"}
	idx.Add(c)

	moved := contact{Name: "alice", Dept: "ENG"}
	idx.Update(c, moved)

	assert.Empty(t, idx.Get("HR"))
	assert.Len(t, idx.Get("ENG"), 1)
}

func TestSecondaryIndexRebuild(t *testing.T) {
	idx := New[contact, string](func(c contact) string { return c.Dept })
	idx.Add(contact{Name: "stale", Dept: "OPS"})

	fresh := []contact{
		{Name: "a", Dept: "HR"},
		{Name: "b", Dept: "HR"},
	}
	idx.Rebuild(fresh)

	assert.Empty(t, idx.Get("OPS"))
	assert.Len(t, idx.Get("HR"), 2)
}

func TestSecondaryIndexMatches(t *testing.T) {
	idx := New[contact, string](func(c contact) string { return c.Dept })
	c := contact{Name: "alice", Dept: "HR"}
	assert.True(t, idx.Matches(c, "HR"))
	assert.False(t, idx.Matches(c, "ENG"))
}
