package hashtable

import (
	"testing"
)

func TestShardListPushAndGet(t *testing.T) {
	l := NewShardList[int](4)
	for i := 0; i < 20; i++ {
		l.Push(i)
	}
	if l.Len() != 20 {
		t.Fatalf("expected len 20, got %d", l.Len())
	}
	for i := 0; i < 20; i++ {
		if l.Get(i) != i {
			t.Errorf("expected %d at index %d, got %d", i, i, l.Get(i))
		}
	}
}

func TestShardListRemoveAtShiftsTail(t *testing.T) {
	l := NewShardList[string](4)
	l.AddRange([]string{"a", "b", "c", "d"})
	if !l.RemoveAt(1) {
		t.Fatal("expected RemoveAt to succeed")
	}
	want := []string{"a", "c", "d"}
	got := l.AsSpan()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
			break
		}
	}
}

func TestShardListRemoveValue(t *testing.T) {
	l := NewShardList[int](4)
	l.AddRange([]int{1, 2, 3, 2})
	if !l.RemoveValue(2) {
		t.Fatal("expected to remove first occurrence of 2")
	}
	if l.Len() != 3 {
		t.Fatalf("expected len 3, got %d", l.Len())
	}
	if !l.Contains(2) {
		t.Error("expected second occurrence of 2 to remain")
	}
	if l.RemoveValue(99) {
		t.Error("expected RemoveValue of absent item to fail")
	}
}

func TestShardListClear(t *testing.T) {
	l := NewShardList[int](4)
	l.AddRange([]int{1, 2, 3})
	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("expected empty list, got len %d", l.Len())
	}
}

func TestShardListCopyTo(t *testing.T) {
	l := NewShardList[int](4)
	l.AddRange([]int{1, 2, 3})
	dst := make([]int, 5)
	l.CopyTo(dst, 1)
	want := []int{0, 1, 2, 3, 0}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, dst)
		}
	}
}
