package arena

import "testing"

func TestInsertGetRemove(t *testing.T) {
	a := New[string]()
	x := a.Insert("x")
	y := a.Insert("y")
	if v, ok := a.Get(x); !ok || v != "x" {
		t.Fatalf("get x: %q %v", v, ok)
	}
	if a.Len() != 2 {
		t.Fatalf("len=%d", a.Len())
	}
	if v, ok := a.Remove(x); !ok || v != "x" {
		t.Fatalf("remove x: %q %v", v, ok)
	}
	if _, ok := a.Get(x); ok {
		t.Fatalf("removed index still resolves")
	}
	if _, ok := a.Remove(x); ok {
		t.Fatalf("double remove succeeded")
	}
	if v, _ := a.Get(y); v != "y" {
		t.Fatalf("y disturbed: %q", v)
	}
}

func TestSlotReuseBumpsGeneration(t *testing.T) {
	a := New[int]()
	old := a.Insert(1)
	a.Remove(old)
	fresh := a.Insert(2)
	if fresh.slot != old.slot {
		t.Fatalf("slot not reused")
	}
	if _, ok := a.Get(old); ok {
		t.Fatalf("stale index resolved after reuse")
	}
	if v, ok := a.Get(fresh); !ok || v != 2 {
		t.Fatalf("fresh index: %d %v", v, ok)
	}
}

func TestZeroIndexInvalid(t *testing.T) {
	a := New[int]()
	a.Insert(5)
	if _, ok := a.Get(Index{}); ok {
		t.Fatalf("zero index resolved")
	}
}

func TestEachVisitsLive(t *testing.T) {
	a := New[int]()
	var idx []Index
	for i := 0; i < 5; i++ {
		idx = append(idx, a.Insert(i))
	}
	a.Remove(idx[1])
	a.Remove(idx[3])
	sum := 0
	a.Each(func(_ Index, v int) { sum += v })
	if sum != 0+2+4 {
		t.Fatalf("sum=%d", sum)
	}
}
