package pool

import "testing"

func TestAllocFreeInvariant(t *testing.T) {
	const n = 100
	p := New[int](n, Options{})
	l := NewList[int](p)

	if p.Len() != 0 || p.FreeLen() != n {
		t.Fatalf("expected empty pool, got len=%d free=%d", p.Len(), p.FreeLen())
	}

	var ids []ID
	var idxs []Index
	for i := 0; i < n; i++ {
		idx, id, ok := l.PushBack(i)
		if !ok {
			t.Fatalf("unexpected alloc failure at %d", i)
		}
		ids = append(ids, id)
		idxs = append(idxs, idx)
	}

	if p.FreeLen() != 0 {
		t.Fatalf("expected pool exhausted, free=%d", p.FreeLen())
	}
	if _, _, ok := l.PushBack(999); ok {
		t.Fatalf("expected alloc to fail on exhausted pool")
	}

	// free every other element and check the invariant holds throughout
	for i := 0; i < n; i += 2 {
		l.Remove(idxs[i])
		if p.Len()+p.FreeLen() != n {
			t.Fatalf("pool invariant violated after free %d: len=%d free=%d", i, p.Len(), p.FreeLen())
		}
	}
	if p.Len() != n/2 {
		t.Fatalf("expected %d allocated, got %d", n/2, p.Len())
	}

	// stale IDs for freed slots must resolve to nothing
	for i := 0; i < n; i += 2 {
		if _, ok := p.FromID(ids[i]); ok {
			t.Fatalf("expected id %d to be invalid after free", ids[i])
		}
	}
	// live IDs must still resolve
	for i := 1; i < n; i += 2 {
		if _, ok := p.FromID(ids[i]); !ok {
			t.Fatalf("expected id %d to remain valid", ids[i])
		}
	}
}

func TestIDNeverZero(t *testing.T) {
	p := New[int](4, Options{})
	l := NewList[int](p)
	for i := 0; i < 4; i++ {
		_, id, ok := l.PushBack(i)
		if !ok || id == 0 {
			t.Fatalf("got zero or failed id at %d: %v ok=%v", i, id, ok)
		}
	}
}

func TestReincarnationChangesID(t *testing.T) {
	p := New[int](1, Options{})
	l := NewList[int](p)

	idx, id1, ok := l.PushBack(42)
	if !ok {
		t.Fatal("alloc failed")
	}
	l.Remove(idx)

	idx2, id2, ok := l.PushBack(7)
	if !ok {
		t.Fatal("realloc failed")
	}
	if idx != idx2 {
		t.Fatalf("expected same slot reused, got %d vs %d", idx, idx2)
	}
	if id1 == id2 {
		t.Fatalf("expected reincarnated id to differ, both were %d", id1)
	}
	if _, ok := p.FromID(id1); ok {
		t.Fatalf("stale id %d should not resolve", id1)
	}
	if p.Get(id2) == nil || *p.Get(id2) != 7 {
		t.Fatalf("expected fresh id to resolve to 7")
	}
}

func TestResizeRefusesWhileInUse(t *testing.T) {
	p := New[int](4, Options{})
	l := NewList[int](p)
	l.PushBack(1)

	if err := p.Resize(8); err == nil {
		t.Fatal("expected resize to fail while elements are allocated")
	}

	l.Each(func(idx Index, v *int) { l.Remove(idx) })
	if err := p.Resize(8); err != nil {
		t.Fatalf("expected resize to succeed once empty: %v", err)
	}
	if p.Cap() != 8 {
		t.Fatalf("expected capacity 8, got %d", p.Cap())
	}
}

func TestListSpliceBetweenLists(t *testing.T) {
	p := New[string](8, Options{})
	a := NewList[string](p)
	b := NewList[string](p)

	idx, _, _ := a.PushBack("x")
	a.PushBack("y")
	a.PushBack("z")

	a.MoveToBack(b, idx)
	if a.Len() != 2 || b.Len() != 1 {
		t.Fatalf("expected a=2 b=1, got a=%d b=%d", a.Len(), b.Len())
	}
	if *b.At(b.Front()) != "x" {
		t.Fatalf("expected moved element to be x, got %q", *b.At(b.Front()))
	}

	a.MoveAllTo(b)
	if a.Len() != 0 || b.Len() != 3 {
		t.Fatalf("expected a=0 b=3 after MoveAllTo, got a=%d b=%d", a.Len(), b.Len())
	}

	var order []string
	b.Each(func(idx Index, v *string) { order = append(order, *v) })
	if len(order) != 3 || order[0] != "x" || order[1] != "y" || order[2] != "z" {
		t.Fatalf("unexpected order after splice: %v", order)
	}
}

func TestReservedBitsShrinkReincarnationRange(t *testing.T) {
	p := New[int](4, Options{ReservedBits: 8})
	l := NewList[int](p)
	idx, id, ok := l.PushBack(1)
	if !ok {
		t.Fatal("alloc failed")
	}
	if id&(0xFF<<24) != 0 {
		t.Fatalf("expected top 8 bits reserved/unused, got id=%#x", id)
	}
	l.Remove(idx)
}
