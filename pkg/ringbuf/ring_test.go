package ringbuf

import (
	"sync"
	"testing"
)

func TestPushPopOrder(t *testing.T) {
	r := New[int](8)
	for i := 0; i < 5; i++ {
		if !r.Push(i) {
			t.Fatalf("push %d failed", i)
		}
	}
	for i := 0; i < 5; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("expected %d, got %d ok=%v", i, v, ok)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("expected empty ring to report underrun")
	}
}

func TestOverrunReported(t *testing.T) {
	r := New[int](4) // cap = 3
	for i := 0; i < 3; i++ {
		if !r.Push(i) {
			t.Fatalf("unexpected push failure at %d", i)
		}
	}
	if r.Push(99) {
		t.Fatal("expected push to fail once full")
	}
	if r.Stats().Overruns != 1 {
		t.Fatalf("expected 1 overrun, got %d", r.Stats().Overruns)
	}
}

func TestConcurrentSPSC(t *testing.T) {
	r := New[int](64)
	const total = 100000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if r.Push(i) {
				i++
			}
		}
	}()

	go func() {
		defer wg.Done()
		expect := 0
		for expect < total {
			if v, ok := r.Pop(); ok {
				if v != expect {
					t.Errorf("out of order: expected %d got %d", expect, v)
					return
				}
				expect++
			}
		}
	}()

	wg.Wait()
}

func TestNonVolatileReaderPeekRewindCommit(t *testing.T) {
	r := New[int](16)
	for i := 0; i < 5; i++ {
		r.Push(i)
	}

	rr := r.NonVolatileReader()
	if rr.Available() != 5 {
		t.Fatalf("expected 5 available, got %d", rr.Available())
	}
	v, ok := rr.Peek(0)
	if !ok || v != 0 {
		t.Fatalf("expected peek 0, got %d ok=%v", v, ok)
	}
	rr.Advance(2)
	v, ok = rr.Peek(0)
	if !ok || v != 2 {
		t.Fatalf("expected peek 2 after advance, got %d", v)
	}
	rr.Rewind()
	v, _ = rr.Peek(0)
	if v != 1 {
		t.Fatalf("expected peek 1 after rewind, got %d", v)
	}

	// concurrent push past the snapshot must not be visible yet
	r.Push(5)
	if rr.Available() != 4 { // snapshot still at original writeTop=5, pos=1
		t.Fatalf("expected stale snapshot to hide new push, available=%d", rr.Available())
	}

	rr.Advance(4)
	rr.Commit()
	if r.ReadSpace() != 1 { // only the un-resynced push(5) remains
		t.Fatalf("expected 1 remaining after commit, got %d", r.ReadSpace())
	}

	rr.Resync()
	if rr.Available() != 1 {
		t.Fatalf("expected 1 available after resync, got %d", rr.Available())
	}
}

func TestWrapSliceAcrossBoundary(t *testing.T) {
	r := New[int](8) // size rounds to 8, cap 7
	for i := 0; i < 6; i++ {
		r.Push(i)
	}
	for i := 0; i < 6; i++ {
		r.Pop()
	}
	// producer and consumer index now both at 6; push 5 more to force a wrap
	for i := 100; i < 105; i++ {
		r.Push(i)
	}
	rr := r.NonVolatileReader()
	scratch := make([]int, 5)
	got := rr.WrapSlice(5, scratch)
	want := []int{100, 101, 102, 103, 104}
	if len(got) != len(want) {
		t.Fatalf("expected %d elements, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %d got %d", i, want[i], got[i])
		}
	}
}
