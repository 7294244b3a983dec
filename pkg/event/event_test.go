package event

import "testing"

func TestAllocFreeRoundtrip(t *testing.T) {
	p := NewPool(4)
	id, ok := p.Alloc(Event{Type: NoteOn, Key: 60, Velocity: 100})
	if !ok {
		t.Fatal("alloc failed")
	}
	e := p.Get(id)
	if e == nil || e.Type != NoteOn || e.Key != 60 {
		t.Fatalf("unexpected event: %+v", e)
	}
	p.Free(id)
	if p.Get(id) != nil {
		t.Fatal("expected freed event id to resolve to nil")
	}
}

func TestPoolExhaustion(t *testing.T) {
	p := NewPool(1)
	p.Alloc(Event{Type: NoteOn})
	if _, ok := p.Alloc(Event{Type: NoteOff}); ok {
		t.Fatal("expected second alloc to fail on exhausted pool")
	}
}

func TestLessOrdersBySampleOffsetThenPriorityThenSequence(t *testing.T) {
	p := NewPool(4)
	id1, _ := p.Alloc(Event{Type: NoteOn, Priority: PriorityMIDIInput})
	id2, _ := p.Alloc(Event{Type: NoteOn, Priority: PriorityScriptDelayed})

	e1, e2 := p.Get(id1), p.Get(id2)
	e1.SampleOffset, e2.SampleOffset = 10, 10

	// same offset: script-delayed (lower priority value) sorts first
	if !Less(e2, e1) {
		t.Fatal("expected script-delayed event to sort before MIDI input at equal offset")
	}

	e2.SampleOffset = 20
	if !Less(e1, e2) {
		t.Fatal("expected earlier sample offset to sort first regardless of priority")
	}
}

func TestLessBreaksTiesByInsertionOrder(t *testing.T) {
	p := NewPool(4)
	id1, _ := p.Alloc(Event{Type: NoteOn})
	id2, _ := p.Alloc(Event{Type: NoteOn})
	e1, e2 := p.Get(id1), p.Get(id2)
	e1.SampleOffset, e2.SampleOffset = 5, 5

	if !Less(e1, e2) {
		t.Fatal("expected first-inserted event to sort first at equal offset and priority")
	}
}
