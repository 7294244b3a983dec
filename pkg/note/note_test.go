package note

import "testing"

func TestAllocAndFree(t *testing.T) {
	p := NewPool(4)
	id, ok := p.Alloc(60)
	if !ok {
		t.Fatal("alloc failed")
	}
	n := p.Get(id)
	if n == nil || n.HostKey != 60 {
		t.Fatalf("expected note with host key 60, got %+v", n)
	}
	p.Free(id)
	if p.Get(id) != nil {
		t.Fatal("expected freed note id to resolve to nil")
	}
}

func TestPoolExhaustionReportsNotOK(t *testing.T) {
	p := NewPool(2)
	p.Alloc(1)
	p.Alloc(2)
	if _, ok := p.Alloc(3); ok {
		t.Fatal("expected alloc to fail once pool exhausted")
	}
}

func TestLinkParentChild(t *testing.T) {
	p := NewPool(4)
	parentID, _ := p.Alloc(60)
	childID, _ := p.Alloc(60)

	if !p.Link(childID, parentID) {
		t.Fatal("expected link to succeed")
	}
	parent := p.Get(parentID)
	if len(parent.Children) != 1 || parent.Children[0] != childID {
		t.Fatalf("expected parent to list child, got %+v", parent.Children)
	}
	child := p.Get(childID)
	if child.ParentID != parentID {
		t.Fatalf("expected child to reference parent id")
	}
}

func TestLinkFailsForDeadParent(t *testing.T) {
	p := NewPool(4)
	parentID, _ := p.Alloc(60)
	childID, _ := p.Alloc(60)
	p.Free(parentID)

	if p.Link(childID, parentID) {
		t.Fatal("expected link to fail when parent is gone")
	}
}

func TestVoiceTrackingAndEmpty(t *testing.T) {
	id, _ := NewPool(1).Alloc(60)
	_ = id
	n := &Note{HostKey: 60}
	n.AddVoice(1)
	n.AddVoice(2)
	if n.Empty() {
		t.Fatal("expected non-empty note")
	}
	n.RemoveVoice(1)
	n.RemoveVoice(2)
	if !n.Empty() {
		t.Fatal("expected empty note after removing all voices")
	}
}
