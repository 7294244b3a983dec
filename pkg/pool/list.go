package pool

// List is an intrusive doubly-linked list threaded through a Pool's own
// node storage: moving an element between lists costs one pointer swap, no
// allocation, and never invalidates iterators to elements that weren't
// moved. A List is always associated with exactly one Pool[T].
//
// The zero value is not usable; construct with NewList.
type List[T any] struct {
	pool       *Pool[T]
	head, tail Index // first and last element; invalidIndex when empty
	len        int
}

// NewList creates an empty list over the given pool's arena.
func NewList[T any](p *Pool[T]) *List[T] {
	return &List[T]{pool: p, head: invalidIndex, tail: invalidIndex}
}

// Len returns the number of elements currently linked into the list.
func (l *List[T]) Len() int { return l.len }

// Empty reports whether the list has no elements.
func (l *List[T]) Empty() bool { return l.len == 0 }

// PushBack allocates a new element from the pool and appends it to the
// list's tail in O(1). ok is false if the pool is exhausted.
func (l *List[T]) PushBack(value T) (idx Index, id ID, ok bool) {
	idx, id, ok = l.pool.Take()
	if !ok {
		return
	}
	*l.pool.At(idx) = value
	l.linkTail(idx)
	return
}

// PushFront allocates a new element from the pool and prepends it to the
// list's head in O(1).
func (l *List[T]) PushFront(value T) (idx Index, id ID, ok bool) {
	idx, id, ok = l.pool.Take()
	if !ok {
		return
	}
	*l.pool.At(idx) = value
	l.linkHead(idx)
	return
}

func (l *List[T]) linkTail(idx Index) {
	n := &l.pool.nodes[idx]
	n.prev = l.tail
	n.next = invalidIndex
	if l.tail != invalidIndex {
		l.pool.nodes[l.tail].next = idx
	} else {
		l.head = idx
	}
	l.tail = idx
	l.len++
}

func (l *List[T]) linkHead(idx Index) {
	n := &l.pool.nodes[idx]
	n.next = l.head
	n.prev = invalidIndex
	if l.head != invalidIndex {
		l.pool.nodes[l.head].prev = idx
	} else {
		l.tail = idx
	}
	l.head = idx
	l.len++
}

// unlink removes idx from whichever position it occupies in this list,
// without touching the pool's free list.
func (l *List[T]) unlink(idx Index) {
	n := &l.pool.nodes[idx]
	if n.prev != invalidIndex {
		l.pool.nodes[n.prev].next = n.next
	} else {
		l.head = n.next
	}
	if n.next != invalidIndex {
		l.pool.nodes[n.next].prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = invalidIndex
	n.next = invalidIndex
	l.len--
}

// Remove unlinks idx from the list and frees it back to the pool.
func (l *List[T]) Remove(idx Index) {
	l.unlink(idx)
	l.pool.Free(idx)
}

// MoveToBack splices idx (which must currently belong to this list) out
// of this list and appends it to dst, in O(1), without
// touching the pool's free list or any other element's position.
func (l *List[T]) MoveToBack(dst *List[T], idx Index) {
	l.unlink(idx)
	dst.linkTail(idx)
}

// MoveToFront splices idx out of this list and prepends it to dst.
func (l *List[T]) MoveToFront(dst *List[T], idx Index) {
	l.unlink(idx)
	dst.linkHead(idx)
}

// MoveAllTo splices every element of l onto the back of dst in O(1),
// preserving order, and leaves l empty.
func (l *List[T]) MoveAllTo(dst *List[T]) {
	if l.len == 0 {
		return
	}
	if dst.tail == invalidIndex {
		dst.head = l.head
	} else {
		l.pool.nodes[dst.tail].next = l.head
		l.pool.nodes[l.head].prev = dst.tail
	}
	dst.tail = l.tail
	dst.len += l.len
	l.head = invalidIndex
	l.tail = invalidIndex
	l.len = 0
}

// Front returns the index of the first element, or invalidIndex if empty.
func (l *List[T]) Front() Index { return l.head }

// Back returns the index of the last element, or invalidIndex if empty.
func (l *List[T]) Back() Index { return l.tail }

// Next returns the index following idx within this list's linkage.
func (l *List[T]) Next(idx Index) Index { return l.pool.nodes[idx].next }

// Prev returns the index preceding idx within this list's linkage.
func (l *List[T]) Prev(idx Index) Index { return l.pool.nodes[idx].prev }

// Valid reports whether idx names a real element (not invalidIndex).
func (l *List[T]) Valid(idx Index) bool { return idx != invalidIndex }

// At returns a pointer to the element's value.
func (l *List[T]) At(idx Index) *T { return l.pool.At(idx) }

// ID returns the stable ID of the element at idx.
func (l *List[T]) ID(idx Index) ID { return l.pool.IDOf(idx) }

// Each iterates the list from front to back, calling fn for every element.
// fn may safely remove the current element or move it to another list;
// it must not free or move elements further ahead that it hasn't visited
// yet from a different goroutine (the list is not concurrency-safe).
func (l *List[T]) Each(fn func(idx Index, value *T)) {
	for idx := l.head; idx != invalidIndex; {
		next := l.pool.nodes[idx].next
		fn(idx, &l.pool.nodes[idx].value)
		idx = next
	}
}
