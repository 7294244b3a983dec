// Package pool provides a fixed-capacity, allocation-free element pool with
// stable reincarnation-tagged IDs and an intrusive doubly-linked active list,
// the allocator underneath every per-voice and per-event structure the
// engine touches on the audio thread.
package pool

import "fmt"

// ID is a stable 32-bit handle to one incarnation of one slot in a Pool.
// It stays valid only until the slot it names is freed; after that, FromID
// reports it invalid even if the slot is later reallocated. Zero is never
// a valid ID.
type ID uint32

// Index is a direct arena index, valid only within the fragment cycle that
// produced it; unlike an ID it carries no reincarnation check.
type Index int32

const invalidIndex Index = -1

// Options configures the bit layout of the IDs a Pool issues.
type Options struct {
	// ReservedBits is the number of high bits of the 32-bit ID space left
	// unused by the pool, available for a caller to stash external tags.
	ReservedBits uint
}

type node[T any] struct {
	value         T
	prev, next    Index
	reincarnation uint32
	inUse         bool
}

// Pool is a fixed-capacity arena of T. Allocation and free are O(1) and
// never allocate; elements are addressed either by Index (cheap, valid for
// one fragment) or by ID (reincarnation-checked, safe to hold across
// fragments).
type Pool[T any] struct {
	nodes         []node[T]
	freeHead      Index
	freeLen       int
	indexBits     uint
	reincBits     uint
	reservedBits  uint
	indexMask     uint32
	reincMask     uint32
}

// New creates a Pool with capacity n and the given bit-layout options.
func New[T any](n int, opts Options) *Pool[T] {
	if n <= 0 {
		panic("pool: capacity must be positive")
	}
	indexBits := bitsFor(uint(n - 1))
	reincBits := 32 - indexBits - opts.ReservedBits
	if int(reincBits) < 1 {
		panic("pool: capacity too large for the reserved bit budget")
	}
	p := &Pool[T]{
		nodes:        make([]node[T], n),
		indexBits:    indexBits,
		reincBits:    reincBits,
		reservedBits: opts.ReservedBits,
		indexMask:    uint32(1)<<indexBits - 1,
		reincMask:    uint32(1)<<reincBits - 1,
	}
	p.Clear()
	return p
}

func bitsFor(maxValue uint) uint {
	bits := uint(1)
	for (uint(1) << bits) <= maxValue {
		bits++
	}
	return bits
}

// Cap returns the pool's fixed capacity.
func (p *Pool[T]) Cap() int { return len(p.nodes) }

// Len returns the number of currently allocated elements.
func (p *Pool[T]) Len() int { return len(p.nodes) - p.freeLen }

// FreeLen returns the number of elements currently on the free list.
func (p *Pool[T]) FreeLen() int { return p.freeLen }

// Clear resets the pool to empty, discarding all allocations. It does not
// check whether elements were in use; callers that need the safety check
// should use Resize instead.
func (p *Pool[T]) Clear() {
	for i := range p.nodes {
		p.nodes[i].prev = invalidIndex
		p.nodes[i].next = Index(i + 1)
		p.nodes[i].inUse = false
		var zero T
		p.nodes[i].value = zero
	}
	if len(p.nodes) > 0 {
		p.nodes[len(p.nodes)-1].next = invalidIndex
	}
	p.freeHead = 0
	p.freeLen = len(p.nodes)
}

// Resize changes the pool's capacity. It fails loudly if any element is
// currently allocated, since shrinking or growing an arena with live
// indices in flight would invalidate them.
func (p *Pool[T]) Resize(n int) error {
	if p.Len() != 0 {
		return fmt.Errorf("pool: resize refused, %d element(s) still allocated", p.Len())
	}
	if n <= 0 {
		return fmt.Errorf("pool: capacity must be positive")
	}
	indexBits := bitsFor(uint(n - 1))
	reincBits := 32 - indexBits - p.reservedBits
	if int(reincBits) < 1 {
		return fmt.Errorf("pool: capacity too large for the reserved bit budget")
	}
	p.nodes = make([]node[T], n)
	p.indexBits = indexBits
	p.reincBits = reincBits
	p.indexMask = uint32(1)<<indexBits - 1
	p.reincMask = uint32(1)<<reincBits - 1
	p.Clear()
	return nil
}

// allocIndex pops one slot off the free list. Returns invalidIndex if the
// pool is exhausted.
func (p *Pool[T]) allocIndex() Index {
	if p.freeLen == 0 {
		return invalidIndex
	}
	idx := p.freeHead
	p.freeHead = p.nodes[idx].next
	p.freeLen--
	p.nodes[idx].inUse = true
	p.nodes[idx].prev = invalidIndex
	p.nodes[idx].next = invalidIndex
	return idx
}

// Take allocates one element and returns its Index and ID. ok is false if
// the pool is exhausted; Take never blocks and never allocates memory.
func (p *Pool[T]) Take() (idx Index, id ID, ok bool) {
	idx = p.allocIndex()
	if idx == invalidIndex {
		return 0, 0, false
	}
	return idx, p.idFor(idx), true
}

// Free returns the slot at idx to the free list and bumps its reincarnation
// counter, invalidating every ID previously issued for it.
func (p *Pool[T]) Free(idx Index) {
	if !p.valid(idx) || !p.nodes[idx].inUse {
		return
	}
	var zero T
	p.nodes[idx].value = zero
	p.nodes[idx].inUse = false
	p.nodes[idx].reincarnation = (p.nodes[idx].reincarnation + 1) & p.reincMask
	p.nodes[idx].next = p.freeHead
	p.nodes[idx].prev = invalidIndex
	p.freeHead = idx
	p.freeLen++
}

// At returns a pointer to the element at idx, valid only within the
// fragment cycle in which idx was obtained.
func (p *Pool[T]) At(idx Index) *T {
	if !p.valid(idx) {
		return nil
	}
	return &p.nodes[idx].value
}

func (p *Pool[T]) valid(idx Index) bool {
	return idx >= 0 && int(idx) < len(p.nodes)
}

// idFor encodes the slot's current index and reincarnation into a stable ID.
func (p *Pool[T]) idFor(idx Index) ID {
	raw := (p.nodes[idx].reincarnation << p.indexBits) | (uint32(idx) & p.indexMask)
	return ID(raw + 1)
}

// IDOf returns the current stable ID of the element at idx.
func (p *Pool[T]) IDOf(idx Index) ID {
	if !p.valid(idx) {
		return 0
	}
	return p.idFor(idx)
}

// FromID resolves an ID back to an Index, returning ok=false if the ID is
// zero, out of range, or the slot has since been freed and reincarnated.
func (p *Pool[T]) FromID(id ID) (Index, bool) {
	if id == 0 {
		return invalidIndex, false
	}
	raw := uint32(id) - 1
	idx := Index(raw & p.indexMask)
	reinc := (raw >> p.indexBits) & p.reincMask
	if !p.valid(idx) {
		return invalidIndex, false
	}
	if !p.nodes[idx].inUse || p.nodes[idx].reincarnation != reinc {
		return invalidIndex, false
	}
	return idx, true
}

// Get resolves an ID directly to its element pointer, or nil if stale.
func (p *Pool[T]) Get(id ID) *T {
	idx, ok := p.FromID(id)
	if !ok {
		return nil
	}
	return &p.nodes[idx].value
}

// Each calls fn for every currently allocated element, in arena-slot
// order. fn may free the element it was just given (e.g. a reaper
// pass); it must not free elements at indices it hasn't been handed yet.
func (p *Pool[T]) Each(fn func(idx Index, value *T)) {
	for i := range p.nodes {
		if p.nodes[i].inUse {
			fn(Index(i), &p.nodes[i].value)
		}
	}
}
