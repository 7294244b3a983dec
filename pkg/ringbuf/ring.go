// Package ringbuf provides a single-producer/single-consumer lock-free ring
// buffer, the transport underneath the disk thread's command queue and
// each disk stream's sample buffer. Channel MIDI input does not use it;
// it goes through midi.EventQueue.
package ringbuf

import "sync/atomic"

// Ring is a fixed-capacity SPSC ring buffer of T. Exactly one goroutine may
// call the producer methods (Push, WriteSpace) and exactly one goroutine
// may call the consumer methods (Pop, ReadSpace, NonVolatileReader); that
// split is what lets both sides run lock-free.
type Ring[T any] struct {
	data []T
	mask uint64
	size uint64

	// writeIdx is published with a release store after the slot is fully
	// written; readIdx is published with a release store after the slot is
	// fully consumed. Everything else follows from those two counters.
	writeIdx atomic.Uint64
	readIdx  atomic.Uint64

	underruns atomic.Uint64
	overruns  atomic.Uint64
}

// New creates a ring buffer able to hold size-1 live elements (one slot is
// always kept empty to distinguish full from empty without a separate
// count). size is rounded up to the next power of two.
func New[T any](size int) *Ring[T] {
	if size < 2 {
		size = 2
	}
	sz := nextPow2(uint64(size))
	return &Ring[T]{
		data: make([]T, sz),
		mask: sz - 1,
		size: sz,
	}
}

func nextPow2(n uint64) uint64 {
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Cap returns the maximum number of live elements the ring can hold.
func (r *Ring[T]) Cap() int { return int(r.size - 1) }

// WriteSpace returns how many elements the producer may currently push
// without overwriting unconsumed data.
func (r *Ring[T]) WriteSpace() int {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	used := w - rd
	return int(r.size - 1 - used)
}

// ReadSpace returns how many elements are currently available to the
// consumer.
func (r *Ring[T]) ReadSpace() int {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	return int(w - rd)
}

// Push appends one element. ok is false (and Overruns increments) if the
// ring is full; Push never blocks.
func (r *Ring[T]) Push(v T) (ok bool) {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	if w-rd >= r.size-1 {
		r.overruns.Add(1)
		return false
	}
	r.data[w&r.mask] = v
	r.writeIdx.Store(w + 1) // release: publish the fully-written slot
	return true
}

// Pop removes and returns the oldest element. ok is false (and Underruns
// increments) if the ring is empty.
func (r *Ring[T]) Pop() (v T, ok bool) {
	rd := r.readIdx.Load()
	w := r.writeIdx.Load() // acquire: see everything published by Push
	if rd == w {
		r.underruns.Add(1)
		return v, false
	}
	v = r.data[rd&r.mask]
	r.readIdx.Store(rd + 1)
	return v, true
}

// Stats reports lifetime underrun/overrun counters for diagnostics.
type Stats struct {
	Underruns uint64
	Overruns  uint64
}

// Stats returns the current lifetime counters. Safe to call from either side.
func (r *Ring[T]) Stats() Stats {
	return Stats{Underruns: r.underruns.Load(), Overruns: r.overruns.Load()}
}

// Reader is a non-volatile view into the consumer side of a Ring: it
// snapshots the producer's committed write index once, then lets the
// consumer Peek/Advance/Rewind freely within that snapshot without
// observing further concurrent Push calls until Resync is called again.
// It serves a consumer that wants to look ahead, decide not to commit, and
// retry later in the same fragment; no other package in this module
// creates one.
type Reader[T any] struct {
	ring     *Ring[T]
	writeTop uint64 // snapshot of writeIdx at last Resync
	pos      uint64 // consumer's own cursor, independent of ring.readIdx until Commit
}

// NonVolatileReader creates a reader snapshotted at the ring's current
// committed write position, starting at the ring's current read position.
func (r *Ring[T]) NonVolatileReader() *Reader[T] {
	return &Reader[T]{
		ring:     r,
		writeTop: r.writeIdx.Load(),
		pos:      r.readIdx.Load(),
	}
}

// Resync re-snapshots the write index and realigns the reader's cursor to
// the ring's actual (possibly externally advanced) read position.
func (rr *Reader[T]) Resync() {
	rr.writeTop = rr.ring.writeIdx.Load()
	rr.pos = rr.ring.readIdx.Load()
}

// Available returns how many elements remain between the reader's cursor
// and its snapshotted write top.
func (rr *Reader[T]) Available() int {
	if rr.pos >= rr.writeTop {
		return 0
	}
	return int(rr.writeTop - rr.pos)
}

// Peek returns the element n ahead of the reader's cursor without
// consuming it. ok is false if n is past the snapshotted write top.
func (rr *Reader[T]) Peek(n int) (v T, ok bool) {
	if n < 0 || n >= rr.Available() {
		return v, false
	}
	idx := rr.pos + uint64(n)
	return rr.ring.data[idx&rr.ring.mask], true
}

// Advance moves the reader's cursor forward by n elements, clamped to the
// snapshotted write top; it does not commit anything back to the ring.
func (rr *Reader[T]) Advance(n int) {
	if n < 0 {
		return
	}
	rr.pos += uint64(n)
	if rr.pos > rr.writeTop {
		rr.pos = rr.writeTop
	}
}

// Rewind moves the reader's cursor back by one element, clamped to the
// ring's actual read position (it cannot rewind past data already
// committed and potentially overwritten).
func (rr *Reader[T]) Rewind() {
	floor := rr.ring.readIdx.Load()
	if rr.pos > floor {
		rr.pos--
	}
}

// Commit advances the ring's real read index (freeing that space to the
// producer) up to the reader's current cursor, batching every Peek/Advance
// since the last Commit or Resync into a single consumer-side free.
func (rr *Reader[T]) Commit() {
	if rr.pos > rr.ring.readIdx.Load() {
		rr.ring.readIdx.Store(rr.pos)
	}
}

// WrapSlice returns a contiguous slice of up to n elements starting at the
// reader's cursor, even when the requested range straddles the physical
// end of the backing array, by copying into scratch when a wrap occurs.
// scratch must have length >= n and is only written to (and returned) when
// the read actually wraps; otherwise the ring's own backing storage is
// returned directly with no copy.
func (rr *Reader[T]) WrapSlice(n int, scratch []T) []T {
	avail := rr.Available()
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return nil
	}
	start := rr.pos & rr.ring.mask
	if int(start)+n <= len(rr.ring.data) {
		return rr.ring.data[start : int(start)+n]
	}
	first := len(rr.ring.data) - int(start)
	copy(scratch[:first], rr.ring.data[start:])
	copy(scratch[first:n], rr.ring.data[:n-first])
	return scratch[:n]
}
