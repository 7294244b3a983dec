// Package scheduler implements the sample-accurate future-event queue:
// an AVL tree keyed by scheduler time (a monotonically increasing sample
// index), plus the wall-clock-to-fragment-offset conversion the audio
// thread uses once per fragment. The engine keeps one Queue, for scheduled
// sysex events; no Queue holds suspended script callbacks.
package scheduler

// Clock tracks the engine's global sample-accurate time across fragments.
// TotalSamplesProcessed never wraps within any realistic run at the
// chosen width (64 bits at 96kHz is millions of years).
type Clock struct {
	TotalSamplesProcessed int64
	fragmentBeginMicros   int64
	fragmentEndMicros     int64
	samplesInFragment     int32
}

// BeginFragment records the wall-clock bounds of the fragment about to be
// processed, used to convert event wall-clock timestamps to intra-fragment
// sample offsets.
func (c *Clock) BeginFragment(beginMicros, endMicros int64, samplesInFragment int32) {
	c.fragmentBeginMicros = beginMicros
	c.fragmentEndMicros = endMicros
	c.samplesInFragment = samplesInFragment
}

// EndFragment advances the global sample counter by the fragment's length.
func (c *Clock) EndFragment() {
	c.TotalSamplesProcessed += int64(c.samplesInFragment)
}

// OffsetForTimestamp converts a wall-clock microsecond timestamp into an
// intra-fragment sample offset, clamped to [0, samplesInFragment).
func (c *Clock) OffsetForTimestamp(timestampMicros int64) int32 {
	span := c.fragmentEndMicros - c.fragmentBeginMicros
	if span <= 0 {
		return 0
	}
	offset := (timestampMicros - c.fragmentBeginMicros) * int64(c.samplesInFragment) / span
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(c.samplesInFragment) {
		offset = int64(c.samplesInFragment) - 1
	}
	return int32(offset)
}

// ScheduleAheadMicroseconds computes the absolute scheduler time for an
// event that should fire `us` microseconds after fragmentPosBase (an
// intra-fragment sample offset within the fragment currently being built),
// at the given sample rate.
func ScheduleAheadMicroseconds(totalSamplesProcessed int64, fragmentPosBase int32, us int64, sampleRate float64) int64 {
	delaySamples := int64(ceilDiv(us*int64(sampleRate), 1_000_000))
	return totalSamplesProcessed + int64(fragmentPosBase) + delaySamples
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}

// entry is one scheduled payload at a given scheduler time. seq breaks
// ties between entries scheduled at the identical sample index, in
// insertion order.
type entry[T any] struct {
	key   int64
	seq   uint64
	value T
}

// node is one AVL tree node.
type node[T any] struct {
	e           entry[T]
	left, right *node[T]
	height      int
}

// Queue is an AVL tree of scheduled entries keyed by scheduler time,
// supporting O(log n) insertion and draining every entry whose key is
// below a threshold in key order.
type Queue[T any] struct {
	root    *node[T]
	count   int
	nextSeq uint64
}

// NewQueue creates an empty scheduler queue.
func NewQueue[T any]() *Queue[T] { return &Queue[T]{} }

// Len returns the number of entries currently scheduled.
func (q *Queue[T]) Len() int { return q.count }

// Schedule inserts value to fire at scheduler time key.
func (q *Queue[T]) Schedule(key int64, value T) {
	q.nextSeq++
	q.root = insert(q.root, entry[T]{key: key, seq: q.nextSeq, value: value})
	q.count++
}

func insert[T any](n *node[T], e entry[T]) *node[T] {
	if n == nil {
		return &node[T]{e: e, height: 1}
	}
	if less(e, n.e) {
		n.left = insert(n.left, e)
	} else {
		n.right = insert(n.right, e)
	}
	return rebalance(n)
}

func less[T any](a, b entry[T]) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.seq < b.seq
}

func height[T any](n *node[T]) int {
	if n == nil {
		return 0
	}
	return n.height
}

func updateHeight[T any](n *node[T]) {
	l, r := height(n.left), height(n.right)
	if l > r {
		n.height = l + 1
	} else {
		n.height = r + 1
	}
}

func balanceFactor[T any](n *node[T]) int {
	return height(n.left) - height(n.right)
}

func rotateRight[T any](n *node[T]) *node[T] {
	l := n.left
	n.left = l.right
	l.right = n
	updateHeight(n)
	updateHeight(l)
	return l
}

func rotateLeft[T any](n *node[T]) *node[T] {
	r := n.right
	n.right = r.left
	r.left = n
	updateHeight(n)
	updateHeight(r)
	return r
}

func rebalance[T any](n *node[T]) *node[T] {
	updateHeight(n)
	bf := balanceFactor(n)
	if bf > 1 {
		if balanceFactor(n.left) < 0 {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	}
	if bf < -1 {
		if balanceFactor(n.right) > 0 {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

// PopDue removes and returns every entry with key < fragmentEndTime, in
// ascending key order (ties broken by insertion order), leaving any later
// entries in the tree.
func (q *Queue[T]) PopDue(fragmentEndTime int64) []T {
	var due []T
	q.root = popDue(q.root, fragmentEndTime, &due)
	q.count -= len(due)
	return due
}

// popDue performs an in-order traversal, collecting every entry whose key
// is due and rebuilding the tree from the remaining entries (eligible
// entries are always a left-bound prefix in key order, so this is a
// single O(k + log n) pass where k is the number of due entries plus the
// nodes visited to find them).
func popDue[T any](n *node[T], threshold int64, due *[]T) *node[T] {
	if n == nil {
		return nil
	}
	if n.e.key >= threshold {
		n.left = popDue(n.left, threshold, due)
		return rebalance(n)
	}
	// n itself and everything in n.left with key < threshold are due;
	// n.right may still contain due entries too since this is a BST, not
	// a sorted array, so recurse there as well.
	left := collectAll(n.left, due)
	*due = append(*due, n.e.value)
	_ = left
	return popDue(n.right, threshold, due)
}

// collectAll appends every entry in the subtree to due, in ascending key
// order, and returns nil (the subtree is fully drained).
func collectAll[T any](n *node[T], due *[]T) *node[T] {
	if n == nil {
		return nil
	}
	collectAll(n.left, due)
	*due = append(*due, n.e.value)
	collectAll(n.right, due)
	return nil
}
