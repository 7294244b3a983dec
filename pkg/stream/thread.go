package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/justyntemme/sampler-core/pkg/diag"
	"github.com/justyntemme/sampler-core/pkg/ringbuf"
)

// Thread owns the fixed-size Stream slot array and the background
// goroutine that drains the command queue and refills streams. The audio
// thread only ever posts Commands and calls Pop/Headroom on the Stream it
// was handed at launch time; all file I/O and ring-buffer writes happen
// here.
type Thread struct {
	streams []*Stream
	cmds    *ringbuf.Ring[Command]
	sink    *diag.Sink

	refillPerRun int

	pendingDeletions atomic.Int32
	deletionCond     *sync.Cond
	deletionMu       sync.Mutex

	stop chan struct{}
	done chan struct{}
}

// NewThread creates a disk-streaming thread with numSlots Stream slots,
// each sized per ringSize/minRefill/maxRefill, draining at most
// refillPerRun streams per cycle (CONFIG_REFILL_STREAMS_PER_RUN).
func NewThread(numSlots, ringSize, minRefill, maxRefill, refillPerRun int, sink *diag.Sink) *Thread {
	if sink == nil {
		sink = diag.Default()
	}
	t := &Thread{
		streams:      make([]*Stream, numSlots),
		cmds:         ringbuf.New[Command](256),
		sink:         sink,
		refillPerRun: refillPerRun,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	t.deletionCond = sync.NewCond(&t.deletionMu)
	for i := range t.streams {
		t.streams[i] = NewStream(ringSize, minRefill, maxRefill)
	}
	return t
}

// Slot returns the Stream at idx for the audio thread to read from once a
// launch command has been posted.
func (t *Thread) Slot(idx int) *Stream { return t.streams[idx] }

// PostCommand enqueues a command for the disk thread. ok is false if the
// command queue is full; the caller should treat this like any other
// StreamUnavailable condition (spec §7) and fall back to silence for that
// voice until retried.
func (t *Thread) PostCommand(c Command) (ok bool) {
	if c.Kind == CmdKill {
		t.pendingDeletions.Add(1)
	}
	return t.cmds.Push(c)
}

// AskForDeletedStream blocks the calling (non-audio) goroutine until the
// disk thread has acknowledged every pending stream deletion, the
// condition SuspendAll awaits before declaring a region safe to mutate.
func (t *Thread) AskForDeletedStream() {
	t.deletionMu.Lock()
	for t.pendingDeletions.Load() > 0 {
		t.deletionCond.Wait()
	}
	t.deletionMu.Unlock()
}

// Run starts the disk thread's refill loop; it blocks until Stop is
// called, so the caller starts it in its own goroutine.
func (t *Thread) Run() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		default:
		}
		t.drainCommands()
		if !t.refillCycle() {
			time.Sleep(time.Millisecond)
		}
	}
}

// Stop signals the disk thread to exit and waits for it to do so.
func (t *Thread) Stop() {
	close(t.stop)
	<-t.done
}

func (t *Thread) drainCommands() {
	for {
		cmd, ok := t.cmds.Pop()
		if !ok {
			return
		}
		if cmd.StreamIdx < 0 || cmd.StreamIdx >= len(t.streams) {
			t.sink.Error("stream_command_bad_index", diag.F("idx", cmd.StreamIdx))
			continue
		}
		s := t.streams[cmd.StreamIdx]
		switch cmd.Kind {
		case CmdLaunch:
			s.Launch(cmd.Source, cmd.StartFrame, cmd.Loop)
		case CmdKill:
			s.Kill()
			if t.pendingDeletions.Add(-1) == 0 {
				t.deletionMu.Lock()
				t.deletionCond.Broadcast()
				t.deletionMu.Unlock()
			}
		}
	}
}

// refillCycle refills up to refillPerRun streams whose headroom has
// fallen furthest below their minRefill threshold, per spec §4.7. It
// returns whether any stream was actually refilled this cycle.
func (t *Thread) refillCycle() bool {
	type candidate struct {
		idx     int
		deficit int
	}
	var candidates []candidate
	for i, s := range t.streams {
		if s.NeedsRefill() {
			candidates = append(candidates, candidate{idx: i, deficit: s.minRefill - s.Headroom()})
		}
	}
	// selection sort for the top refillPerRun deficits; slot counts are
	// small (tens, not thousands) so an O(n*k) pass over an O(1)-ish n is
	// simpler and allocation-lighter than pulling in sort.Slice here.
	limit := t.refillPerRun
	if limit > len(candidates) {
		limit = len(candidates)
	}
	for i := 0; i < limit; i++ {
		best := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].deficit > candidates[best].deficit {
				best = j
			}
		}
		candidates[i], candidates[best] = candidates[best], candidates[i]
		t.streams[candidates[i].idx].refill(t.sink)
	}
	return limit > 0
}
