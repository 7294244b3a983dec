// Package stream implements the disk-streaming layer: a fixed-size array
// of Stream slots, each backed by a ring buffer the audio thread drains
// and the disk thread refills, coordinated by a lock-free command queue
// exactly as the rest of the engine's cross-thread transport works.
package stream

import (
	"github.com/justyntemme/sampler-core/pkg/diag"
	"github.com/justyntemme/sampler-core/pkg/ringbuf"
)

// LoopMode describes how a Stream behaves once it reaches its loop end
// point. refill treats LoopForward, LoopPingPong and LoopBackward alike:
// each jumps back to the loop start and reads forward again; no mode
// reverses the read direction.
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopForward
	LoopPingPong
	LoopBackward
)

// Loop describes a sample's loop region and remaining play count.
type Loop struct {
	Mode       LoopMode
	Start      int64
	End        int64
	PlayCount  int32 // -1 means infinite
	reverseDir bool  // ping-pong direction flag
}

// SampleSource is the opaque handle the disk thread uses to pull raw
// frames from backing storage; decoding the sample file format itself is
// out of scope.
type SampleSource interface {
	ReadFrames(startFrame int64, dst []float32) (n int, eof bool)
	TotalFrames() int64
}

// Command is a request posted by the audio thread onto a stream's command
// queue; the disk thread is the sole consumer.
type Command struct {
	Kind      CommandKind
	StreamIdx int
	Source    SampleSource
	StartFrame int64
	Loop      Loop
}

// CommandKind enumerates the operations the audio thread may request.
type CommandKind int

const (
	CmdLaunch CommandKind = iota
	CmdKill
)

// Stream is one disk-streaming slot: a ring buffer of pre-decoded frames
// the audio thread consumes, refilled by the disk thread in the
// background. minRefill is the headroom threshold below which the disk
// thread prioritises this stream for its next refill pass.
type Stream struct {
	buf        *ringbuf.Ring[float32]
	source     SampleSource
	readFrame  int64 // next source frame position the disk thread will read
	loop       Loop
	active     bool
	killed     bool
	minRefill  int
	maxRefill  int
}

// NewStream creates an inactive stream slot with a ring buffer of ringSize
// samples, rounded up to the ring's power-of-two sizing (one slot fewer is
// usable).
func NewStream(ringSize, minRefill, maxRefill int) *Stream {
	return &Stream{
		buf:       ringbuf.New[float32](ringSize),
		minRefill: minRefill,
		maxRefill: maxRefill,
	}
}

// Launch records the sample handle, start frame, and loop descriptor for
// a newly triggered voice, and marks the stream active; actual filling
// happens on the disk thread's next cycle.
func (s *Stream) Launch(source SampleSource, startFrame int64, loop Loop) {
	s.source = source
	s.readFrame = startFrame
	s.loop = loop
	s.active = true
	s.killed = false
}

// Kill marks the stream for teardown. The disk thread calls it while
// draining a CmdKill and then decrements the pending-deletion count that
// Thread.AskForDeletedStream waits on.
func (s *Stream) Kill() {
	s.killed = true
	s.active = false
}

// NeedsRefill reports whether the stream's buffered headroom has fallen
// below minRefill, the signal the disk thread uses to prioritise streams
// per spec §4.7 ("streams whose read pointers advanced most").
func (s *Stream) NeedsRefill() bool {
	return s.active && s.buf.ReadSpace() < s.minRefill
}

// Headroom returns the currently buffered sample count available to the
// audio thread.
func (s *Stream) Headroom() int { return s.buf.ReadSpace() }

// Pop drains up to len(out) buffered samples for audio-thread consumption,
// substituting silence for the shortfall rather than blocking when the
// disk thread hasn't kept up (spec §7: "disk underrun → substitute
// silence for the missing window").
func (s *Stream) Pop(out []float32) {
	for i := range out {
		v, ok := s.buf.Pop()
		if !ok {
			for j := i; j < len(out); j++ {
				out[j] = 0
			}
			return
		}
		out[i] = v
	}
}

// refill pulls up to maxRefill samples from the source into the ring
// buffer, honouring loop crossings. Called only from the disk thread.
func (s *Stream) refill(sink *diag.Sink) {
	if !s.active || s.source == nil {
		return
	}
	space := s.buf.WriteSpace()
	if space <= 0 {
		return
	}
	toRead := space
	if toRead > s.maxRefill {
		toRead = s.maxRefill
	}

	scratch := make([]float32, toRead)
	written := 0
	for written < toRead {
		remaining := toRead - written
		limit := remaining

		switch s.loop.Mode {
		case LoopForward, LoopPingPong, LoopBackward:
			if s.loop.End > s.readFrame {
				untilLoopEnd := int(s.loop.End - s.readFrame)
				if untilLoopEnd < limit {
					limit = untilLoopEnd
				}
			}
		}

		n, eof := s.source.ReadFrames(s.readFrame, scratch[written:written+limit])
		if n <= 0 {
			if eof {
				s.active = false
			}
			break
		}
		s.readFrame += int64(n)
		written += n

		if s.loop.Mode != LoopNone && s.readFrame >= s.loop.End {
			if s.loop.PlayCount == 0 {
				s.active = false
				break
			}
			if s.loop.PlayCount > 0 {
				s.loop.PlayCount--
			}
			s.readFrame = s.loop.Start
		}

		if eof && s.loop.Mode == LoopNone {
			s.active = false
			break
		}
	}

	for i := 0; i < written; i++ {
		if !s.buf.Push(scratch[i]) {
			sink.Warn("stream_overrun", diag.F("written", i))
			break
		}
	}
}
