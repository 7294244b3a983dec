// Package event defines the tagged-union Event the engine dispatches
// through its per-fragment scheduler, and a fixed-capacity Pool of Events.
// The package has no event list type; nothing links pooled Events into
// per-channel or per-key lists.
package event

import "github.com/justyntemme/sampler-core/pkg/pool"

// Type distinguishes the kind of event carried by an Event value; exactly
// one of its payload fields is meaningful for a given Type.
type Type int

const (
	NoteOn Type = iota
	NoteOff
	CC
	Pitchbend
	ChannelPressure
	NotePressure
	Sysex
	CancelReleaseKey
	ReleaseKey
	ReleaseNote
	PlayNote
	StopNote
	KillNote
	NoteSynthParam
)

func (t Type) String() string {
	switch t {
	case NoteOn:
		return "NoteOn"
	case NoteOff:
		return "NoteOff"
	case CC:
		return "CC"
	case Pitchbend:
		return "Pitchbend"
	case ChannelPressure:
		return "ChannelPressure"
	case NotePressure:
		return "NotePressure"
	case Sysex:
		return "Sysex"
	case CancelReleaseKey:
		return "CancelReleaseKey"
	case ReleaseKey:
		return "ReleaseKey"
	case ReleaseNote:
		return "ReleaseNote"
	case PlayNote:
		return "PlayNote"
	case StopNote:
		return "StopNote"
	case KillNote:
		return "KillNote"
	case NoteSynthParam:
		return "NoteSynthParam"
	default:
		return "Unknown"
	}
}

// Priority orders otherwise-simultaneous events per spec §5: script-spawned
// delayed events first, then MIDI input, then virtual-MIDI-device input.
type Priority int

const (
	PriorityScriptDelayed Priority = iota
	PriorityMIDIInput
	PriorityVirtualDevice
)

// Event is one dispatchable occurrence. CreatedAtMicros is a wall-clock
// timestamp (microseconds since an engine-defined epoch); SampleOffset is
// lazily computed by the scheduler once the event's owning fragment is
// known, and is meaningless before that.
type Event struct {
	Type            Type
	Priority        Priority
	Key             uint8
	Velocity        uint8
	Controller      uint8
	Value           int16 // CC value, pitchbend (14-bit signed), pressure
	ParentNoteID    pool.ID // 0 if this event is not spawned by a script parent
	SysexData       []byte

	CreatedAtMicros int64
	SampleOffset    int32 // set by the scheduler when the event is dispatched
	seq             uint64 // insertion sequence, breaks offset ties deterministically
}

// Pool is a fixed-capacity arena of Events addressed by stable pool.IDs.
type Pool struct {
	pool    *pool.Pool[Event]
	nextSeq uint64
}

// NewPool creates an event arena with room for n simultaneous live events.
func NewPool(n int) *Pool {
	return &Pool{pool: pool.New[Event](n, pool.Options{})}
}

// Alloc reserves a new Event from the pool. ok is false (PoolExhausted)
// if no free slot remains; the caller drops the triggering MIDI message
// with a diagnostic rather than blocking.
func (p *Pool) Alloc(e Event) (id pool.ID, ok bool) {
	idx, id, ok := p.pool.Take()
	if !ok {
		return 0, false
	}
	p.nextSeq++
	e.seq = p.nextSeq
	*p.pool.At(idx) = e
	return id, true
}

// Get resolves an event id to its live Event, or nil if stale.
func (p *Pool) Get(id pool.ID) *Event { return p.pool.Get(id) }

// Free returns an event's slot once it has been fully dispatched.
func (p *Pool) Free(id pool.ID) {
	idx, ok := p.pool.FromID(id)
	if !ok {
		return
	}
	p.pool.Free(idx)
}

// Less reports whether a sorts before b under the fragment's dispatch
// order: strictly increasing SampleOffset, ties broken by Priority, then
// by insertion sequence (spec §5's ordering guarantee).
func Less(a, b *Event) bool {
	if a.SampleOffset != b.SampleOffset {
		return a.SampleOffset < b.SampleOffset
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}
