// Package engine implements the top-level sampling engine: the pools and
// disk-streaming thread every channel borrows from, the cross-channel
// voice-stealing cursor, per-fragment dispatch of each channel's inbound
// MIDI queue, and the control-surface commands that add/remove channels
// and instruments without ever touching the audio thread's hot path.
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/justyntemme/sampler-core/pkg/audioio"
	"github.com/justyntemme/sampler-core/pkg/channel"
	"github.com/justyntemme/sampler-core/pkg/diag"
	"github.com/justyntemme/sampler-core/pkg/dsp/mix"
	"github.com/justyntemme/sampler-core/pkg/event"
	"github.com/justyntemme/sampler-core/pkg/fx"
	"github.com/justyntemme/sampler-core/pkg/instrument"
	"github.com/justyntemme/sampler-core/pkg/midi"
	"github.com/justyntemme/sampler-core/pkg/note"
	"github.com/justyntemme/sampler-core/pkg/scheduler"
	"github.com/justyntemme/sampler-core/pkg/stream"
	"github.com/justyntemme/sampler-core/pkg/voice"
)

// Config sizes every pool the engine owns and the fragment geometry every
// attached channel renders at.
type Config struct {
	SampleRate      float64
	MaxVoices       int
	MaxNotes        int
	MaxEvents       int
	MaxFragment     int
	MaxChannels     int // scratch-buffer capacity; exceeding it degrades rather than panics
	MaxDiskStreams  int
	StreamRingSize  int
	StreamMinRefill int
	StreamMaxRefill int
	RefillPerRun    int
}

// DefaultConfig returns reasonable sizing for a desktop-class instance.
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate:      sampleRate,
		MaxVoices:       256,
		MaxNotes:        256,
		MaxEvents:       512,
		MaxFragment:     1024,
		MaxChannels:     16,
		MaxDiskStreams:  64,
		StreamRingSize:  65536,
		StreamMinRefill: 4096,
		StreamMaxRefill: 16384,
		RefillPerRun:    4,
	}
}

// EventListener receives engine-level notifications (voice stolen,
// instrument swapped, stream exhausted...) registered via SubscribeEvent.
type EventListener func(event string, fields ...diag.Field)

// Engine owns every shared pool and the set of attached channels; it is
// the only type that constructs a channel.Channel (so it can hand each
// one its cross-channel steal and disk-kill callbacks) and the only type
// that mutates the channel slice, always from the non-audio control
// thread. The attached-channel list itself is published to the audio
// thread through channelsPtr, an atomic pointer-to-slice swapped in whole
// by every mutation, mirroring channel.Channel's own double-buffered
// instrument switch: Render never locks or copies to read it.
type Engine struct {
	cfg  Config
	sink *diag.Sink

	voices *voice.Pool
	notes  *note.Pool
	events *event.Pool
	disk   *stream.Thread
	clock  scheduler.Clock
	// sysex carries Sysex/delayed script events scheduled ahead of the
	// current fragment; non-sysex realtime MIDI flows through each
	// channel's own Input queue instead (spec.md §5's two input sources).
	sysex *scheduler.Queue[event.Event]

	mu          sync.Mutex // serializes control-thread writers against each other
	channelsPtr atomic.Pointer[[]*channel.Channel]

	cycle             int64
	lastStolenChannel int
	lastStolenKey     uint8
	voiceSpawnsLeft   int

	// enabled is read lock-free from Render's hot path. disableMu/disableCond
	// back only the blocking WaitUntilDisabled path, the same split
	// stream.Thread uses between pendingDeletions (atomic) and deletionCond
	// (blocking wait on AskForDeletedStream).
	enabled     atomic.Bool
	disableMu   sync.Mutex
	disableCond *sync.Cond

	listenersMu sync.Mutex
	listeners   []EventListener

	mixLeft  []float32
	mixRight []float32
	lefts    [][]float32
	rights   [][]float32
}

// New constructs an engine with its own voice/note/event pools and disk
// thread, all sized from cfg. The disk thread is created but not started;
// call Start once the engine is wired to a running control loop.
func New(cfg Config, sink *diag.Sink) *Engine {
	if sink == nil {
		sink = diag.Default()
	}
	if cfg.MaxChannels <= 0 {
		cfg.MaxChannels = 16
	}
	e := &Engine{
		cfg:      cfg,
		sink:     sink,
		voices:   voice.NewPool(cfg.MaxVoices, cfg.SampleRate),
		notes:    note.NewPool(cfg.MaxNotes),
		events:   event.NewPool(cfg.MaxEvents),
		disk:     stream.NewThread(cfg.MaxDiskStreams, cfg.StreamRingSize, cfg.StreamMinRefill, cfg.StreamMaxRefill, cfg.RefillPerRun, sink),
		sysex:    scheduler.NewQueue[event.Event](),
		mixLeft:  make([]float32, cfg.MaxFragment),
		mixRight: make([]float32, cfg.MaxFragment),
		lefts:    make([][]float32, 0, cfg.MaxChannels),
		rights:   make([][]float32, 0, cfg.MaxChannels),
	}
	e.disableCond = sync.NewCond(&e.disableMu)
	empty := make([]*channel.Channel, 0)
	e.channelsPtr.Store(&empty)
	e.voiceSpawnsLeft = cfg.MaxVoices
	e.enabled.Store(true)
	return e
}

// Start launches the disk-streaming thread's background refill loop.
func (e *Engine) Start() { go e.disk.Run() }

// Stop halts the disk-streaming thread. Call once after the audio thread
// has stopped calling Render.
func (e *Engine) Stop() { e.disk.Stop() }

// Disk exposes the disk-streaming thread so a loader can launch/kill
// streams for voices whose sample exceeds the RAM prefetch window.
func (e *Engine) Disk() *stream.Thread { return e.disk }

// Enable resumes rendering: Render stops early-clearing its output and
// processes fragments normally again.
func (e *Engine) Enable() {
	e.enabled.Store(true)
	e.disableMu.Lock()
	e.disableCond.Broadcast()
	e.disableMu.Unlock()
}

// Disable suspends rendering: Render clears its output and returns without
// touching any channel. It takes effect from the next Render call onward,
// not retroactively on one already in flight; a caller that needs a hard
// guarantee should follow with WaitUntilDisabled.
func (e *Engine) Disable() {
	e.enabled.Store(false)
	e.disableMu.Lock()
	e.disableCond.Broadcast()
	e.disableMu.Unlock()
}

// IsEnabled reports the engine's current enabled state; safe to call from
// the audio thread, it never blocks or allocates.
func (e *Engine) IsEnabled() bool { return e.enabled.Load() }

// WaitUntilDisabled blocks the calling control-thread goroutine until
// Disable has been observed, the server-side condition variable spec.md §3
// calls for around "safe reconfiguration" (SetMaxVoices, SetMaxDiskStreams).
func (e *Engine) WaitUntilDisabled() {
	e.disableMu.Lock()
	for e.enabled.Load() {
		e.disableCond.Wait()
	}
	e.disableMu.Unlock()
}

// Reset disables the engine, force-fades every voice on every channel
// (later RenderFragment calls reap them), rewinds the fragment cycle and
// steal cursor, then re-enables it — the control surface's full
// panic-reset operation.
func (e *Engine) Reset() {
	e.Disable()
	e.SuspendAll()
	e.cycle = 0
	e.lastStolenChannel = 0
	e.lastStolenKey = 0
	e.Enable()
}

// SetMaxVoices rebuilds the voice pool at capacity n. Existing channels
// keep the *voice.Pool pointer they were constructed with, so this only
// takes full effect for channels added afterward via AddChannel; callers
// reconfiguring a live engine are expected to Disable, rebuild their
// channels, then Enable. A diagnostic warning is logged if called while
// still enabled, since a channel mid-render may hold voice ids from the
// pool being replaced.
func (e *Engine) SetMaxVoices(n int) {
	if e.IsEnabled() {
		e.sink.Warn("set_max_voices_while_enabled", diag.F("requested", n))
	}
	e.cfg.MaxVoices = n
	e.voices = voice.NewPool(n, e.cfg.SampleRate)
	e.voiceSpawnsLeft = n
}

// SetMaxDiskStreams stops the disk thread, rebuilds it with n stream slots,
// and restarts it. Must be called after Start (the thread must already be
// running for Stop to return) and, like SetMaxVoices, is only safe between
// Disable and Enable.
func (e *Engine) SetMaxDiskStreams(n int) {
	if e.IsEnabled() {
		e.sink.Warn("set_max_disk_streams_while_enabled", diag.F("requested", n))
	}
	e.disk.Stop()
	e.cfg.MaxDiskStreams = n
	e.disk = stream.NewThread(n, e.cfg.StreamRingSize, e.cfg.StreamMinRefill, e.cfg.StreamMaxRefill, e.cfg.RefillPerRun, e.sink)
	go e.disk.Run()
}

// SetMIDIChannel reassigns which MIDI channel number c responds to.
func (e *Engine) SetMIDIChannel(c *channel.Channel, midiChannel uint8) {
	c.SetMIDIChannel(midiChannel)
}

// AddFXSend registers a named send chain on c, delegating to
// channel.Channel.AddFXSend; exposed here to complete the control
// surface's channel-scoped command set at the engine entry point.
func (e *Engine) AddFXSend(c *channel.Channel, name string, chain *fx.Chain, sendLevel, returnLevel float32) {
	c.AddFXSend(name, chain, sendLevel, returnLevel)
}

// RemoveFXSend detaches a named send chain from c.
func (e *Engine) RemoveFXSend(c *channel.Channel, name string) {
	c.RemoveFXSend(name)
}

// SubscribeEvent registers fn to receive every engine-level notification
// dispatched via notify (voice stolen, sysex dispatched, and whatever
// future control-surface events warrant one). It returns an unsubscribe
// function; calling it is safe even from inside fn.
func (e *Engine) SubscribeEvent(fn EventListener) (unsubscribe func()) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	idx := len(e.listeners)
	e.listeners = append(e.listeners, fn)
	return func() {
		e.listenersMu.Lock()
		defer e.listenersMu.Unlock()
		if idx < len(e.listeners) {
			e.listeners[idx] = nil
		}
	}
}

// notify fans an engine-level event out to every subscriber.
func (e *Engine) notify(name string, fields ...diag.Field) {
	e.listenersMu.Lock()
	listeners := e.listeners
	e.listenersMu.Unlock()
	for _, l := range listeners {
		if l != nil {
			l(name, fields...)
		}
	}
}

// killStream posts a CmdKill for the disk stream streamID occupies; this
// is the DiskKillFunc every channel is constructed with, closing spec.md
// §4.7/§8's "SuspendAll returns only after the disk thread has confirmed
// stream deletion" loop back to Thread.pendingDeletions.
func (e *Engine) killStream(streamID uint32) {
	e.disk.PostCommand(stream.Command{Kind: stream.CmdKill, StreamIdx: int(streamID)})
}

// AddChannel constructs a new channel bound to the engine's shared pools,
// cross-channel steal cursor, and disk-kill callback, appends it, and
// returns it. Safe to call from the control thread while Render runs
// concurrently: channels are published via an atomic pointer-to-slice
// swap, never mutated in place.
func (e *Engine) AddChannel(cfg channel.Config) *channel.Channel {
	cfg.SampleRate = e.cfg.SampleRate
	if cfg.MaxFragment == 0 {
		cfg.MaxFragment = e.cfg.MaxFragment
	}
	c := channel.New(cfg, e.notes, e.voices, e.crossChannelSteal, e.killStream, e.sink)
	e.mu.Lock()
	defer e.mu.Unlock()
	old := *e.channelsPtr.Load()
	next := make([]*channel.Channel, len(old)+1)
	copy(next, old)
	next[len(old)] = c
	e.channelsPtr.Store(&next)
	return c
}

// RemoveChannel kills every voice the channel owns and detaches it from
// the render set. The caller must have already drained any instrument
// loader activity referencing this channel.
func (e *Engine) RemoveChannel(c *channel.Channel) {
	c.KillAllVoices()
	e.mu.Lock()
	defer e.mu.Unlock()
	old := *e.channelsPtr.Load()
	next := make([]*channel.Channel, 0, len(old))
	for _, ch := range old {
		if ch != c {
			next = append(next, ch)
		}
	}
	e.channelsPtr.Store(&next)
}

// SuspendAll force-fades every voice on every channel and blocks until
// the disk thread has acknowledged every resulting stream deletion, the
// precondition a loader needs before it is safe to mutate instrument
// content shared with a running channel (spec.md §7 "pending stream
// deletions acknowledged before a region may be unmapped").
func (e *Engine) SuspendAll() {
	chans := *e.channelsPtr.Load()
	for _, c := range chans {
		c.KillAllVoices()
	}
	e.disk.AskForDeletedStream()
}

// LoadInstrument stages instr on c via the double-buffered switch; the
// loader (out of scope: instrument file parsing) calls this once content
// is fully resident.
func (e *Engine) LoadInstrument(c *channel.Channel, instr *instrument.Instrument) {
	c.RequestInstrumentChange(instr)
}

// ScheduleSysex enqueues a Sysex or script-delayed event to fire at
// scheduler time key (an absolute sample index on e.clock's timeline).
func (e *Engine) ScheduleSysex(key int64, ev event.Event) {
	e.sysex.Schedule(key, ev)
}

// crossChannelSteal implements the engine half of spec.md §4.4's
// "oldest_key" voice-stealing scheduler: a round-robin cursor that
// advances across channels (wrapping), asking each one's
// StealOldestKeyFrom starting just past the key it last yielded a victim
// from. It is passed to every channel as their StealFunc so a channel's
// local allocation failure falls back to a global victim search. Reads
// the published channel slice through channelsPtr without locking, since
// Render (its only caller) is itself lock-free.
func (e *Engine) crossChannelSteal(cycle int64) (uint32, bool) {
	chans := *e.channelsPtr.Load()
	n := len(chans)
	if n == 0 {
		return 0, false
	}
	start := e.lastStolenChannel

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		c := chans[idx]
		key, vid, found := c.StealOldestKeyFrom(e.lastStolenKey, cycle)
		if !found {
			continue
		}
		if v := e.voices.Voice(vid); v != nil {
			v.Kill()
		}
		e.lastStolenChannel = (idx + 1) % n
		e.lastStolenKey = key
		if e.voiceSpawnsLeft > 0 {
			e.voiceSpawnsLeft--
		}
		e.notify("voice_stolen", diag.F("channel", idx), diag.F("key", key), diag.F("voice", vid))
		return vid, true
	}
	return 0, false
}

// Render processes events due in [cycle-start, cycle-start+n) on every
// attached channel, renders their fragments, sums the result into left
// and right, and writes through the given audioio.Channel outputs. n
// must not exceed cfg.MaxFragment. Render never calls time.Now, allocates,
// or takes a lock on its critical path: the channel list is read through
// an atomic pointer, and e.lefts/e.rights are scratch buffers reused every
// fragment (they only grow, via append, past cfg.MaxChannels).
func (e *Engine) Render(n int, left, right audioio.Channel) error {
	if n > e.cfg.MaxFragment {
		return &Error{Kind: AudioDeviceMismatch, Msg: "fragment exceeds configured maximum"}
	}
	if !e.enabled.Load() {
		if left != nil {
			left.Clear()
		}
		if right != nil {
			right.Clear()
		}
		return nil
	}
	e.voiceSpawnsLeft = e.cfg.MaxVoices

	chans := *e.channelsPtr.Load()

	dueSysex := e.sysex.PopDue(e.clock.TotalSamplesProcessed + int64(n))
	for i := range dueSysex {
		e.dispatchSysex(&dueSysex[i])
	}

	e.lefts = e.lefts[:0]
	e.rights = e.rights[:0]
	for _, c := range chans {
		e.dispatchChannelInput(c, int32(n))
		l, r := c.RenderFragment(n, e.cycle)
		e.lefts = append(e.lefts, l)
		e.rights = append(e.rights, r)
	}

	outL, outR := e.mixLeft[:n], e.mixRight[:n]
	mix.Sum(e.lefts, outL)
	mix.Sum(e.rights, outR)

	if left != nil {
		left.Write(outL)
	}
	if right != nil {
		right.Write(outR)
	}

	e.cycle++
	e.clock.EndFragment()
	return nil
}

// dispatchChannelInput pulls every event due within this fragment from
// c's input queue and applies it, in the queue's already-sorted order
// (spec.md §5's per-fragment dispatch order).
func (e *Engine) dispatchChannelInput(c *channel.Channel, n int32) {
	due := c.Input.GetEventsInRange(0, n)
	for _, ev := range due {
		switch ev.Type() {
		case midi.EventTypeNoteOn:
			ne := ev.(midi.NoteOnEvent)
			c.NoteOn(ne.NoteNumber, ne.Velocity, e.cycle, true, 0)
		case midi.EventTypeNoteOff:
			ne := ev.(midi.NoteOffEvent)
			c.NoteOff(ne.NoteNumber, ne.Velocity, e.cycle, true)
		case midi.EventTypeControlChange:
			ce := ev.(midi.ControlChangeEvent)
			e.dispatchCC(c, ce.Controller, ce.Value)
		}
	}
	c.Input.RemoveProcessedEvents(n)
}

// dispatchCC routes CC64/66 through their dedicated pedal state machines
// and records everything else in the channel's plain controller table.
func (e *Engine) dispatchCC(c *channel.Channel, controller, value uint8) {
	switch controller {
	case midi.CCSustain:
		c.SetSustainPedal(value >= 64, e.cycle)
	case midi.CCSostenuto:
		c.SetSostenuto(value >= 64, e.cycle)
	default:
		c.SetController(controller, value)
	}
}

// dispatchSysex handles a due scheduled event: for a Sysex event it logs a
// debug line and notifies subscribers, and delivers the payload to no
// channel; events of other types are ignored. Channel-scoped script/delayed
// events are expected to be re-injected into the owning channel's Input
// queue by the caller that scheduled them, since this queue is
// deliberately engine-global (spec.md §5's sysex/delayed-event source).
func (e *Engine) dispatchSysex(ev *event.Event) {
	if ev.Type != event.Sysex {
		return
	}
	e.sink.Debug("sysex_dispatched", diag.F("bytes", len(ev.SysexData)))
	e.notify("sysex_dispatched", diag.F("bytes", len(ev.SysexData)))
}
