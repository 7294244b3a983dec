// Package channel implements EngineChannel: the per-MIDI-channel state that
// sits between the engine's shared pools and one instrument's worth of
// playing keys — keyboard state, CC table, sustain/sostenuto/solo handling,
// the double-buffered instrument switch, and the per-channel FX sends a
// fragment's voices mix into before the engine sums every channel's output.
package channel

import (
	"sync/atomic"

	"github.com/justyntemme/sampler-core/pkg/diag"
	"github.com/justyntemme/sampler-core/pkg/dsp/gain"
	"github.com/justyntemme/sampler-core/pkg/dsp/mix"
	"github.com/justyntemme/sampler-core/pkg/dsp/pan"
	"github.com/justyntemme/sampler-core/pkg/fx"
	"github.com/justyntemme/sampler-core/pkg/instrument"
	"github.com/justyntemme/sampler-core/pkg/keyboard"
	"github.com/justyntemme/sampler-core/pkg/midi"
	"github.com/justyntemme/sampler-core/pkg/note"
	"github.com/justyntemme/sampler-core/pkg/pool"
	"github.com/justyntemme/sampler-core/pkg/voice"
)

// StealFunc asks the engine's cross-channel steal cursor for one victim
// voice when this channel's local allocation failed; engine.Engine supplies
// the real implementation, composing keyboard.Manager.StealOldestKeyFrom
// across every attached channel.
type StealFunc func(cycle int64) (voiceID uint32, ok bool)

// DiskKillFunc posts a stream-deletion command for the disk-stream handle a
// voice held, so Thread.pendingDeletions (and therefore
// Thread.AskForDeletedStream) accounts for it; engine.Engine supplies the
// real implementation, this package only knows the callback shape.
type DiskKillFunc func(streamID uint32)

// Config is a channel's construction-time parameters.
type Config struct {
	MIDIChannel          uint8
	SampleRate           float64
	MaxFragment          int
	MaxRenderVoices      int // scratch-buffer capacity; exceeding it degrades rather than panics
	Transpose            int
	MuteRenderingEnabled bool
}

// Channel is one EngineChannel: it never owns a pool, only borrowed
// pointers the engine hands it at construction, plus pool.IDs it tracks
// itself (spec.md §3 "Ownership summary").
type Channel struct {
	cfg  Config
	sink *diag.Sink

	notes    *note.Pool
	voices   *voice.Pool
	keys     *keyboard.Manager
	steal    StealFunc
	diskKill DiskKillFunc

	// Input is the producer-facing inbound event queue for this channel;
	// a driver thread calls Add, the audio thread drains it via
	// GetEventsInRange once per fragment.
	Input *midi.EventQueue

	current    *instrument.Instrument
	pending    atomic.Pointer[instrument.Instrument]
	changeFlag atomic.Bool

	fxSends      map[string]*fx.Chain
	sendLevels   map[string]float32
	returnLevels map[string]float32

	controllers [128]uint8
	// releaseTriggerCC64Override is the Open Question resolution for the
	// spec's ControllerTable[64] write-back-then-restore workaround: rather
	// than mutate the live CC table, pedal-sourced release-trigger spawns
	// stash an override here for the duration of triggerReleaseVoices.
	releaseTriggerCC64Override *uint8

	muted       bool
	soloMode    bool
	soloKey     uint8
	haveSoloKey bool
	sustainDown bool

	sostenutoKeys [128]bool

	mixBuf         []float32
	leftBuf        []float32
	rightBuf       []float32
	voiceBufs      [][]float32
	activeBufs     [][]float32
	voiceGains     []float32
	voiceIDScratch []uint32
}

// New constructs a channel bound to pools borrowed from the owning engine.
// diskKill may be nil (tests and other standalone uses that never trigger
// disk-streamed voices); engine.Engine always supplies a real one.
func New(cfg Config, notes *note.Pool, voices *voice.Pool, steal StealFunc, diskKill DiskKillFunc, sink *diag.Sink) *Channel {
	if sink == nil {
		sink = diag.Default()
	}
	if cfg.MaxRenderVoices <= 0 {
		cfg.MaxRenderVoices = 64
	}
	c := &Channel{
		cfg:            cfg,
		sink:           sink,
		notes:          notes,
		voices:         voices,
		keys:           keyboard.NewManager(notes, voices),
		steal:          steal,
		diskKill:       diskKill,
		Input:          midi.NewEventQueue(),
		fxSends:        make(map[string]*fx.Chain),
		sendLevels:     make(map[string]float32),
		returnLevels:   make(map[string]float32),
		mixBuf:         make([]float32, cfg.MaxFragment),
		leftBuf:        make([]float32, cfg.MaxFragment),
		rightBuf:       make([]float32, cfg.MaxFragment),
		voiceGains:     make([]float32, cfg.MaxRenderVoices),
		voiceIDScratch: make([]uint32, 0, cfg.MaxRenderVoices),
	}
	c.controllers[midi.CCPan] = 64
	c.controllers[midi.CCVolume] = 127
	c.voiceBufs = make([][]float32, cfg.MaxRenderVoices)
	for i := range c.voiceBufs {
		c.voiceBufs[i] = make([]float32, cfg.MaxFragment)
	}
	c.activeBufs = make([][]float32, 0, cfg.MaxRenderVoices)
	return c
}

// RequestInstrumentChange is called from the off-thread loader; it stages
// the new instrument behind the double buffer without touching any state
// the audio thread reads concurrently (spec.md §4.8).
func (c *Channel) RequestInstrumentChange(instr *instrument.Instrument) {
	c.pending.Store(instr)
	c.changeFlag.Store(true)
}

// applyPendingInstrumentChange is called once at the start of every
// fragment on the audio thread; it is the lock-free reader side of the
// double-buffered instrument switch.
func (c *Channel) applyPendingInstrumentChange() {
	if !c.changeFlag.CompareAndSwap(true, false) {
		return
	}
	c.current = c.pending.Load()
	// Orphaning active voices' region references is instrument-manager
	// refcounting, out of scope here (instrument file parsing is a
	// Non-goal); existing voices simply keep rendering from the Source
	// they were triggered with until they end naturally. Running the new
	// instrument's script "init" handler is deferred to package script.
}

// NoteOn implements spec.md §4.5 steps 1-9 scoped to one channel.
func (c *Channel) NoteOn(key, velocity uint8, cycle int64, fromRealMIDI bool, parentNoteID pool.ID) {
	if velocity == 0 {
		c.NoteOff(key, 64, cycle, fromRealMIDI)
		return
	}
	if key > 127 {
		return
	}
	if c.muted && !c.cfg.MuteRenderingEnabled {
		return
	}
	tk := int(key) + c.cfg.Transpose
	if tk < 0 || tk > 127 {
		c.sink.Warn("note_on_dropped_transpose_range", diag.F("key", key), diag.F("transpose", c.cfg.Transpose))
		return
	}
	k := uint8(tk)

	if c.soloMode && fromRealMIDI {
		if c.haveSoloKey && c.soloKey != k {
			c.keys.KillVoicesOnKey(c.soloKey, c.diskKill)
		}
		c.soloKey, c.haveSoloKey = k, true
	}

	noteID, ok := c.notes.Alloc(k)
	if !ok {
		c.sink.Warn("note_pool_exhausted", diag.F("key", k))
		return
	}
	if parentNoteID != 0 {
		if !c.notes.Link(noteID, parentNoteID) {
			c.notes.Free(noteID)
			c.sink.Warn("parent_note_gone", diag.F("parent", parentNoteID))
			return
		}
	}

	c.cancelReleaseOnKey(k)

	if c.current != nil {
		for _, region := range c.current.MatchingRegions(k, velocity) {
			c.triggerVoice(region, k, velocity, cycle, noteID)
		}
	}

	c.keys.NoteOn(k, noteID, fromRealMIDI)
}

// triggerVoice allocates one voice for region, stealing a victim via
// c.steal and retrying once if the voice pool is momentarily full (spec.md
// §4.4 "each voice trigger may enqueue additional stolen voices").
func (c *Channel) triggerVoice(region instrument.Region, key, velocity uint8, cycle int64, noteID pool.ID) {
	params, src, ok := region.Trigger(key, velocity, c.cfg.SampleRate)
	if !ok {
		return
	}
	vid, ok := c.voices.Alloc(params, src, cycle)
	if !ok && c.steal != nil {
		if _, stole := c.steal(cycle); stole {
			vid, ok = c.voices.Alloc(params, src, cycle)
		}
	}
	if !ok {
		c.sink.Warn("voice_pool_exhausted", diag.F("key", key))
		return
	}
	n := c.notes.Get(noteID)
	if n == nil {
		c.voices.Free(vid)
		return
	}
	n.AddVoice(vid)
	if v := c.voices.Voice(vid); v != nil {
		v.SetNoteID(uint32(noteID))
	}
}

// cancelReleaseOnKey implements spec.md §4.5 step 7: abort in-progress
// release on any voice already sounding on k before layering a new note.
func (c *Channel) cancelReleaseOnKey(k uint8) {
	for _, nid := range c.keys.Keys[k].NoteIDs {
		n := c.notes.Get(nid)
		if n == nil {
			continue
		}
		for _, vid := range n.VoiceIDs {
			if v := c.voices.Voice(vid); v != nil {
				v.CancelRelease()
			}
		}
	}
}

// NoteOff implements spec.md §4.6.
func (c *Channel) NoteOff(key, velocity uint8, cycle int64, fromRealMIDI bool) {
	if key > 127 {
		return
	}
	tk := int(key) + c.cfg.Transpose
	if tk < 0 || tk > 127 {
		return
	}
	k := uint8(tk)

	if c.shouldReleaseVoice(k) {
		c.releaseKey(k)
	} else {
		c.keys.Keys[k].SustainHeld = true
	}

	if c.keys.Keys[k].ReleaseTriggerOn {
		c.triggerReleaseVoices(k, velocity, cycle)
	}

	// The key's notes stay attached so their releasing voices keep
	// rendering; reapEndedVoices detaches each note once its voices end.
	if fromRealMIDI {
		c.keys.Keys[k].Pressed = false
	}
}

func (c *Channel) oldestNoteOnKey(k uint8) (pool.ID, bool) {
	ids := c.keys.Keys[k].NoteIDs
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// shouldReleaseVoice implements ShouldReleaseVoice(k): release is withheld
// while the sustain pedal or a sostenuto capture is holding the key.
func (c *Channel) shouldReleaseVoice(k uint8) bool {
	return !c.sustainDown && !c.sostenutoKeys[k]
}

func (c *Channel) releaseKey(k uint8) {
	for _, nid := range c.keys.Keys[k].NoteIDs {
		n := c.notes.Get(nid)
		if n == nil {
			continue
		}
		for _, vid := range n.VoiceIDs {
			if v := c.voices.Voice(vid); v != nil {
				v.Release()
			}
		}
	}
}

// triggerReleaseVoices spawns release-trigger voices per spec.md §4.6,
// deriving the synthesised velocity either from the original note-off or a
// fixed 127 when releaseTriggerCC64Override is set (sustain-pedal source).
func (c *Channel) triggerReleaseVoices(k, velocity uint8, cycle int64) {
	relVelocity := velocity
	if c.releaseTriggerCC64Override != nil {
		relVelocity = *c.releaseTriggerCC64Override
	}
	if c.current == nil {
		return
	}
	noteID, ok := c.notes.Alloc(k)
	if !ok {
		c.sink.Warn("note_pool_exhausted_release_trigger", diag.F("key", k))
		return
	}
	spawned := false
	for _, region := range c.current.MatchingRegions(k, relVelocity) {
		if !region.ReleaseTrigger() {
			continue
		}
		c.triggerVoice(region, k, relVelocity, cycle, noteID)
		spawned = true
	}
	if !spawned {
		c.notes.Free(noteID)
	}
}

// SetSustainPedal handles CC64; on pedal-up every key still SustainHeld
// (and not also held by sostenuto) is released, with the CC64-override
// scratch field forcing a 127 release-trigger velocity for the duration.
func (c *Channel) SetSustainPedal(down bool, cycle int64) {
	c.sustainDown = down
	c.controllers[midi.CCSustain] = boolToMIDI(down)
	if !down {
		c.releaseHeldKeys(cycle)
	}
}

// SetSostenuto handles CC66: capture currently pressed keys on press,
// release any still held solely by sostenuto on release.
func (c *Channel) SetSostenuto(on bool, cycle int64) {
	c.controllers[midi.CCSostenuto] = boolToMIDI(on)
	if on {
		for k := 0; k < keyboard.NumKeys; k++ {
			if c.keys.Keys[k].Pressed {
				c.sostenutoKeys[k] = true
			}
		}
		return
	}
	for k := range c.sostenutoKeys {
		c.sostenutoKeys[k] = false
	}
	c.releaseHeldKeys(cycle)
}

func (c *Channel) releaseHeldKeys(cycle int64) {
	for k := 0; k < keyboard.NumKeys; k++ {
		key := &c.keys.Keys[k]
		if !key.SustainHeld || c.sustainDown || c.sostenutoKeys[k] {
			continue
		}
		key.SustainHeld = false
		c.releaseKey(uint8(k))
		if key.ReleaseTriggerOn {
			override := uint8(127)
			c.releaseTriggerCC64Override = &override
			c.triggerReleaseVoices(uint8(k), 127, cycle)
			c.releaseTriggerCC64Override = nil
		}
	}
}

// SetController records an arbitrary CC value for region/script lookups;
// CCSustain and CCSostenuto are additionally routed through their dedicated
// handlers by the caller (channel does not special-case them here to keep
// a single source of truth for the pedal state machines).
func (c *Channel) SetController(cc, value uint8) { c.controllers[cc&0x7f] = value }

// Controller returns the last value received for cc.
func (c *Channel) Controller(cc uint8) uint8 { return c.controllers[cc&0x7f] }

// SetMuted mutes the channel; if MuteRenderingEnabled is false, further
// note-ons are simply dropped (spec.md §4.5 step 2).
func (c *Channel) SetMuted(muted bool) { c.muted = muted }

// SetSoloMode enables/disables solo-key handling (spec.md §4.5 step 5).
func (c *Channel) SetSoloMode(on bool) {
	c.soloMode = on
	if !on {
		c.haveSoloKey = false
	}
}

// AddFXSend registers a named send chain with initial send/return levels.
func (c *Channel) AddFXSend(name string, chain *fx.Chain, sendLevel, returnLevel float32) {
	c.fxSends[name] = chain
	c.sendLevels[name] = sendLevel
	c.returnLevels[name] = returnLevel
}

// StealOldestKeyFrom exposes the channel-local half of the oldest_key
// stealing search (spec.md §4.4) so engine.Engine can compose the
// cross-channel round-robin cursor on top of it.
func (c *Channel) StealOldestKeyFrom(startKey uint8, cycle int64) (key uint8, voiceID uint32, found bool) {
	return c.keys.StealOldestKeyFrom(startKey, cycle)
}

// MIDIChannel returns the channel's configured MIDI channel number.
func (c *Channel) MIDIChannel() uint8 { return c.cfg.MIDIChannel }

// SetMIDIChannel reassigns the MIDI channel number this EngineChannel
// responds to, used by the control surface's SetMIDIChannel command.
func (c *Channel) SetMIDIChannel(midiChannel uint8) { c.cfg.MIDIChannel = midiChannel }

// KillAllVoices force-fades every voice currently sounding on this channel,
// used by SuspendAll and by RemoveChannel before the channel is detached.
func (c *Channel) KillAllVoices() {
	for k := 0; k < keyboard.NumKeys; k++ {
		c.keys.KillVoicesOnKey(uint8(k), c.diskKill)
	}
}

// RemoveFXSend detaches a send chain; existing tail content is discarded.
func (c *Channel) RemoveFXSend(name string) {
	delete(c.fxSends, name)
	delete(c.sendLevels, name)
	delete(c.returnLevels, name)
}

func boolToMIDI(b bool) uint8 {
	if b {
		return 127
	}
	return 0
}

// RenderFragment renders n frames (n <= cfg.MaxFragment) of every active
// voice on this channel, mixes per-channel CC7 volume and the registered
// FX sends, and pans the result to stereo using CC10. Ended voices are
// reaped after the mix so a voice renders its final partial fragment
// before its slot is freed.
func (c *Channel) RenderFragment(n int, cycle int64) (left, right []float32) {
	c.applyPendingInstrumentChange()

	mono := c.mixBuf[:n]
	c.activeBufs = c.activeBufs[:0]

	count := 0
	for k := 0; k < keyboard.NumKeys; k++ {
		key := &c.keys.Keys[k]
		for _, nid := range key.NoteIDs {
			nt := c.notes.Get(nid)
			if nt == nil {
				continue
			}
			for _, vid := range nt.VoiceIDs {
				v := c.voices.Voice(vid)
				if v == nil || !v.IsActive() {
					continue
				}
				if count >= len(c.voiceBufs) {
					c.sink.Warn("voice_render_slots_exhausted", diag.F("channel", c.cfg.MIDIChannel))
					break
				}
				buf := c.voiceBufs[count][:n]
				produced := v.Render(buf)
				for i := produced; i < n; i++ {
					buf[i] = 0
				}
				if produced < n {
					v.MarkEnded()
				}
				c.activeBufs = append(c.activeBufs, buf)
				c.voiceGains[count] = 1.0
				count++
			}
		}
	}

	mix.SumWeighted(c.activeBufs, c.voiceGains[:count], mono)
	gain.ApplyBuffer(mono, float32(c.controllers[midi.CCVolume])/127.0)

	for name, chain := range c.fxSends {
		send := c.sendLevels[name]
		if send > 0 {
			gain.ApplyBufferTo(mono, send, chain.Input()[:n])
		} else {
			chain.ClearInput(n)
		}
		chain.Render(n)
		ret := c.returnLevels[name]
		if ret > 0 {
			tail := chain.Tail(n)
			for i := 0; i < n; i++ {
				mono[i] += tail[i] * ret
			}
		}
	}

	left, right = c.leftBuf[:n], c.rightBuf[:n]
	panPos := (float32(c.controllers[midi.CCPan]) - 64) / 64
	pan.Process(mono, panPos, pan.ConstantPower, left, right)

	c.reapEndedVoices()
	return left, right
}

// reapEndedVoices frees every voice that reached StateEnded this fragment,
// posts a disk-stream kill for any of them holding a StreamHandle, detaches
// the voice from its owning note, and frees notes that are now empty —
// scoped to this channel's own keys, so it never touches a voice another
// channel owns even though the arena itself is shared. nt.VoiceIDs is
// copied into c.voiceIDScratch (reused fragment to fragment, like
// c.activeBufs) before freeing, since freeing a voice mutates nt.VoiceIDs
// out from under a direct range.
func (c *Channel) reapEndedVoices() {
	for k := 0; k < keyboard.NumKeys; k++ {
		key := &c.keys.Keys[k]
		for i := 0; i < len(key.NoteIDs); i++ {
			nid := key.NoteIDs[i]
			nt := c.notes.Get(nid)
			if nt == nil {
				continue
			}
			c.voiceIDScratch = append(c.voiceIDScratch[:0], nt.VoiceIDs...)
			for _, vid := range c.voiceIDScratch {
				v := c.voices.Voice(vid)
				if v == nil {
					continue
				}
				if v.State() == voice.StateEnded {
					if c.diskKill != nil {
						if h := v.StreamHandle(); h != nil {
							c.diskKill(h.ID)
						}
					}
					c.voices.Free(vid)
					nt.RemoveVoice(vid)
				}
			}
			if nt.Empty() {
				c.keys.NoteOff(uint8(k), nid, false)
				c.notes.Free(nid)
				i--
			}
		}
	}
}
