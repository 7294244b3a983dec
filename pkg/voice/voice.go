// Package voice implements the per-note playback state machine: a Voice
// renders one region/layer trigger of a Note, carries its own amplitude
// envelope, filter, and LFO, and exposes exactly the state a stealing
// scheduler needs (age, amplitude, stealability) without owning the
// stealing policy itself.
package voice

import (
	"github.com/justyntemme/sampler-core/pkg/dsp/envelope"
	"github.com/justyntemme/sampler-core/pkg/dsp/filter"
	"github.com/justyntemme/sampler-core/pkg/dsp/interpolation"
	"github.com/justyntemme/sampler-core/pkg/dsp/modulation"
)

// PlaybackState is the voice's position in its lifecycle.
type PlaybackState int

const (
	// StateIdle is an unallocated voice sitting in the pool's free list.
	StateIdle PlaybackState = iota
	// StateActive is a voice sounding normally (attack/decay/sustain).
	StateActive
	// StateRelease is a voice in its envelope release stage after note-off.
	StateRelease
	// StateFastRelease is a voice killed by stealing or suspension, fading
	// out over MinFadeOutSamples regardless of its normal release time.
	StateFastRelease
	// StateEnded is a voice that has completed its fade and is ready to be
	// returned to the pool.
	StateEnded
)

// Source supplies sample frames to a Voice. Source implementations are
// supplied by the caller and are out of scope here; stream.Stream does not
// implement it.
type Source interface {
	// Frame returns the sample at the integer position containing pos
	// (Render interpolates between Frame(pos) and Frame(pos+1) itself), or
	// ok=false once the source is exhausted (end of a non-looped sample).
	Frame(pos float64) (value float32, ok bool)
}

// Params are the per-trigger parameters a region/layer hands to a newly
// launched Voice; everything about instrument file parsing that produces
// these values is out of scope.
type Params struct {
	Key              uint8
	Velocity         uint8
	SampleRate       float64
	PitchHz          float64
	Attack           float64
	Decay            float64
	Sustain          float64
	Release          float64
	FilterCutoffHz   float32
	FilterResonance  float32
	LFORateHz        float64
	LFODepth         float64
	ReleaseTrigger   bool
	MinFadeOutFrames int
}

// Voice is one sounding instance of a note trigger. Zero value is not
// usable; construct via Reset inside a pool-backed arena.
type Voice struct {
	key      uint8
	velocity uint8
	noteID   uint32 // pool.ID of the owning Note, 0 if unattached

	state        PlaybackState
	createdCycle int64 // fragment sequence number the voice was spawned in
	ageFrames    int64

	source Source
	pos    float64
	step   float64 // playback rate in source-sample units per output sample

	amp    *envelope.ADSR
	filt   *filter.SVF
	lfo    *modulation.LFO
	stream *StreamHandle

	fadeRemaining int
	minFadeFrames int

	lastAmplitude float64
}

// StreamHandle is the opaque disk-stream reference a Voice holds while its
// sample exceeds the RAM prefetch window; ownership/refill lives in
// package stream.
type StreamHandle struct {
	ID     uint32
	Killed bool
}

// New allocates a standalone Voice (used directly in tests); pool-managed
// voices instead zero-value-construct inside the arena and call Reset.
func New(sampleRate float64) *Voice {
	v := &Voice{
		amp:  envelope.New(sampleRate),
		filt: filter.NewSVF(1),
		lfo:  modulation.NewLFO(sampleRate),
	}
	v.state = StateIdle
	return v
}

// Trigger (re)initialises the voice for a new note and starts its
// envelope attack. cycle is the engine's current fragment sequence number,
// recorded so the stealing scheduler can tell this voice is not yet
// "stealable" until the next fragment.
func (v *Voice) Trigger(p Params, src Source, cycle int64) {
	v.key = p.Key
	v.velocity = p.Velocity
	v.source = src
	v.pos = 0
	v.step = p.PitchHz / noteToSourceRate(p.SampleRate)
	v.state = StateActive
	v.createdCycle = cycle
	v.ageFrames = 0
	v.fadeRemaining = 0
	v.minFadeFrames = p.MinFadeOutFrames
	if v.minFadeFrames <= 0 {
		v.minFadeFrames = 1
	}

	v.amp.SetADSR(p.Attack, p.Decay, p.Sustain, p.Release)
	v.amp.Trigger()
	v.filt.Reset()
	v.lfo.SetFrequency(p.LFORateHz)
	v.lfo.SetDepth(p.LFODepth)
}

func noteToSourceRate(sampleRate float64) float64 { return sampleRate }

// Retrigger restarts envelope and playback position without reallocating
// the voice, used for ModePoly retrigger-on-existing-voice and for
// release-trigger voices synthesised from a matching note-off.
func (v *Voice) Retrigger(velocity uint8) {
	v.velocity = velocity
	v.pos = 0
	v.state = StateActive
	v.amp.Trigger()
}

// Release moves the voice into its normal envelope release stage, e.g. on
// note-off (absent sustain) or on a synthesised release_key event.
func (v *Voice) Release() {
	if v.state == StateActive {
		v.state = StateRelease
		v.amp.Release()
	}
}

// Kill forces a fast fade-out over minFadeFrames regardless of the
// voice's current envelope stage or release time, used by voice stealing
// and region suspension.
func (v *Voice) Kill() {
	if v.state == StateEnded || v.state == StateFastRelease {
		return
	}
	v.state = StateFastRelease
	v.fadeRemaining = v.minFadeFrames
}

// CancelRelease aborts an in-progress release (cancel_release_key),
// returning the voice to normal sustain — used when a new note-on for the
// same key arrives while earlier voices are still fading from a sustained
// note-off.
func (v *Voice) CancelRelease() {
	if v.state == StateRelease {
		v.state = StateActive
		v.amp.Trigger()
	}
}

// IsActive reports whether the voice currently occupies a playing slot
// (anything other than idle or fully ended).
func (v *Voice) IsActive() bool {
	return v.state != StateIdle && v.state != StateEnded
}

// Stealable reports whether this voice may be chosen by the voice-stealing
// scheduler: active, and not created within the current fragment cycle
// (a voice that hasn't rendered a single sample yet must not be eaten).
func (v *Voice) Stealable(currentCycle int64) bool {
	return v.IsActive() && v.createdCycle != currentCycle
}

// Age returns how many frames the voice has been sounding, used by the
// oldest_voice_on_key/oldest_key stealing algorithms.
func (v *Voice) Age() int64 { return v.ageFrames }

// Amplitude returns the voice's current envelope level, 0..1.
func (v *Voice) Amplitude() float64 { return v.lastAmplitude }

// Key returns the MIDI key this voice is sounding.
func (v *Voice) Key() uint8 { return v.key }

// Velocity returns the triggering velocity.
func (v *Voice) Velocity() uint8 { return v.velocity }

// State returns the voice's current playback state.
func (v *Voice) State() PlaybackState { return v.state }

// NoteID returns the pool ID of the owning Note, or 0 if unattached.
func (v *Voice) NoteID() uint32 { return v.noteID }

// StreamHandle returns the voice's disk-stream handle, or nil for a voice
// playing from a fully RAM-resident source. A caller that ends or kills a
// voice holding a non-nil handle must post a CmdKill for it.
func (v *Voice) StreamHandle() *StreamHandle { return v.stream }

// SetNoteID attaches this voice to its owning Note's pool ID.
func (v *Voice) SetNoteID(id uint32) { v.noteID = id }

// Render synthesizes n frames into out, advancing playback position,
// envelope, filter and LFO state. It returns the number of frames
// actually produced before either the source ran dry (non-looped sample
// end) or a fast-release fade completed; callers compare against n to
// detect early termination and must then call MarkEnded.
func (v *Voice) Render(out []float32) int {
	n := len(out)
	for i := 0; i < n; i++ {
		y0, ok := v.source.Frame(v.pos)
		if !ok {
			return i
		}
		y1, _ := v.source.Frame(v.pos + 1)
		frac := float32(v.pos - float64(int64(v.pos)))
		sample := interpolation.Linear(y0, y1, frac)

		lfoVal := v.lfo.Process()
		_ = lfoVal // filter cutoff modulation wiring is left to the channel/region layer

		env := v.amp.Next()
		sample *= env
		v.lastAmplitude = float64(env)

		if v.state == StateFastRelease {
			fadeGain := float32(v.fadeRemaining) / float32(v.minFadeFrames)
			sample *= fadeGain
			v.fadeRemaining--
			if v.fadeRemaining <= 0 {
				out[i] = sample
				v.state = StateEnded
				return i + 1
			}
		} else if !v.amp.IsActive() && v.state == StateRelease {
			v.state = StateEnded
			out[i] = sample
			return i + 1
		}

		out[i] = sample
		v.pos += v.step
		v.ageFrames++
	}
	return n
}

// MarkEnded transitions a voice whose Source ran dry mid-fragment straight
// to StateEnded; the reaper that next observes StateEnded is responsible
// for returning the voice's stream handle, if any, to the disk thread via
// StreamHandle before freeing the voice.
func (v *Voice) MarkEnded() { v.state = StateEnded }

// Reset clears a voice back to idle, used when the arena slot is reused
// for an unrelated note (reincarnation) so no stale envelope/filter state
// leaks into the next trigger.
func (v *Voice) Reset(sampleRate float64) {
	if v.amp == nil {
		v.amp = envelope.New(sampleRate)
	}
	if v.filt == nil {
		v.filt = filter.NewSVF(1)
	}
	if v.lfo == nil {
		v.lfo = modulation.NewLFO(sampleRate)
	}
	v.amp.Reset()
	v.filt.Reset()
	v.state = StateIdle
	v.source = nil
	v.stream = nil
	v.noteID = 0
	v.pos = 0
	v.ageFrames = 0
}
