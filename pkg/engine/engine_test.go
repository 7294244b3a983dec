package engine

import (
	"testing"

	"github.com/justyntemme/sampler-core/pkg/channel"
	"github.com/justyntemme/sampler-core/pkg/instrument"
	"github.com/justyntemme/sampler-core/pkg/midi"
	"github.com/justyntemme/sampler-core/pkg/voice"
)

type constSource struct{ v float32 }

func (c constSource) Frame(pos float64) (float32, bool) { return c.v, true }

type wholeRangeRegion struct{ level float32 }

func (r wholeRangeRegion) Matches(key, velocity uint8) bool { return true }

func (r wholeRangeRegion) Trigger(key, velocity uint8, sampleRate float64) (voice.Params, voice.Source, bool) {
	return voice.Params{
		Key: key, Velocity: velocity, SampleRate: sampleRate, PitchHz: sampleRate,
		Attack: 0.0001, Decay: 0.0001, Sustain: 1, Release: 0.01, MinFadeOutFrames: 8,
	}, constSource{v: r.level}, true
}

func (r wholeRangeRegion) ReleaseTrigger() bool { return false }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig(48000)
	cfg.MaxVoices = 4
	cfg.MaxNotes = 8 // more notes than voices, so the voice pool is the one that runs out
	cfg.MaxFragment = 64
	return New(cfg, nil)
}

func TestRenderMixesChannelNoteOn(t *testing.T) {
	e := newTestEngine(t)
	c := e.AddChannel(channel.Config{MIDIChannel: 0, MaxRenderVoices: 4})
	e.LoadInstrument(c, &instrument.Instrument{Regions: []instrument.Region{wholeRangeRegion{level: 1}}})
	c.Input.Add(midi.NoteOnEvent{BaseEvent: midi.BaseEvent{Offset: 0}, NoteNumber: 60, Velocity: 100})

	left := &sliceChannel{buf: make([]float32, 32)}
	right := &sliceChannel{buf: make([]float32, 32)}
	if err := e.Render(32, left, right); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	sum := float32(0)
	for i := range left.buf {
		sum += left.buf[i]*left.buf[i] + right.buf[i]*right.buf[i]
	}
	if sum == 0 {
		t.Fatal("expected non-silent render after channel input note-on")
	}
}

func TestCrossChannelStealFallsBackAcrossChannels(t *testing.T) {
	e := newTestEngine(t)
	a := e.AddChannel(channel.Config{MIDIChannel: 0, MaxRenderVoices: 4})
	b := e.AddChannel(channel.Config{MIDIChannel: 1, MaxRenderVoices: 4})
	instr := &instrument.Instrument{Regions: []instrument.Region{wholeRangeRegion{level: 1}}}
	e.LoadInstrument(a, instr)
	e.LoadInstrument(b, instr)

	left := &sliceChannel{buf: make([]float32, 8)}
	right := &sliceChannel{buf: make([]float32, 8)}
	e.Render(8, left, right) // applies pending instrument swap on both channels

	a.NoteOn(60, 100, 0, true, 0)
	a.NoteOn(61, 100, 0, true, 0)
	a.NoteOn(62, 100, 0, true, 0)
	a.NoteOn(63, 100, 0, true, 0)
	if e.voices.Len() != 4 {
		t.Fatalf("expected the voice pool full at 4, got %d", e.voices.Len())
	}

	// Pool is exhausted; a note-on on the other channel in a later fragment
	// must fall back to the cross-channel steal cursor rather than silently
	// drop. Stealing kills a victim's envelope (fast fade) but does not
	// free its slot until the next render reaps it, so the pool stays
	// full and the new note is still dropped this same fragment — what
	// we're verifying here is that the steal cursor was actually consulted.
	b.NoteOn(64, 100, 1, true, 0)

	if e.lastStolenKey == 0 {
		t.Fatal("expected the steal cursor to have advanced past its zero value")
	}
}

type sliceChannel struct{ buf []float32 }

func (s *sliceChannel) Write(frames []float32) { copy(s.buf, frames) }
func (s *sliceChannel) Clear() {
	for i := range s.buf {
		s.buf[i] = 0
	}
}
