package channel

import (
	"testing"

	"github.com/justyntemme/sampler-core/pkg/fx"
	"github.com/justyntemme/sampler-core/pkg/instrument"
	"github.com/justyntemme/sampler-core/pkg/note"
	"github.com/justyntemme/sampler-core/pkg/voice"
)

type constSource struct{ v float32 }

func (c constSource) Frame(pos float64) (float32, bool) { return c.v, true }

type sustainRegion struct {
	lo, hi         uint8
	releaseTrigger bool
	level          float32
}

func (r sustainRegion) Matches(key, velocity uint8) bool { return key >= r.lo && key <= r.hi }

func (r sustainRegion) Trigger(key, velocity uint8, sampleRate float64) (voice.Params, voice.Source, bool) {
	return voice.Params{
		Key: key, Velocity: velocity, SampleRate: sampleRate, PitchHz: sampleRate,
		Attack: 0.0001, Decay: 0.0001, Sustain: 1, Release: 0.01, MinFadeOutFrames: 8,
	}, constSource{v: r.level}, true
}

func (r sustainRegion) ReleaseTrigger() bool { return r.releaseTrigger }

func newTestChannel(t *testing.T, maxVoices int) *Channel {
	t.Helper()
	notes := note.NewPool(64)
	voices := voice.NewPool(maxVoices, 48000)
	c := New(Config{MIDIChannel: 0, SampleRate: 48000, MaxFragment: 64, MaxRenderVoices: maxVoices}, notes, voices, nil, nil, nil)
	c.current = &instrument.Instrument{Regions: []instrument.Region{sustainRegion{lo: 0, hi: 127, level: 1}}}
	return c
}

func TestNoteOnTriggersVoiceAndRenders(t *testing.T) {
	c := newTestChannel(t, 8)
	c.NoteOn(60, 100, 0, true, 0)

	if !c.keys.Keys[60].Pressed {
		t.Fatal("expected key 60 marked pressed")
	}
	if len(c.keys.Keys[60].NoteIDs) != 1 {
		t.Fatalf("expected one note on key 60, got %d", len(c.keys.Keys[60].NoteIDs))
	}

	left, right := c.RenderFragment(32, 0)
	silentSum := float32(0)
	for i := range left {
		silentSum += left[i]*left[i] + right[i]*right[i]
	}
	if silentSum == 0 {
		t.Fatal("expected non-silent render after note-on")
	}
}

func TestNoteOffReleasesVoice(t *testing.T) {
	c := newTestChannel(t, 8)
	c.NoteOn(60, 100, 0, true, 0)
	c.RenderFragment(4, 0)
	c.NoteOff(60, 64, 1, true)

	nid := c.keys.Keys[60].NoteIDs[0]
	n := c.notes.Get(nid)
	vid := n.VoiceIDs[0]
	v := c.voices.Voice(vid)
	if v.State() != voice.StateRelease {
		t.Fatalf("expected voice in release state after note-off, got %v", v.State())
	}
}

func TestSustainPedalDefersReleaseUntilPedalUp(t *testing.T) {
	c := newTestChannel(t, 8)
	c.SetSustainPedal(true, 0)
	c.NoteOn(60, 100, 0, true, 0)
	c.NoteOff(60, 64, 1, true)

	nid := c.keys.Keys[60].NoteIDs[0]
	vid := c.notes.Get(nid).VoiceIDs[0]
	v := c.voices.Voice(vid)
	if v.State() != voice.StateActive {
		t.Fatalf("expected voice to stay active under sustain, got %v", v.State())
	}

	c.SetSustainPedal(false, 2)
	if v.State() != voice.StateRelease {
		t.Fatalf("expected voice released once pedal lifted, got %v", v.State())
	}
}

func TestSoloModeKillsPreviousSoloKey(t *testing.T) {
	c := newTestChannel(t, 8)
	c.SetSoloMode(true)
	c.NoteOn(60, 100, 0, true, 0)
	firstVid := c.notes.Get(c.keys.Keys[60].NoteIDs[0]).VoiceIDs[0]

	c.NoteOn(64, 100, 1, true, 0)

	first := c.voices.Voice(firstVid)
	if first.State() != voice.StateFastRelease && first.State() != voice.StateEnded {
		t.Fatalf("expected previous solo key's voice to be killed, got %v", first.State())
	}
}

func TestFXSendRoutesSignalThroughChain(t *testing.T) {
	c := newTestChannel(t, 8)
	touched := false
	send := fx.NewChain("reverb", 64)
	send.Add(fx.ProcessorFunc(func(buf []float32) {
		touched = true
		for i := range buf {
			buf[i] *= 2
		}
	}))
	c.AddFXSend("reverb", send, 0.5, 1.0)

	c.NoteOn(60, 100, 0, true, 0)
	c.RenderFragment(16, 0)

	if !touched {
		t.Fatal("expected fx send chain to run once signal was routed into it")
	}
}

func TestVoicePoolExhaustionFallsBackToSteal(t *testing.T) {
	stole := false
	notes := note.NewPool(64)
	voices := voice.NewPool(1, 48000)
	steal := func(cycle int64) (uint32, bool) {
		stole = true
		return 0, false
	}
	c := New(Config{MIDIChannel: 0, SampleRate: 48000, MaxFragment: 32, MaxRenderVoices: 8}, notes, voices, steal, nil, nil)
	c.current = &instrument.Instrument{Regions: []instrument.Region{sustainRegion{lo: 0, hi: 127, level: 1}}}

	c.NoteOn(60, 100, 0, true, 0)
	c.NoteOn(61, 100, 0, true, 0)

	if !stole {
		t.Fatal("expected steal callback to be invoked once the voice pool was exhausted")
	}
}
