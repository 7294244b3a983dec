// Package keyboard owns the per-channel MIDI key state: which keys are
// physically down, each key's notes in trigger order, and the
// oldest_voice_on_key / oldest_key voice-stealing search. Keys hold no
// per-key event list.
// Cross-channel round-robin (advancing the engine's steal cursor past the
// channel that just yielded a victim) is layered on top by package
// engine; this package implements the single-channel half of the
// algorithm.
package keyboard

import (
	"github.com/justyntemme/sampler-core/pkg/note"
	"github.com/justyntemme/sampler-core/pkg/pool"
	"github.com/justyntemme/sampler-core/pkg/voice"
)

// NumKeys is the MIDI key range, 0..127.
const NumKeys = 128

// VoiceRef is a resolver from stable voice id to the live *voice.Voice, so
// this package can inspect stealability/age without owning voice storage
// itself; the engine's voice pool supplies this.
type VoiceRef interface {
	Voice(id uint32) *voice.Voice
}

// Key is the per-key state for one of the 128 MIDI note numbers.
type Key struct {
	Pressed          bool
	RoundRobinIndex  int
	SustainHeld      bool // pedal is holding this key's release past physical release
	NoteIDs          []pool.ID
	ReleaseTriggerOn bool // release_trigger_noteoff flag from the loaded region
}

// activeVoices lists every voice id a key's live notes currently own, used
// by the stealing search; computed on demand since Notes are the source
// of truth.
func (k *Key) activeVoices(notes *note.Pool) []uint32 {
	var ids []uint32
	for _, nid := range k.NoteIDs {
		n := notes.Get(nid)
		if n == nil {
			continue
		}
		ids = append(ids, n.VoiceIDs...)
	}
	return ids
}

// Manager owns all 128 keys for one channel.
type Manager struct {
	Keys  [NumKeys]Key
	notes *note.Pool
	refs  VoiceRef
}

// NewManager creates a keyboard manager bound to the channel's note pool
// and a voice resolver.
func NewManager(notes *note.Pool, refs VoiceRef) *Manager {
	return &Manager{notes: notes, refs: refs}
}

// NoteOn records a key as pressed and appends the note id (in trigger
// order, so oldest is always at index 0) to the key's active notes.
func (m *Manager) NoteOn(k uint8, noteID pool.ID, fromRealMIDI bool) {
	key := &m.Keys[k]
	key.NoteIDs = append(key.NoteIDs, noteID)
	if fromRealMIDI {
		key.Pressed = true
		key.RoundRobinIndex++
	}
}

// NoteOff detaches a note id from the key once its voices have all ended.
func (m *Manager) NoteOff(k uint8, noteID pool.ID, fromRealMIDI bool) {
	key := &m.Keys[k]
	for i, id := range key.NoteIDs {
		if id == noteID {
			key.NoteIDs = append(key.NoteIDs[:i], key.NoteIDs[i+1:]...)
			break
		}
	}
	if fromRealMIDI {
		key.Pressed = false
	}
}

// KillVoicesOnKey force-fades every voice on k, used by solo-mode handling
// when a new solo key displaces a previously held one (spec §4.5 step 5)
// and by a channel force-fading everything it owns. onStreamKill, if
// non-nil, is called with the StreamHandle.ID of any killed voice that was
// playing from a disk stream, so the caller can return the stream's slot
// to the disk thread; it does not distinguish release-trigger voices from
// the rest — tagging a voice's originating trigger mode is left to the
// region/instrument layer.
func (m *Manager) KillVoicesOnKey(k uint8, onStreamKill func(streamID uint32)) {
	key := &m.Keys[k]
	for _, nid := range key.NoteIDs {
		n := m.notes.Get(nid)
		if n == nil {
			continue
		}
		for _, vid := range n.VoiceIDs {
			v := m.refs.Voice(vid)
			if v == nil {
				continue
			}
			if onStreamKill != nil {
				if h := v.StreamHandle(); h != nil {
					onStreamKill(h.ID)
				}
			}
			v.Kill()
		}
	}
}

// StealOldestVoiceOnKey implements spec §4.4's oldest_voice_on_key: the
// first stealable voice among the key's notes, scanned oldest-note-first
// then oldest-voice-within-note-first. currentCycle is the engine's
// fragment sequence number, used to exclude voices spawned this fragment.
func (m *Manager) StealOldestVoiceOnKey(k uint8, currentCycle int64) (voiceID uint32, found bool) {
	key := &m.Keys[k]
	for _, nid := range key.NoteIDs {
		n := m.notes.Get(nid)
		if n == nil {
			continue
		}
		for _, vid := range n.VoiceIDs {
			v := m.refs.Voice(vid)
			if v != nil && v.Stealable(currentCycle) {
				return vid, true
			}
		}
	}
	return 0, false
}

// ActiveKeys returns the indices of every key with at least one live note,
// oldest-insertion-order is not meaningful here (callers iterate keys
// numerically per spec's "active-keys list oldest-first" — oldest refers
// to the key's own notes, not key insertion, so numeric order is used as
// the channel's stable key iteration order).
func (m *Manager) ActiveKeys() []uint8 {
	var keys []uint8
	for i := range m.Keys {
		if len(m.Keys[i].NoteIDs) > 0 {
			keys = append(keys, uint8(i))
		}
	}
	return keys
}

// StealOldestKeyFrom implements the channel-local half of spec §4.4's
// oldest_key algorithm: starting at startKey (exclusive) and wrapping
// through all 128 keys, find the first stealable voice via
// StealOldestVoiceOnKey. The engine composes this across channels for the
// full round-robin cursor behaviour.
func (m *Manager) StealOldestKeyFrom(startKey uint8, currentCycle int64) (key uint8, voiceID uint32, found bool) {
	for i := 1; i <= NumKeys; i++ {
		k := uint8((int(startKey) + i) % NumKeys)
		if vid, ok := m.StealOldestVoiceOnKey(k, currentCycle); ok {
			return k, vid, true
		}
	}
	return 0, 0, false
}
