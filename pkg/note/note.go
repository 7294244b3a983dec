// Package note implements the Note abstraction that sits between a MIDI
// key and its Voices: one Note groups every Voice spawned by a single
// note-on (one per applicable region/layer), tracks parent/child linkage
// for script-spawned child notes, and records the host key a released
// child note should report back to.
package note

import "github.com/justyntemme/sampler-core/pkg/pool"

// Note is one pool-managed note instance. A key may hold several Notes
// concurrently (e.g. a held note plus a script-spawned child note).
type Note struct {
	HostKey  uint8
	ParentID pool.ID // 0 if this note has no parent
	Children []pool.ID

	VoiceIDs []uint32 // stable pool.ID values of every Voice this note owns

	// ScriptState is the opaque per-note polyphonic variable storage
	// handed to script "note"/"release" handler pairs; script semantics
	// live in package script, this field only carries the reference.
	ScriptState any
}

// Pool is a fixed-capacity arena of Notes, sized by the engine to its
// configured MaxNotes (one note can in principle own every voice, but
// in practice the note count tracks live note-ons, not voices).
type Pool struct {
	pool *pool.Pool[Note]
}

// NewPool creates a Note arena with room for n simultaneous notes.
func NewPool(n int) *Pool {
	return &Pool{pool: pool.New[Note](n, pool.Options{})}
}

// Alloc reserves a new Note for hostKey, returning its stable ID.
// ok is false if the note pool is exhausted (PoolExhausted, handled by
// the caller dropping the triggering event with a diagnostic).
func (p *Pool) Alloc(hostKey uint8) (id pool.ID, ok bool) {
	idx, id, ok := p.pool.Take()
	if !ok {
		return 0, false
	}
	*p.pool.At(idx) = Note{HostKey: hostKey}
	return id, true
}

// Get resolves an ID to its Note, or nil if the ID is stale (the note was
// freed and its slot possibly reincarnated).
func (p *Pool) Get(id pool.ID) *Note { return p.pool.Get(id) }

// Free returns a note's slot to the pool. Callers must have already
// killed every voice the note owns.
func (p *Pool) Free(id pool.ID) {
	idx, ok := p.pool.FromID(id)
	if !ok {
		return
	}
	p.pool.Free(idx)
}

// Link records parentID as this note's parent and appends this note's id
// to the parent's Children list, used when an event carries a
// parent_note_id (script-spawned play_note). ok is false if parentID does
// not resolve to a live note, in which case the caller must fail the
// triggering event rather than create an orphaned child.
func (p *Pool) Link(childID, parentID pool.ID) (ok bool) {
	parent := p.Get(parentID)
	if parent == nil {
		return false
	}
	child := p.Get(childID)
	if child == nil {
		return false
	}
	child.ParentID = parentID
	parent.Children = append(parent.Children, childID)
	return true
}

// AddVoice records a newly triggered voice's stable ID against the note.
func (n *Note) AddVoice(voiceID uint32) {
	n.VoiceIDs = append(n.VoiceIDs, voiceID)
}

// RemoveVoice drops a voice id once its voice has ended and been freed.
func (n *Note) RemoveVoice(voiceID uint32) {
	for i, id := range n.VoiceIDs {
		if id == voiceID {
			n.VoiceIDs = append(n.VoiceIDs[:i], n.VoiceIDs[i+1:]...)
			return
		}
	}
}

// Empty reports whether the note has no remaining live voices, meaning it
// is safe to free.
func (n *Note) Empty() bool { return len(n.VoiceIDs) == 0 }
