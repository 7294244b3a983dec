package voice

import "github.com/justyntemme/sampler-core/pkg/pool"

// Pool is a fixed-capacity arena of Voices, shared by every channel on the
// engine (spec §3: "Engine ... owns the voice pool ... Channels borrow
// the pools for allocation").
type Pool struct {
	arena      *pool.Pool[Voice]
	sampleRate float64
}

// NewPool creates a voice arena with room for n simultaneous voices.
func NewPool(n int, sampleRate float64) *Pool {
	return &Pool{arena: pool.New[Voice](n, pool.Options{}), sampleRate: sampleRate}
}

// Alloc reserves a voice slot and triggers it in place, returning its
// stable pool id. ok is false (PoolExhausted) if the arena is full; the
// caller is responsible for invoking the voice-stealing path first.
func (p *Pool) Alloc(params Params, src Source, cycle int64) (id uint32, ok bool) {
	idx, rawID, ok := p.arena.Take()
	if !ok {
		return 0, false
	}
	v := p.arena.At(idx)
	v.Reset(p.sampleRate)
	v.Trigger(params, src, cycle)
	return uint32(rawID), true
}

// Voice resolves a stable id to the live *Voice, or nil if stale. It
// satisfies keyboard.VoiceRef.
func (p *Pool) Voice(id uint32) *Voice { return p.arena.Get(pool.ID(id)) }

// Free returns a voice's slot to the pool once it has reached StateEnded.
func (p *Pool) Free(id uint32) {
	idx, ok := p.arena.FromID(pool.ID(id))
	if !ok {
		return
	}
	p.arena.Free(idx)
}

// Len returns the number of currently allocated voices.
func (p *Pool) Len() int { return p.arena.Len() }

// Cap returns the arena's total capacity (MaxVoices()).
func (p *Pool) Cap() int { return p.arena.Cap() }

// ReapEnded scans every allocated voice and frees the ones that have
// reached StateEnded, calling onFree(id) for each so the owning Note can
// drop the reference (spec: "Voice ... Freed when its sample ends, its
// release stage completes, or it is killed").
func (p *Pool) ReapEnded(onFree func(id uint32)) {
	var toFree []pool.Index
	p.arena.Each(func(idx pool.Index, v *Voice) {
		if v.State() == StateEnded {
			toFree = append(toFree, idx)
		}
	})
	for _, idx := range toFree {
		id := p.arena.IDOf(idx)
		if onFree != nil {
			onFree(uint32(id))
		}
		p.arena.Free(idx)
	}
}
