package channel

import (
	"fmt"

	"github.com/justyntemme/sampler-core/pkg/fx"
	"github.com/justyntemme/sampler-core/pkg/instrument"
	"github.com/justyntemme/sampler-core/pkg/note"
	"github.com/justyntemme/sampler-core/pkg/voice"
)

// Builder provides a fluent, validating constructor for a Channel plus its
// FX sends, mirroring fx.Builder's pattern for multi-step setup.
type Builder struct {
	channel *Channel
	errs    []error
}

// NewBuilder starts building a channel bound to the given borrowed pools.
func NewBuilder(cfg Config, notes *note.Pool, voices *voice.Pool, steal StealFunc, diskKill DiskKillFunc) *Builder {
	return &Builder{channel: New(cfg, notes, voices, steal, diskKill, nil)}
}

// WithInstrument seeds the channel's current instrument directly, bypassing
// the double-buffered switch (useful for tests and initial engine setup).
func (b *Builder) WithInstrument(instr *instrument.Instrument) *Builder {
	if instr == nil {
		b.errs = append(b.errs, fmt.Errorf("channel: nil instrument"))
		return b
	}
	b.channel.current = instr
	return b
}

// WithFXSend registers a named send chain.
func (b *Builder) WithFXSend(name string, chain *fx.Chain, sendLevel, returnLevel float32) *Builder {
	if chain == nil {
		b.errs = append(b.errs, fmt.Errorf("channel: nil fx chain for send %q", name))
		return b
	}
	b.channel.AddFXSend(name, chain, sendLevel, returnLevel)
	return b
}

// Build returns the assembled channel, or the first error recorded.
func (b *Builder) Build() (*Channel, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	return b.channel, nil
}
