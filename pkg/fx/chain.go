// Package fx hosts the send-effect chains a channel feeds from its mixed
// mono voice bus; there are no per-voice send buffers. The DSP inside a
// chain stage is out of scope here (effect implementations are supplied by
// the caller); this package owns only the routing: holding a chain's
// input, invoking the chain in
// fragment-sized blocks, and exposing the chain's tail for the final mix.
package fx

import "fmt"

// Processor is one stage of a Chain. Process runs in-place over a
// fragment-sized mono buffer.
type Processor interface {
	Process(buffer []float32)
	Reset()
}

// StereoProcessor is one stage of a StereoChain.
type StereoProcessor interface {
	ProcessStereo(left, right []float32)
	Reset()
}

// ProcessorFunc adapts a plain function to Processor.
type ProcessorFunc func([]float32)

func (f ProcessorFunc) Process(buffer []float32) { f(buffer) }
func (f ProcessorFunc) Reset()                   {}

// Chain is an ordered, mono send-effect chain: the channel writes its mixed
// mono voice bus, scaled by the send level, into Input(), calls Render(n),
// then mixes Tail() back into that bus before panning.
type Chain struct {
	name       string
	processors []Processor
	input      []float32
	bypass     bool
}

// NewChain creates an empty chain with a fragment-sized input buffer.
func NewChain(name string, maxFragment int) *Chain {
	return &Chain{name: name, input: make([]float32, maxFragment)}
}

// Name returns the chain's label, used for diagnostics and add/remove by name.
func (c *Chain) Name() string { return c.name }

// Add appends a processing stage to the chain.
func (c *Chain) Add(p Processor) *Chain {
	c.processors = append(c.processors, p)
	return c
}

// Input returns the chain's mono input buffer, sized to the caller's
// fragment length. The channel overwrites it with its mixed voice bus
// scaled by the send level before calling Render; no per-voice sends are
// accumulated into it.
func (c *Chain) Input() []float32 { return c.input }

// Render runs the chain's stages over the first n samples of Input() and
// leaves the result there; Tail() then returns that same range.
func (c *Chain) Render(n int) {
	if c.bypass || n <= 0 {
		return
	}
	buf := c.input[:n]
	for _, p := range c.processors {
		p.Process(buf)
	}
}

// Tail returns the first n samples of the chain's processed output, ready
// to be mixed into the main outputs. It aliases Input()'s storage.
func (c *Chain) Tail(n int) []float32 { return c.input[:n] }

// ClearInput zeroes the first n samples of the input buffer; the channel
// calls this instead of writing a send when the send level is zero.
func (c *Chain) ClearInput(n int) {
	buf := c.input[:n]
	for i := range buf {
		buf[i] = 0
	}
}

// Reset resets every stage's internal state (e.g. on instrument change).
func (c *Chain) Reset() {
	for _, p := range c.processors {
		p.Reset()
	}
}

// SetBypass disables rendering while still accepting sends (Tail then
// returns the input unprocessed).
func (c *Chain) SetBypass(bypass bool) { c.bypass = bypass }

// Count returns the number of stages in the chain.
func (c *Chain) Count() int { return len(c.processors) }

// StereoChain is a send-effect chain operating on a stereo pair, used for
// sends whose effect is inherently stereo-coupled (e.g. a shared reverb).
type StereoChain struct {
	name       string
	processors []StereoProcessor
	inputL     []float32
	inputR     []float32
	bypass     bool
}

// NewStereoChain creates an empty stereo chain with fragment-sized buffers.
func NewStereoChain(name string, maxFragment int) *StereoChain {
	return &StereoChain{
		name:   name,
		inputL: make([]float32, maxFragment),
		inputR: make([]float32, maxFragment),
	}
}

func (c *StereoChain) Add(p StereoProcessor) *StereoChain {
	c.processors = append(c.processors, p)
	return c
}

// Input returns the chain's left/right input buffers.
func (c *StereoChain) Input() (left, right []float32) { return c.inputL, c.inputR }

func (c *StereoChain) Render(n int) {
	if c.bypass || n <= 0 {
		return
	}
	l, r := c.inputL[:n], c.inputR[:n]
	for _, p := range c.processors {
		p.ProcessStereo(l, r)
	}
}

func (c *StereoChain) Tail(n int) (left, right []float32) {
	return c.inputL[:n], c.inputR[:n]
}

func (c *StereoChain) ClearInput(n int) {
	for i := 0; i < n; i++ {
		c.inputL[i] = 0
		c.inputR[i] = 0
	}
}

func (c *StereoChain) Reset() {
	for _, p := range c.processors {
		p.Reset()
	}
}

func (c *StereoChain) SetBypass(bypass bool) { c.bypass = bypass }

// Builder provides a fluent, validating constructor for a mono Chain,
// matching the pattern the rest of the engine uses for multi-step setup
// (see channel.Builder).
type Builder struct {
	chain  *Chain
	errs   []error
}

// NewBuilder starts building a named chain with the given max fragment size.
func NewBuilder(name string, maxFragment int) *Builder {
	return &Builder{chain: NewChain(name, maxFragment)}
}

// WithProcessor appends a stage, recording an error instead of panicking on nil.
func (b *Builder) WithProcessor(p Processor) *Builder {
	if p == nil {
		b.errs = append(b.errs, fmt.Errorf("fx: nil processor added to chain %q", b.chain.name))
		return b
	}
	b.chain.Add(p)
	return b
}

// Build returns the assembled chain, or the first error recorded while
// building it.
func (b *Builder) Build() (*Chain, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	return b.chain, nil
}
