// Package script implements instrument scripts as a design-level
// cooperative scheduler rather than a bytecode VM: a Handler runs to
// completion or returns Suspended. The engine neither runs Handlers nor
// re-schedules a suspended Context; VM.ResumeAtKey only records the
// resume time for whoever does.
package script

import (
	"github.com/justyntemme/sampler-core/pkg/event"
)

// Status is the outcome of one Handler invocation.
type Status int

const (
	// Completed means the handler ran to the end of its body.
	Completed Status = iota
	// Suspended means the handler called StopWait and must resume later.
	Suspended
)

// MaxForkPerScriptHandler bounds how many times a single handler
// invocation may Fork, named directly from the instrument-script
// engine's MAX_FORK_PER_SCRIPT_HANDLER constant.
const MaxForkPerScriptHandler = 32

// Handler is one compiled script entry point: a "note" handler, a
// "release" handler, or a controller/sysex callback. It receives the
// execution context and returns whether it completed or suspended.
type Handler func(*Context) Status

// VM is the fixed-size execution context a Context carries: an operand
// stack and resume bookkeeping. Kept as a plain struct (no heap-growing
// slices beyond the fixed stack) so Fork can deep-copy it cheaply.
type VM struct {
	Stack       [32]int64
	StackTop    int
	ResumeAtKey int64 // absolute scheduler.Queue time to resume at, if Suspended
}

// Push and Pop give handlers a minimal operand stack; Pop returns ok=false
// on underflow rather than panicking, since a script fault must degrade
// to ScriptRuntimeError, never crash the audio thread.
func (vm *VM) Push(v int64) bool {
	if vm.StackTop >= len(vm.Stack) {
		return false
	}
	vm.Stack[vm.StackTop] = v
	vm.StackTop++
	return true
}

func (vm *VM) Pop() (int64, bool) {
	if vm.StackTop == 0 {
		return 0, false
	}
	vm.StackTop--
	return vm.Stack[vm.StackTop], true
}

// Vars is the polyphonic variable storage a note/release handler pair
// shares across the pair's lifetime, stored by name since script content
// itself (what variables exist, what they mean) is out of scope here.
type Vars map[string]int64

// Context is the per-invocation state a Handler runs against: the
// triggering event, this invocation's VM, the shared polyphonic
// variables, and the fork budget remaining for this handler call.
type Context struct {
	Cause      event.Event
	VM         VM
	Vars       Vars
	forksLeft  int
	forkedInto []*Context
}

// NewContext starts a fresh invocation for cause, with its own polyphonic
// variable map (a note handler) or a shared one passed in by the caller
// (a release handler resuming its paired note handler's Vars).
func NewContext(cause event.Event, vars Vars) *Context {
	if vars == nil {
		vars = make(Vars)
	}
	return &Context{Cause: cause, Vars: vars, forksLeft: MaxForkPerScriptHandler}
}

// StopWait suspends the current handler; forever=true means it never
// resumes on its own (e.g. waiting on an external event the engine will
// explicitly signal), forever=false means the caller is responsible for
// re-scheduling it at VM.ResumeAtKey via the owning scheduler.Queue.
func (c *Context) StopWait(forever bool) Status {
	if forever {
		c.VM.ResumeAtKey = -1
	}
	return Suspended
}

// Fork deep-copies this context's VM into a new Context sharing the same
// Vars and Cause, used by a script's "play_note"-from-within-a-handler
// style forking. ok is false once MaxForkPerScriptHandler has been
// exhausted for this invocation, the ScriptRuntimeError condition the
// caller must report rather than silently drop.
func (c *Context) Fork() (child *Context, ok bool) {
	if c.forksLeft <= 0 {
		return nil, false
	}
	c.forksLeft--
	child = &Context{Cause: c.Cause, VM: c.VM, Vars: c.Vars, forksLeft: c.forksLeft}
	c.forkedInto = append(c.forkedInto, child)
	return child, true
}

// Run invokes h against c once, the single entry point the engine's
// event dispatcher calls both for a fresh trigger and for a resumed
// Suspended context.
func Run(h Handler, c *Context) Status {
	if h == nil {
		return Completed
	}
	return h(c)
}
