package fx

import "testing"

type gainStage struct {
	mult      float32
	processed bool
}

func (g *gainStage) Process(buffer []float32) {
	for i := range buffer {
		buffer[i] *= g.mult
	}
	g.processed = true
}

func (g *gainStage) Reset() { g.processed = false }

func TestChainInputRenderTail(t *testing.T) {
	c := NewChain("send-a", 8)
	c.Add(&gainStage{mult: 2.0}).Add(&gainStage{mult: 0.5})

	in := c.Input()
	c.ClearInput(4)
	in[0], in[1], in[2], in[3] = 1, 2, 3, 4

	c.Render(4)
	tail := c.Tail(4)
	want := []float32{1, 2, 3, 4} // *2 then *0.5 cancels out
	for i, v := range want {
		if tail[i] != v {
			t.Fatalf("sample %d: expected %v got %v", i, v, tail[i])
		}
	}
}

func TestChainBypassLeavesTailUnchanged(t *testing.T) {
	c := NewChain("send-b", 4)
	c.Add(&gainStage{mult: 10})
	c.SetBypass(true)

	in := c.Input()
	in[0] = 5
	c.Render(1)
	if got := c.Tail(1)[0]; got != 5 {
		t.Fatalf("expected bypass to skip processing, got %v", got)
	}
}

func TestChainClearInputZeroesPriorSend(t *testing.T) {
	c := NewChain("send-c", 4)
	in := c.Input()
	in[0], in[1] = 3, 4
	c.ClearInput(2)
	if in[0] != 0 || in[1] != 0 {
		t.Fatalf("expected cleared input, got %v %v", in[0], in[1])
	}
}

func TestStereoChainRendersBothChannels(t *testing.T) {
	c := NewStereoChain("verb-send", 4)
	var seen int
	c.Add(stereoFunc(func(l, r []float32) {
		seen = len(l) + len(r)
	}))

	l, r := c.Input()
	l[0], r[0] = 1, 1
	c.Render(1)
	if seen != 2 {
		t.Fatalf("expected stereo stage to see both channels, got %d", seen)
	}
}

type stereoFunc func(l, r []float32)

func (f stereoFunc) ProcessStereo(l, r []float32) { f(l, r) }
func (f stereoFunc) Reset()                       {}

func TestBuilderRejectsNilProcessor(t *testing.T) {
	_, err := NewBuilder("bad", 4).WithProcessor(nil).Build()
	if err == nil {
		t.Fatal("expected error building chain with nil processor")
	}
}
