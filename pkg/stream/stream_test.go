package stream

import (
	"testing"

	"github.com/justyntemme/sampler-core/pkg/diag"
)

type memSource struct {
	data []float32
}

func (m memSource) ReadFrames(start int64, dst []float32) (int, bool) {
	if start >= int64(len(m.data)) {
		return 0, true
	}
	n := copy(dst, m.data[start:])
	return n, start+int64(n) >= int64(len(m.data))
}

func (m memSource) TotalFrames() int64 { return int64(len(m.data)) }

func TestRefillFillsRingBuffer(t *testing.T) {
	src := memSource{data: make([]float32, 1000)}
	for i := range src.data {
		src.data[i] = float32(i)
	}
	s := NewStream(256, 64, 128)
	s.Launch(src, 0, Loop{Mode: LoopNone})

	s.refill(diag.Default())
	if s.Headroom() == 0 {
		t.Fatal("expected refill to buffer samples")
	}

	out := make([]float32, 10)
	s.Pop(out)
	for i, v := range out {
		if v != float32(i) {
			t.Fatalf("index %d: expected %v got %v", i, float32(i), v)
		}
	}
}

func TestPopSubstitutesSilenceOnUnderrun(t *testing.T) {
	s := NewStream(16, 4, 8)
	out := make([]float32, 10)
	for i := range out {
		out[i] = 99
	}
	s.Pop(out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("index %d: expected silence, got %v", i, v)
		}
	}
}

func TestRefillHonoursLoopCrossing(t *testing.T) {
	src := memSource{data: []float32{0, 1, 2, 3, 4, 5, 6, 7}}
	s := NewStream(64, 8, 16)
	s.Launch(src, 4, Loop{Mode: LoopForward, Start: 4, End: 6, PlayCount: 2})

	s.refill(diag.Default())
	out := make([]float32, 8)
	s.Pop(out)
	// from frame 4: 4,5, loop back to 4: 4,5, loop back: 4,5, then the
	// play count is exhausted and the stream stops, so the rest is silence;
	// assert the first loop lap at least.
	if out[0] != 4 || out[1] != 5 {
		t.Fatalf("expected loop to start at frame 4, got %v", out[:2])
	}
}

func TestNeedsRefillReflectsHeadroom(t *testing.T) {
	src := memSource{data: make([]float32, 100)}
	s := NewStream(32, 16, 16)
	s.Launch(src, 0, Loop{Mode: LoopNone})
	if !s.NeedsRefill() {
		t.Fatal("expected a freshly launched stream to need refill")
	}
	s.refill(diag.Default())
	if s.NeedsRefill() {
		t.Fatal("expected refilled stream to no longer need refill")
	}
}
