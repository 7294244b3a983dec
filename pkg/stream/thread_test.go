package stream

import (
	"testing"
	"time"
)

func TestThreadLaunchAndRefillViaCommand(t *testing.T) {
	th := NewThread(4, 64, 8, 16, 2, nil)
	go th.Run()
	defer th.Stop()

	src := memSource{data: make([]float32, 200)}
	for i := range src.data {
		src.data[i] = float32(i)
	}
	if !th.PostCommand(Command{Kind: CmdLaunch, StreamIdx: 0, Source: src, StartFrame: 0, Loop: Loop{Mode: LoopNone}}) {
		t.Fatal("expected launch command to post")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if th.Slot(0).Headroom() > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if th.Slot(0).Headroom() == 0 {
		t.Fatal("expected disk thread to refill stream 0")
	}
}

func TestThreadKillAcknowledgesPendingDeletion(t *testing.T) {
	th := NewThread(2, 64, 8, 16, 1, nil)
	go th.Run()
	defer th.Stop()

	src := memSource{data: make([]float32, 50)}
	th.PostCommand(Command{Kind: CmdLaunch, StreamIdx: 0, Source: src})
	th.PostCommand(Command{Kind: CmdKill, StreamIdx: 0})

	done := make(chan struct{})
	go func() {
		th.AskForDeletedStream()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected AskForDeletedStream to return once kill was processed")
	}
}
