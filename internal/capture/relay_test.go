package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRelay_PushBeforeStart(t *testing.T) {
	r := NewRelay(0)
	if r.Push(Event{Kind: EventEnd}) {
		t.Fatal("push accepted by idle relay")
	}
}

func TestRelay_ForwardsAndStops(t *testing.T) {
	r := NewRelay(4)
	var stops atomic.Int32
	r.OnStop = func() { stops.Add(1) }

	ch, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Start(context.Background()); !errors.Is(err, ErrRelayBusy) {
		t.Fatalf("second Start err = %v", err)
	}

	if !r.Push(Event{Kind: EventResult, Final: []string{"hi"}}) {
		t.Fatal("push rejected")
	}
	ev := <-ch
	if len(ev.Final) != 1 || ev.Final[0] != "hi" {
		t.Fatalf("event = %+v", ev)
	}

	r.Stop()
	r.Stop()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Stop")
	}
	if stops.Load() != 1 {
		t.Fatalf("OnStop called %d times, want 1", stops.Load())
	}
	if r.Push(Event{Kind: EventEnd}) {
		t.Fatal("push accepted after Stop")
	}

	if _, err := r.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	r.Stop()
}

func TestRelay_StopsWithContext(t *testing.T) {
	r := NewRelay(1)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := r.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay not stopped by context")
	}
	if r.Active() {
		t.Fatal("relay still active")
	}
}

func TestRelay_FullBufferDrops(t *testing.T) {
	r := NewRelay(1)
	if _, err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	if !r.Push(Event{Kind: EventResult}) {
		t.Fatal("first push rejected")
	}
	if r.Push(Event{Kind: EventResult}) {
		t.Fatal("push into full buffer accepted")
	}
}
