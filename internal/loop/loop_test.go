package loop

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newManual(t *testing.T) (*Loop, *ManualClock) {
	t.Helper()
	clk := NewManualClock(time.Unix(1000, 0))
	l := New(Config{TickRate: 60}, clk, zerolog.Nop())
	l.SetSpawner(Inline)
	return l, clk
}

func TestPostRunsOnNextStep(t *testing.T) {
	l, _ := newManual(t)
	ran := false
	l.Post(func() { ran = true })
	if ran {
		t.Fatalf("post ran before step")
	}
	l.Step()
	if !ran {
		t.Fatalf("post did not run on step")
	}
}

func TestAsyncResumesOnLaterTick(t *testing.T) {
	l, _ := newManual(t)
	var got int
	Async(l, func() int { return 42 }, func(v int) { got = v })
	if got != 0 {
		t.Fatalf("resume ran inside the issuing call")
	}
	l.Step()
	if got != 42 {
		t.Fatalf("resume result = %d", got)
	}
}

func TestTimersFireInDueOrder(t *testing.T) {
	l, clk := newManual(t)
	var order []string
	l.After(300*time.Millisecond, func() { order = append(order, "late") })
	l.After(100*time.Millisecond, func() { order = append(order, "early") })
	canceled := l.After(200*time.Millisecond, func() { order = append(order, "canceled") })
	l.Cancel(canceled)

	clk.Advance(50 * time.Millisecond)
	l.Step()
	if len(order) != 0 {
		t.Fatalf("fired too early: %v", order)
	}
	clk.Advance(time.Second)
	l.Step()
	if len(order) != 2 || order[0] != "early" || order[1] != "late" {
		t.Fatalf("order = %v", order)
	}
	if l.Pending() != 0 {
		t.Fatalf("one-shot timers should be removed, pending=%d", l.Pending())
	}
}

func TestEveryRepeatsUntilCanceled(t *testing.T) {
	l, clk := newManual(t)
	n := 0
	id := l.Every(100*time.Millisecond, func() { n++ })
	for i := 0; i < 5; i++ {
		clk.Advance(100 * time.Millisecond)
		l.Step()
	}
	if n != 5 {
		t.Fatalf("ticks = %d, want 5", n)
	}
	l.Cancel(id)
	clk.Advance(time.Second)
	l.Step()
	if n != 5 {
		t.Fatalf("canceled timer fired")
	}
}

func TestCallbackPanicIsContained(t *testing.T) {
	l, _ := newManual(t)
	after := false
	l.Post(func() { panic("bad callback") })
	l.Post(func() { after = true })
	l.Step()
	if !after {
		t.Fatalf("panic stopped later callbacks")
	}
}

func TestOnTickReceivesDelta(t *testing.T) {
	l, clk := newManual(t)
	var seen TickContext
	l.OnTick(func(tc TickContext) { seen = tc })
	clk.Advance(16 * time.Millisecond)
	l.Step()
	if seen.Tick != 1 || seen.Delta != 16*time.Millisecond {
		t.Fatalf("tick context = %+v", seen)
	}
}

func TestDoWithRunningLoop(t *testing.T) {
	l := New(Config{TickRate: 200}, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	value := 0
	if err := l.Do(context.Background(), func() { value = 7 }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if value != 7 {
		t.Fatalf("value = %d", value)
	}
	cancel()
	<-errCh
	if err := l.Do(context.Background(), func() {}); err != ErrStopped {
		t.Fatalf("expected ErrStopped after shutdown, got %v", err)
	}
}
