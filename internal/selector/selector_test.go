package selector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xtding233/sector-run/internal/graph"
	"github.com/xtding233/sector-run/internal/ledger"
	"github.com/xtding233/sector-run/internal/loop"
	"github.com/xtding233/sector-run/internal/run"
)

type harness struct {
	loop     *loop.Loop
	life     *run.Lifecycle
	sel      *Selector
	resolver *graph.Resolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	src, err := graph.NewEmbeddedSource()
	if err != nil {
		t.Fatalf("embedded: %v", err)
	}
	lp := loop.New(loop.Config{TickRate: 60}, loop.NewManualClock(time.Unix(0, 0)), zerolog.Nop())
	lp.SetSpawner(loop.Inline)
	led := ledger.Open(context.Background(), ledger.NewMemoryStore(), "p", zerolog.Nop())
	life := run.New(led, zerolog.Nop())
	res := graph.NewResolver(src, "sector-default", zerolog.Nop())
	return &harness{loop: lp, life: life, resolver: res, sel: New(lp, res, life, time.Second, zerolog.Nop())}
}

func TestPreviewOffersChoiceAndResumesOnce(t *testing.T) {
	h := newHarness(t)
	h.life.Begin(run.Options{Seed: 1})
	h.life.Choose("start")

	calls := 0
	var got Decision
	h.sel.PreviewNextNodes(context.Background(), func(d Decision) { calls++; got = d })
	if h.sel.Phase() != PhaseResolving {
		t.Fatalf("phase = %s", h.sel.Phase())
	}
	h.loop.Step()
	if h.sel.Phase() != PhaseAwaitingChoice || len(h.sel.Options()) != 2 {
		t.Fatalf("phase = %s options = %+v", h.sel.Phase(), h.sel.Options())
	}
	if calls != 0 {
		t.Fatalf("resumed before choice")
	}

	if err := h.sel.Choose("boss"); !errors.Is(err, ErrNotOffered) {
		t.Fatalf("expected ErrNotOffered, got %v", err)
	}
	if err := h.sel.Choose("mid-b"); err != nil {
		t.Fatalf("choose: %v", err)
	}
	if err := h.sel.Choose("mid-a"); !errors.Is(err, ErrNoChoicePending) {
		t.Fatalf("expected ErrNoChoicePending, got %v", err)
	}
	if calls != 1 || got.Node.ID != "mid-b" || got.Auto {
		t.Fatalf("calls=%d decision=%+v", calls, got)
	}
	if h.life.CurrentNodeID() != "mid-b" {
		t.Fatalf("lifecycle not advanced: %s", h.life.CurrentNodeID())
	}
}

func TestSingleExitIsAutoSelected(t *testing.T) {
	h := newHarness(t)
	h.life.Begin(run.Options{Seed: 1})
	h.life.Choose("mid-a")

	var got *Decision
	h.sel.PreviewNextNodes(context.Background(), func(d Decision) { got = &d })
	h.loop.Step()
	if got == nil || !got.Auto || got.Node.ID != "boss" {
		t.Fatalf("decision = %+v", got)
	}
	if h.life.CurrentNodeID() != "boss" {
		t.Fatalf("auto choice not recorded")
	}
}

func TestNoExitsMeansRouteComplete(t *testing.T) {
	h := newHarness(t)
	h.life.Begin(run.Options{Seed: 1})
	h.life.Choose("boss")

	var got *Decision
	h.sel.PreviewNextNodes(context.Background(), func(d Decision) { got = &d })
	h.loop.Step()
	if got == nil || !got.RouteComplete {
		t.Fatalf("decision = %+v", got)
	}
}

func TestMissingGraphMeansRouteComplete(t *testing.T) {
	h := newHarness(t)
	h.resolver = graph.NewResolver(graph.StaticSource(nil), "sector-default", zerolog.Nop())
	h.sel = New(h.loop, h.resolver, h.life, time.Second, zerolog.Nop())
	h.life.Begin(run.Options{Seed: 1})

	var got *Decision
	h.sel.PreviewNextNodes(context.Background(), func(d Decision) { got = &d })
	h.loop.Step()
	if got == nil || !got.RouteComplete {
		t.Fatalf("decision = %+v", got)
	}
}

func TestStaleResultIsDiscarded(t *testing.T) {
	h := newHarness(t)
	var queued []func()
	h.loop.SetSpawner(func(fn func()) { queued = append(queued, fn) })
	h.life.Begin(run.Options{Seed: 1})

	h.life.Choose("start")
	var aCalls int
	h.sel.PreviewNextNodes(context.Background(), func(Decision) { aCalls++ })

	h.life.Choose("mid-a")
	var bDecision *Decision
	tokB := h.sel.PreviewNextNodes(context.Background(), func(d Decision) { bDecision = &d })

	if len(queued) != 2 {
		t.Fatalf("expected two in-flight previews, got %d", len(queued))
	}
	queued[1]() // B resolves first
	h.loop.Step()
	queued[0]() // then A
	h.loop.Step()

	if aCalls != 0 {
		t.Fatalf("stale preview resumed")
	}
	if bDecision == nil || bDecision.Token != tokB || bDecision.Node.ID != "boss" {
		t.Fatalf("B decision = %+v", bDecision)
	}
	if h.sel.Phase() != PhaseIdle || len(h.sel.Options()) != 0 {
		t.Fatalf("selector reflects stale result: phase=%s options=%+v", h.sel.Phase(), h.sel.Options())
	}
}

func TestCancelDropsPendingChoice(t *testing.T) {
	h := newHarness(t)
	h.life.Begin(run.Options{Seed: 1})
	calls := 0
	h.sel.PreviewNextNodes(context.Background(), func(Decision) { calls++ })
	h.loop.Step()
	h.sel.Cancel()
	if err := h.sel.Choose("mid-a"); !errors.Is(err, ErrNoChoicePending) {
		t.Fatalf("expected ErrNoChoicePending after cancel, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("canceled continuation ran")
	}
}

type slowResolver struct{ release chan struct{} }

func (s slowResolver) Exits(ctx context.Context, _, _ string) []graph.Node {
	select {
	case <-s.release:
	case <-time.After(time.Second):
	}
	return []graph.Node{{ID: "late", Type: graph.NodeWave}}
}

func TestResolveTimeoutMeansRouteComplete(t *testing.T) {
	h := newHarness(t)
	slow := slowResolver{release: make(chan struct{})}
	defer close(slow.release)
	h.sel = New(h.loop, slow, h.life, 20*time.Millisecond, zerolog.Nop())
	h.life.Begin(run.Options{Seed: 1})

	var got *Decision
	h.sel.PreviewNextNodes(context.Background(), func(d Decision) { got = &d })
	h.loop.Step()
	if got == nil || !got.RouteComplete {
		t.Fatalf("decision = %+v", got)
	}
}
