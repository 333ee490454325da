package graph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func intp(v int) *int { return &v }

func embedded(t *testing.T) *EmbeddedSource {
	t.Helper()
	src, err := NewEmbeddedSource()
	if err != nil {
		t.Fatalf("embedded source: %v", err)
	}
	return src
}

func TestEmbeddedDefaultGraphIsValid(t *testing.T) {
	nodes, err := embedded(t).Fetch(context.Background(), "sector-default")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := Validate("sector-default", nodes); err != nil {
		t.Fatalf("validate: %v", err)
	}
	exits := ExitsOf(nodes, StartID)
	if len(exits) != 2 || exits[0].ID != "mid-a" || exits[1].ID != "mid-b" {
		t.Fatalf("start exits = %+v", exits)
	}
	boss, ok := Find(nodes, "boss")
	if !ok || boss.Type != NodeBoss || boss.Reward == nil || *boss.Reward.Cores != 1 {
		t.Fatalf("boss node = %+v", boss)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	nodes := []Node{
		{ID: "a", Type: "shop", Exits: []string{"ghost"}},
		{ID: "a", Type: NodeWave},
	}
	err := Validate("broken", nodes)
	if !errors.Is(err, ErrInvalidGraph) {
		t.Fatalf("expected ErrInvalidGraph, got %v", err)
	}
	for _, want := range []string{"defined twice", "type must be", `"start" is required`, `exit "ghost"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	nodes := []Node{
		{ID: "start", Type: NodeWave, Exits: []string{"a"}},
		{ID: "a", Type: NodeWave, Exits: []string{"b"}},
		{ID: "b", Type: NodeWave, Exits: []string{"a"}},
	}
	if err := Validate("loop", nodes); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

type countingSource struct {
	calls atomic.Int32
	delay time.Duration
	inner Source
}

func (c *countingSource) Fetch(ctx context.Context, id string) ([]Node, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return c.inner.Fetch(ctx, id)
}

func TestResolverCachesAndSharesFetches(t *testing.T) {
	src := &countingSource{delay: 20 * time.Millisecond, inner: embedded(t)}
	r := NewResolver(src, "sector-default", zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if nodes := r.Resolve(context.Background(), "sector-default"); len(nodes) != 4 {
				t.Errorf("resolved %d nodes", len(nodes))
			}
		}()
	}
	wg.Wait()
	r.Resolve(context.Background(), "sector-default")
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}

	r.Invalidate()
	r.Resolve(context.Background(), "sector-default")
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("fetch calls after invalidate = %d, want 2", got)
	}
}

func TestResolverReturnsClones(t *testing.T) {
	r := NewResolver(embedded(t), "sector-default", zerolog.Nop())
	nodes := r.Resolve(context.Background(), "")
	nodes[0].Exits[0] = "tampered"
	again := r.Resolve(context.Background(), "")
	if again[0].Exits[0] == "tampered" {
		t.Fatalf("cache mutated through returned slice")
	}
}

func TestResolverFallsBackToDefault(t *testing.T) {
	r := NewResolver(embedded(t), "sector-default", zerolog.Nop())
	nodes := r.Resolve(context.Background(), "no-such-graph")
	if _, ok := Find(nodes, StartID); !ok || len(nodes) != 4 {
		t.Fatalf("expected default graph, got %+v", nodes)
	}
}

func TestResolverEmptyWhenNothingResolves(t *testing.T) {
	r := NewResolver(StaticSource(nil), "sector-default", zerolog.Nop())
	if nodes := r.Resolve(context.Background(), "x"); nodes == nil || len(nodes) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", nodes)
	}
}

func TestResolverRejectsInvalidGraph(t *testing.T) {
	src := StaticSource(map[string][]Node{
		"bad":            {{ID: "lonely", Type: NodeWave}},
		"sector-default": {{ID: "start", Type: NodeWave}},
	})
	r := NewResolver(src, "sector-default", zerolog.Nop())
	nodes := r.Resolve(context.Background(), "bad")
	if len(nodes) != 1 || nodes[0].ID != StartID {
		t.Fatalf("invalid graph should fall back to default, got %+v", nodes)
	}
}

type panicSource struct{}

func (panicSource) Fetch(context.Context, string) ([]Node, error) { panic("boom") }

func TestResolverRecoversSourcePanic(t *testing.T) {
	r := NewResolver(panicSource{}, "sector-default", zerolog.Nop())
	if nodes := r.Resolve(context.Background(), "sector-default"); len(nodes) != 0 {
		t.Fatalf("expected empty list, got %+v", nodes)
	}
}

func TestFileSourceAndBundle(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "graphs"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	single := "- id: start\n  type: boss\n  rewardPreview:\n    salvage: 5\n"
	if err := os.WriteFile(filepath.Join(dir, "graphs", "solo.yaml"), []byte(single), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	multi := "graphs:\n  duo:\n    - id: start\n      type: wave\n      exits: [end]\n    - id: end\n      type: boss\n"
	if err := os.WriteFile(filepath.Join(dir, "graphs.yaml"), []byte(multi), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := NewFileSource(dir)
	solo, err := src.Fetch(context.Background(), "solo")
	if err != nil || len(solo) != 1 || solo[0].Type != NodeBoss || *solo[0].Reward.Salvage != 5 {
		t.Fatalf("solo = %+v err=%v", solo, err)
	}
	duo, err := src.Fetch(context.Background(), "duo")
	if err != nil || len(duo) != 2 {
		t.Fatalf("duo = %+v err=%v", duo, err)
	}
	if _, err := src.Fetch(context.Background(), "none"); !errors.Is(err, ErrGraphNotFound) {
		t.Fatalf("expected ErrGraphNotFound, got %v", err)
	}

	chain := Chain{src, embedded(t)}
	if nodes, err := chain.Fetch(context.Background(), "sector-default"); err != nil || len(nodes) != 4 {
		t.Fatalf("chain fallback = %d nodes err=%v", len(nodes), err)
	}
}

func TestNodeCloneIsDeep(t *testing.T) {
	n := Node{ID: "x", Exits: []string{"y"}, Reward: &RewardPreview{Salvage: intp(3)}}
	c := n.Clone()
	*c.Reward.Salvage = 9
	c.Exits[0] = "z"
	if *n.Reward.Salvage != 3 || n.Exits[0] != "y" {
		t.Fatalf("clone aliased original: %+v", n)
	}
}

func TestWatcherDetectsChanges(t *testing.T) {
	dir := t.TempDir()
	graphs := filepath.Join(dir, "graphs")
	if err := os.MkdirAll(graphs, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(graphs, "a.yaml")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var changed []string
	w := NewWatcher(Paths{BaseDir: dir}, time.Hour, func(p string) { changed = append(changed, p) })
	w.scan(true)
	if len(changed) != 0 {
		t.Fatalf("prime should not notify: %v", changed)
	}

	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	w.scan(false)
	if len(changed) != 1 || changed[0] != path {
		t.Fatalf("expected change for %s, got %v", path, changed)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	w.scan(false)
	if len(changed) != 2 {
		t.Fatalf("expected removal notification, got %v", changed)
	}
	w.Stop()
	w.Stop()
}
