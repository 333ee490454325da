package modifier

import (
	"time"

	"github.com/xtding233/sector-run/internal/encounter"
	"github.com/xtding233/sector-run/internal/loop"
)

// Scheduler is the timer surface a rule may use. *loop.Loop satisfies it.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func()) loop.TimerID
	Every(d time.Duration, fn func()) loop.TimerID
	Cancel(id loop.TimerID)
}

// Guard records the undo steps of one applied rule. Release runs them once, newest first.
type Guard struct {
	undo     []func()
	groups   []string
	released bool
}

func (g *Guard) Defer(fn func()) {
	if g.released {
		fn()
		return
	}
	g.undo = append(g.undo, fn)
}

// Timer registers a timer for cancellation and returns its id.
func (g *Guard) Timer(s Scheduler, id loop.TimerID) loop.TimerID {
	g.Defer(func() { s.Cancel(id) })
	return id
}

// Spawn adds e to group and removes the whole group on release.
func (g *Guard) Spawn(now time.Time, f *encounter.Field, group string, e encounter.Entity) *encounter.Entity {
	ent := f.Spawn(now, group, e)
	g.ownGroup(f, group)
	return ent
}

// Overlay turns name on and off again on release.
func (g *Guard) Overlay(f *encounter.Field, name string) {
	f.SetOverlay(name, true)
	g.Defer(func() { f.SetOverlay(name, false) })
}

func (g *Guard) ownGroup(f *encounter.Field, group string) {
	for _, name := range g.groups {
		if name == group {
			return
		}
	}
	g.groups = append(g.groups, group)
	g.Defer(func() { f.ClearGroup(group) })
}

// Release undoes everything the rule registered. Later calls do nothing.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	var first any
	for i := len(g.undo) - 1; i >= 0; i-- {
		if p := runStep(g.undo[i]); p != nil && first == nil {
			first = p
		}
	}
	g.undo = nil
	if first != nil {
		panic(first)
	}
}

// runStep runs fn so one failing undo step cannot skip the rest.
func runStep(fn func()) (p any) {
	defer func() { p = recover() }()
	fn()
	return nil
}

func (g *Guard) Released() bool { return g.released }
