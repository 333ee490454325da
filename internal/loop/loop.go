// Package loop runs the single-threaded fixed-tick scheduler that owns all
// run and encounter state. Other goroutines only talk to it through Post and Do.
package loop

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var ErrStopped = errors.New("loop stopped")

// Config tunes the tick rate and how much elapsed time one tick may absorb.
type Config struct {
	TickRate        int
	CatchupMaxTicks int
}

// TickContext describes one executed tick.
type TickContext struct {
	Tick  uint64
	Now   time.Time
	Delta time.Duration
}

// TimerID identifies a scheduled timer; the zero value is never issued.
type TimerID uint64

type timer struct {
	id       TimerID
	due      time.Time
	interval time.Duration // zero for one-shot timers
	fn       func()
}

// Loop is a cooperative scheduler. Posted closures, due timers and tick hooks
// all run on the goroutine calling Step (or Run), one tick at a time.
type Loop struct {
	cfg   Config
	clock Clock
	log   zerolog.Logger

	mu     sync.Mutex
	posted []func()
	wake   chan struct{}

	timers  map[TimerID]*timer
	nextID  TimerID
	hooks   []func(TickContext)
	tick    uint64
	last    time.Time
	spawn   func(func())
	stopped chan struct{}
	running bool
}

// New creates a loop. A nil clock means SystemClock.
func New(cfg Config, clock Clock, logger zerolog.Logger) *Loop {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 60
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Loop{
		cfg:     cfg,
		clock:   clock,
		log:     logger.With().Str("component", "loop").Logger(),
		wake:    make(chan struct{}, 1),
		timers:  make(map[TimerID]*timer),
		last:    clock.Now(),
		spawn:   func(fn func()) { go fn() },
		stopped: make(chan struct{}),
	}
}

// SetSpawner replaces how Async starts off-loop work. Tests pass an inline
// spawner so async results arrive deterministically on the next tick.
func (l *Loop) SetSpawner(spawn func(func())) {
	if spawn == nil {
		spawn = func(fn func()) { go fn() }
	}
	l.spawn = spawn
}

// Inline runs work on the calling goroutine.
func Inline(fn func()) { fn() }

func (l *Loop) Now() time.Time { return l.clock.Now() }

func (l *Loop) Tick() uint64 { return l.tick }

// Post queues fn to run on the loop at the start of the next tick. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it. It requires Run to be active.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Async runs work off the loop and posts resume with its result back onto it.
func Async[T any](l *Loop, work func() T, resume func(T)) {
	l.spawn(func() {
		v := work()
		l.Post(func() { resume(v) })
	})
}

// After schedules fn once, d from now. Loop goroutine only.
func (l *Loop) After(d time.Duration, fn func()) TimerID {
	return l.schedule(d, 0, fn)
}

// Every schedules fn every d, first firing d from now. Loop goroutine only.
func (l *Loop) Every(d time.Duration, fn func()) TimerID {
	if d <= 0 {
		d = time.Second / time.Duration(l.cfg.TickRate)
	}
	return l.schedule(d, d, fn)
}

// Cancel stops a timer. Unknown or already fired ids are ignored.
func (l *Loop) Cancel(id TimerID) {
	delete(l.timers, id)
}

// Pending reports the number of live timers.
func (l *Loop) Pending() int { return len(l.timers) }

// OnTick registers a hook run at the end of every tick.
func (l *Loop) OnTick(fn func(TickContext)) {
	if fn != nil {
		l.hooks = append(l.hooks, fn)
	}
}

func (l *Loop) schedule(d, interval time.Duration, fn func()) TimerID {
	l.nextID++
	id := l.nextID
	l.timers[id] = &timer{id: id, due: l.clock.Now().Add(d), interval: interval, fn: fn}
	return id
}

// Step executes one tick: posted closures, then due timers, then tick hooks.
func (l *Loop) Step() TickContext {
	now := l.clock.Now()
	delta := now.Sub(l.last)
	budget := time.Second / time.Duration(l.cfg.TickRate)
	maxDelta := budget
	if l.cfg.CatchupMaxTicks > 1 {
		maxDelta = budget * time.Duration(l.cfg.CatchupMaxTicks)
	}
	if delta < 0 {
		delta = 0
	} else if delta > maxDelta && l.running {
		delta = maxDelta
	}
	l.last = now
	l.tick++
	tc := TickContext{Tick: l.tick, Now: now, Delta: delta}

	l.drainPosted()

	for _, t := range l.dueTimers(now) {
		// an earlier callback in this tick may have canceled it
		if _, ok := l.timers[t.id]; !ok {
			continue
		}
		if t.interval > 0 {
			t.due = t.due.Add(t.interval)
			if !t.due.After(now) {
				t.due = now.Add(t.interval)
			}
		} else {
			delete(l.timers, t.id)
		}
		l.safeCall("timer", t.fn)
	}

	for _, h := range l.hooks {
		h(tc)
	}
	return tc
}

func (l *Loop) dueTimers(now time.Time) []*timer {
	var due []*timer
	for _, t := range l.timers {
		if !now.Before(t.due) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})
	return due
}

func (l *Loop) safeCall(kind string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.log.Error().Interface("panic", rec).Str("kind", kind).Uint64("tick", l.tick).Msg("loop callback panicked")
		}
	}()
	fn()
}

// Run drives Step on a ticker until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(l.cfg.TickRate))
	defer ticker.Stop()
	l.running = true
	l.last = l.clock.Now()
	defer close(l.stopped)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Step()
		case <-l.wake:
			// drain requests between ticks so Do callers are not held a full tick
			l.drainPosted()
		}
	}
}

func (l *Loop) drainPosted() {
	l.mu.Lock()
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()
	for _, fn := range posted {
		l.safeCall("posted", fn)
	}
}
