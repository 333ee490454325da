// Package session drives one run end to end on the tick loop: node entry,
// encounter setup, modifiers, rewards, selection and the post-run summary.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtding233/sector-run/internal/encounter"
	"github.com/xtding233/sector-run/internal/graph"
	"github.com/xtding233/sector-run/internal/ledger"
	"github.com/xtding233/sector-run/internal/loop"
	"github.com/xtding233/sector-run/internal/modifier"
	"github.com/xtding233/sector-run/internal/report"
	"github.com/xtding233/sector-run/internal/rng"
	"github.com/xtding233/sector-run/internal/run"
	"github.com/xtding233/sector-run/internal/selector"
)

var (
	ErrNoRun         = errors.New("no run in progress")
	ErrNoEncounter   = errors.New("no encounter is running")
	ErrWrongKind     = errors.New("input does not apply to the current encounter")
	ErrShotNotFired  = errors.New("ship cannot fire yet")
	ErrUnknownBullet = errors.New("unknown bullet")
)

// Phase of the director between and during encounters.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseEntering  Phase = "entering"
	PhaseFighting  Phase = "fighting"
	PhaseContinue  Phase = "continue"
	PhaseSelecting Phase = "selecting"
	PhaseFinished  Phase = "finished"
)

const (
	startingLives   = 3
	eventBacklog    = 64
	playerMinX      = 20.0
	playerMaxX      = encounter.ArenaWidth - 20
	accuracyScatter = 100
)

// Graphs is what the director needs from the graph resolver.
type Graphs interface {
	selector.ExitResolver
	Node(ctx context.Context, graphID, nodeID string) (graph.Node, bool)
}

// Options configures a Director. Zero values fall back to defaults.
type Options struct {
	StrictBegin    bool
	ResolveTimeout time.Duration
	ContinueDelay  time.Duration
	Lives          int
	PlayerName     string
	Wave           encounter.WaveOptions
	Registry       *modifier.Registry
	Reporter       *report.Reporter
}

// Shot is a player bullet leaving the ship.
type Shot struct {
	ID       int     `json:"id"`
	X        float64 `json:"x"`
	VX       float64 `json:"vx"`
	Piercing bool    `json:"piercing"`
}

// Director is owned by the tick loop. Callers on other goroutines go through loop.Do.
type Director struct {
	loop      *loop.Loop
	ledger    *ledger.Ledger
	lifecycle *run.Lifecycle
	selector  *selector.Selector
	graphs    Graphs
	registry  *modifier.Registry
	reporter  *report.Reporter
	log       zerolog.Logger
	opts      Options

	ctx    context.Context
	gen    uint64
	phase  Phase
	rng    rng.Source
	player *encounter.Player
	enc    encounter.Encounter
	node   graph.Node
	level  int
	danger encounter.Danger
	score  int

	nextBullet int
	piercing   map[int]bool
	events     []encounter.Event
	summary    *report.Summary
	onFinish   []func(report.Summary)
	onEvent    []func(encounter.Event)
}

func New(lp *loop.Loop, led *ledger.Ledger, graphs Graphs, logger zerolog.Logger, opts Options) *Director {
	if opts.ContinueDelay <= 0 {
		opts.ContinueDelay = 2500 * time.Millisecond
	}
	if opts.Lives <= 0 {
		opts.Lives = startingLives
	}
	if opts.PlayerName == "" {
		opts.PlayerName = "Player"
	}
	if opts.Registry == nil {
		opts.Registry = modifier.NewRegistry(logger)
	}
	lc := run.New(led, logger, run.WithStrictBegin(opts.StrictBegin), run.WithClock(lp.Now))
	d := &Director{
		loop:      lp,
		ledger:    led,
		lifecycle: lc,
		graphs:    graphs,
		registry:  opts.Registry,
		reporter:  opts.Reporter,
		log:       logger.With().Str("component", "session").Logger(),
		opts:      opts,
		ctx:       context.Background(),
		phase:     PhaseIdle,
		piercing:  make(map[int]bool),
	}
	d.selector = selector.New(lp, graphs, lc, opts.ResolveTimeout, logger)
	lp.OnTick(d.tick)
	return d
}

func (d *Director) Lifecycle() *run.Lifecycle      { return d.lifecycle }
func (d *Director) Selector() *selector.Selector   { return d.selector }
func (d *Director) Registry() *modifier.Registry   { return d.registry }
func (d *Director) Ledger() *ledger.Ledger         { return d.ledger }
func (d *Director) Phase() Phase                   { return d.phase }
func (d *Director) Encounter() encounter.Encounter { return d.enc }

// OnFinish registers fn to receive every finished run's summary.
func (d *Director) OnFinish(fn func(report.Summary)) {
	if fn != nil {
		d.onFinish = append(d.onFinish, fn)
	}
}

// OnEvent registers fn to see every encounter event as it is collected.
func (d *Director) OnEvent(fn func(encounter.Event)) {
	if fn != nil {
		d.onEvent = append(d.onEvent, fn)
	}
}

// Start begins a run and enters the graph's start node.
func (d *Director) Start(ctx context.Context, opts run.Options) (run.State, error) {
	if d.lifecycle.Active() {
		if d.opts.StrictBegin {
			return run.State{}, fmt.Errorf("start: %w", run.ErrRunInProgress)
		}
		d.teardown()
	}
	st, err := d.lifecycle.Begin(opts)
	if err != nil {
		return run.State{}, err
	}
	d.ctx = context.WithoutCancel(ctx)
	d.gen++
	d.rng = rng.NewSeeded(uint64(st.Seed))
	d.player = encounter.NewPlayer(d.opts.Lives)
	ApplyLoadout(d.loop.Now(), d.player, st.Loadout)
	d.level, d.danger, d.score = 0, 0, 0
	d.events, d.summary = nil, nil
	d.piercing = make(map[int]bool)

	st, _ = d.lifecycle.Choose(graph.StartID)
	d.enter(st.GraphID, graph.StartID)
	return st, nil
}

// enter resolves nodeID off the loop and starts its encounter on a later tick.
func (d *Director) enter(graphID, nodeID string) {
	d.phase = PhaseEntering
	gen := d.gen
	ctx := d.ctx
	loop.Async(d.loop, func() graph.Node {
		if n, ok := d.graphs.Node(ctx, graphID, nodeID); ok {
			return n
		}
		return graph.Node{ID: nodeID, Type: graph.NodeWave}
	}, func(n graph.Node) {
		if gen != d.gen || !d.lifecycle.Active() {
			return
		}
		d.begin(n)
	})
}

func (d *Director) begin(n graph.Node) {
	now := d.loop.Now()
	d.level++
	d.node = n
	f := encounter.NewField(d.level, d.player, d.rng)
	if n.Type == graph.NodeBoss {
		d.enc = encounter.NewBoss(now, f)
	} else {
		d.enc = encounter.NewWave(now, f, d.opts.Wave)
	}
	d.enc.ApplyDanger(now, d.danger)
	if n.Modifier != "" {
		d.registry.Activate(n.Modifier, modifier.Context{Now: now, Encounter: d.enc, Timers: d.loop})
	}
	d.phase = PhaseFighting
	d.log.Info().Str("node", n.ID).Str("type", string(n.Type)).Int("level", d.level).
		Int("danger", int(d.danger)).Str("modifier", n.Modifier).Msg("encounter started")
}

func (d *Director) tick(tc loop.TickContext) {
	if d.phase != PhaseFighting || d.enc == nil {
		return
	}
	d.enc.Update(tc.Now, tc.Delta)
	d.collect()
	switch d.enc.Outcome() {
	case encounter.OutcomeCleared:
		d.cleared(tc.Now)
	case encounter.OutcomeLost:
		d.lost()
	}
}

func (d *Director) collect() {
	evs := d.enc.Field().DrainEvents()
	if len(evs) == 0 {
		return
	}
	for _, ev := range evs {
		for _, fn := range d.onEvent {
			fn(ev)
		}
	}
	d.events = append(d.events, evs...)
	if over := len(d.events) - eventBacklog; over > 0 {
		d.events = append([]encounter.Event(nil), d.events[over:]...)
	}
}

// Reward computes what clearing a node pays, before field bonuses.
func Reward(n graph.Node, level int, salvageMult float64, elite bool) run.WaveResult {
	salvage := int(math.Max(10, math.Round(float64(level)*15)))
	if n.Reward != nil && n.Reward.Salvage != nil {
		salvage = *n.Reward.Salvage
	}
	if salvageMult > 0 {
		salvage = int(math.Floor(float64(salvage) * salvageMult))
	}
	cores := 1
	if level%3 == 0 {
		cores++
	}
	if elite {
		cores++
	}
	if level%5 == 0 {
		cores++
	}
	if n.Reward != nil && n.Reward.Cores != nil {
		cores = *n.Reward.Cores
	}
	label := n.Title
	if label == "" {
		label = fmt.Sprintf("Level %d", level)
	}
	return run.WaveResult{NodeID: n.ID, Salvage: salvage, Cores: cores, Label: label}
}

func (d *Director) cleared(now time.Time) {
	d.registry.Clear()
	f := d.enc.Field()
	d.collect()
	d.score += f.Score
	d.lifecycle.RecordWaveResult(Reward(d.node, d.level, d.player.SalvageMult, f.Elite))
	if f.BonusSalvage > 0 {
		label := "Salvage Bonus"
		if d.node.Reward != nil && d.node.Reward.Bonus != "" {
			label = d.node.Reward.Bonus
		}
		d.lifecycle.RecordWaveResult(run.WaveResult{NodeID: d.node.ID, Salvage: f.BonusSalvage, Label: label})
	}
	d.danger++
	boss := d.enc.Kind() == encounter.KindBoss
	d.enc = nil
	d.log.Info().Str("node", d.node.ID).Int("danger", int(d.danger)).Msg("encounter cleared")

	if boss {
		d.player.GainLife()
		d.phase = PhaseContinue
		gen := d.gen
		d.loop.After(d.opts.ContinueDelay, func() {
			if gen == d.gen && d.phase == PhaseContinue {
				d.selectNext()
			}
		})
		return
	}
	d.selectNext()
}

func (d *Director) selectNext() {
	d.phase = PhaseSelecting
	d.selector.PreviewNextNodes(d.ctx, d.decided)
}

func (d *Director) decided(dec selector.Decision) {
	if !d.lifecycle.Active() {
		return
	}
	if dec.RouteComplete {
		d.finish(true, "Route complete")
		return
	}
	d.phase = PhaseEntering
	d.begin(dec.Node)
}

func (d *Director) lost() {
	d.registry.Clear()
	d.score += d.enc.Field().Score
	d.enc = nil
	d.finish(false, "Ship destroyed")
}

func (d *Director) finish(success bool, note string) {
	st := d.lifecycle.Complete(run.Outcome{Success: success, Notes: []string{note}})
	if st == nil {
		return
	}
	d.phase = PhaseFinished
	d.publish(d.record(*st, d.score))
}

func (d *Director) record(st run.State, score int) report.Summary {
	sum := report.Build(st)
	sum.Score = score
	d.summary = &sum
	for _, fn := range d.onFinish {
		fn(sum)
	}
	return sum
}

// Complete ends the active run on the caller's word. A running encounter and
// its modifier are released before earnings commit. Unlike a run the director
// finishes itself, the leaderboard submission is left to the caller; see Submitted.
func (d *Director) Complete(out run.Outcome) *report.Summary {
	if !d.lifecycle.Active() {
		return nil
	}
	var score int
	if d.phase != PhaseIdle && d.phase != PhaseFinished {
		if d.enc != nil {
			d.score += d.enc.Field().Score
		}
		score = d.score
	}
	d.teardown()
	st := d.lifecycle.Complete(out)
	if st == nil {
		return nil
	}
	d.phase = PhaseFinished
	sum := d.record(*st, score)
	return &sum
}

// Submitted replaces the latest summary with one carrying its leaderboard result.
func (d *Director) Submitted(sum report.Summary) {
	if d.summary != nil && d.summary.RunID == sum.RunID {
		d.summary = &sum
	}
}

// publish hands the summary to the leaderboard off the loop.
func (d *Director) publish(sum report.Summary) {
	if d.reporter == nil {
		return
	}
	ctx, name := d.ctx, d.opts.PlayerName
	loop.Async(d.loop, func() report.Summary {
		return d.reporter.Finish(ctx, sum, name)
	}, d.Submitted)
}

// Choose answers a pending node choice.
func (d *Director) Choose(nodeID string) error {
	if !d.lifecycle.Active() {
		return ErrNoRun
	}
	return d.selector.Choose(nodeID)
}

// Abandon forfeits the active run without committing earnings.
func (d *Director) Abandon(reason string) *run.State {
	if !d.lifecycle.Active() {
		return nil
	}
	d.teardown()
	st := d.lifecycle.Abandon(reason)
	if st != nil {
		sum := report.Build(*st)
		sum.Score = d.score
		d.summary = &sum
	}
	d.phase = PhaseIdle
	return st
}

func (d *Director) teardown() {
	d.gen++
	d.registry.Clear()
	d.selector.Cancel()
	d.enc = nil
}

// Summary is the latest finished run's panel, or nil.
func (d *Director) Summary() *report.Summary {
	if d.summary == nil {
		return nil
	}
	s := *d.summary
	return &s
}

func (d *Director) field() (*encounter.Field, error) {
	if d.phase != PhaseFighting || d.enc == nil {
		return nil, ErrNoEncounter
	}
	return d.enc.Field(), nil
}

// HitUnit applies a player hit to a wave unit.
func (d *Director) HitUnit(id int) (bool, int, error) {
	w, ok := d.enc.(*encounter.Wave)
	if _, err := d.field(); err != nil {
		return false, 0, err
	}
	if !ok {
		return false, 0, ErrWrongKind
	}
	killed, pts := w.HitUnit(d.loop.Now(), id)
	return killed, pts, nil
}

// FirePlayerShot fires if the ship is off cooldown. Against a boss a ready
// overcharge arms the shot as piercing.
func (d *Director) FirePlayerShot() (Shot, error) {
	f, err := d.field()
	if err != nil {
		return Shot{}, err
	}
	now := d.loop.Now()
	if !d.player.TryFire(now) {
		return Shot{}, ErrShotNotFired
	}
	d.nextBullet++
	s := Shot{ID: d.nextBullet, X: d.player.X}
	if d.player.Accuracy < 1 && !rng.Roll(d.player.Accuracy, f.RNG) {
		s.VX = float64(rng.Between(f.RNG, -accuracyScatter, accuracyScatter))
	}
	if b, ok := d.enc.(*encounter.Boss); ok && b.ArmShot() {
		s.Piercing = true
		d.piercing[s.ID] = true
	}
	return s, nil
}

// HitBoss applies bullet id to the boss. Piercing is taken from how the bullet was fired.
func (d *Director) HitBoss(bulletID int) (float64, bool, error) {
	if _, err := d.field(); err != nil {
		return 0, false, err
	}
	b, ok := d.enc.(*encounter.Boss)
	if !ok {
		return 0, false, ErrWrongKind
	}
	if bulletID <= 0 || bulletID > d.nextBullet {
		return 0, false, ErrUnknownBullet
	}
	pierce := d.piercing[bulletID]
	delete(d.piercing, bulletID)
	dmg, defeated := b.Hit(d.loop.Now(), bulletID, pierce)
	return dmg, defeated, nil
}

// HitEntity damages an auxiliary entity such as debris or an escort.
func (d *Director) HitEntity(id int) (bool, error) {
	f, err := d.field()
	if err != nil {
		return false, err
	}
	return f.HitEntity(d.loop.Now(), id, 1), nil
}

// PlayerHit applies one enemy hit to the ship and reports whether it was destroyed.
func (d *Director) PlayerHit() (bool, error) {
	f, err := d.field()
	if err != nil {
		return false, err
	}
	now := d.loop.Now()
	out := f.DamagePlayer(now)
	if w, ok := d.enc.(*encounter.Wave); ok && out {
		w.Lose(now)
	}
	return out, nil
}

func (d *Director) MovePlayer(x float64) error {
	if d.player == nil || !d.lifecycle.Active() {
		return ErrNoRun
	}
	d.player.X = math.Max(playerMinX, math.Min(playerMaxX, x))
	return nil
}

// GrantDoubleReward doubles kill points for dur in the current encounter.
func (d *Director) GrantDoubleReward(dur time.Duration) error {
	f, err := d.field()
	if err != nil {
		return err
	}
	f.GrantDoubleReward(d.loop.Now(), dur)
	return nil
}
