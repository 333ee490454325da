package encounter

import (
	"math"
	"time"

	"github.com/xtding233/sector-run/internal/rng"
)

// UnitState is the formation unit's movement state.
type UnitState int

const (
	UnitIdle UnitState = iota
	UnitDiving
	UnitRecovering
)

func (s UnitState) String() string {
	switch s {
	case UnitDiving:
		return "diving"
	case UnitRecovering:
		return "recovering"
	default:
		return "idle"
	}
}

const (
	formationCols    = 10
	formationX0      = 100.0
	formationY0      = 80.0
	formationSpacing = 60.0
	formationRowGap  = 50.0
	formationStep    = 14.0
	formationDescent = 28.0
	edgeLeft         = 30.0
	edgeRight        = 770.0
	defensiveLine    = 520.0
	repositionY      = 480.0
	settleDistance   = 1.5
	endgameFraction  = 0.3

	firstShotDelay       = 800 * time.Millisecond
	defaultRecoverWindow = 700 * time.Millisecond
)

// Unit is one formation enemy.
type Unit struct {
	ID     int       `json:"id"`
	Row    int       `json:"row"`
	Col    int       `json:"col"`
	Kind   string    `json:"kind"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	HomeX  float64   `json:"homeX"`
	HomeY  float64   `json:"homeY"`
	Health float64   `json:"health"`
	Alive  bool      `json:"alive"`
	State  UnitState `json:"state"`

	vx, vy       float64
	diveEnds     time.Time
	recoverStart time.Time
	recoverFromX float64
	recoverFromY float64
}

// WaveOptions tunes a wave beyond its level.
type WaveOptions struct {
	Easing        Easing
	RecoverWindow time.Duration
}

// Wave is the formation encounter.
type Wave struct {
	field *Field
	rng   rng.Source
	opts  WaveOptions

	units []*Unit
	total int
	dir   float64

	baseStepDelay time.Duration
	stepDelay     time.Duration
	nextStep      time.Time
	nextDive      time.Time
	nextShot      time.Time
	pacer         *VolleyPacer

	outcome Outcome
}

// NewWave builds the formation for the field's level and schedules its first actions from now.
func NewWave(now time.Time, field *Field, opts WaveOptions) *Wave {
	if opts.Easing == "" {
		opts.Easing = EaseOutQuad
	}
	if opts.RecoverWindow <= 0 {
		opts.RecoverWindow = defaultRecoverWindow
	}
	level := field.Level
	if level < 1 {
		level = 1
	}
	rows := 4 + (level-1)/2
	if rows > 6 {
		rows = 6
	}
	w := &Wave{
		field: field,
		rng:   field.RNG,
		opts:  opts,
		dir:   1,
		pacer: NewVolleyPacer(field.RNG),
	}
	id := 0
	for r := 0; r < rows; r++ {
		kind, hp := "alien1", 1.0
		switch r % 3 {
		case 1:
			kind = "alien2"
		case 2:
			kind, hp = "alien3", 2
		}
		for c := 0; c < formationCols; c++ {
			id++
			x := formationX0 + float64(c)*formationSpacing
			y := formationY0 + float64(r)*formationRowGap
			w.units = append(w.units, &Unit{
				ID: id, Row: r, Col: c, Kind: kind,
				X: x, Y: y, HomeX: x, HomeY: y,
				Health: hp, Alive: true,
			})
		}
	}
	w.total = len(w.units)
	w.baseStepDelay = maxDuration(200*time.Millisecond, time.Second-time.Duration(level-1)*100*time.Millisecond)
	w.stepDelay = w.baseStepDelay
	w.nextStep = now.Add(w.stepDelay)
	w.nextDive = now.Add(ms(rng.Between(w.rng, 2600, 4200)))
	w.nextShot = now.Add(firstShotDelay)
	return w
}

func (w *Wave) Kind() Kind       { return KindWave }
func (w *Wave) Field() *Field    { return w.field }
func (w *Wave) Outcome() Outcome { return w.outcome }

// BaseStepDelay is the unscaled formation step delay for this level.
func (w *Wave) BaseStepDelay() time.Duration { return w.baseStepDelay }
func (w *Wave) StepDelay() time.Duration     { return w.stepDelay }

// SetStepDelay overrides the current step delay, e.g. for elite squads.
func (w *Wave) SetStepDelay(d time.Duration) { w.stepDelay = d }

// ScheduleShot moves the next enemy volley to at.
func (w *Wave) ScheduleShot(at time.Time) { w.nextShot = at }

// ScheduleDive moves the next dive attempt to at.
func (w *Wave) ScheduleDive(at time.Time) { w.nextDive = at }

func (w *Wave) NextShot() time.Time { return w.nextShot }

// ApplyDanger rescales step delay and first shot from the baseline.
func (w *Wave) ApplyDanger(now time.Time, d Danger) {
	w.stepDelay = d.WaveStepDelay(w.baseStepDelay)
	w.nextShot = now.Add(d.WaveFirstShot())
	w.nextStep = now.Add(w.stepDelay)
}

// Units returns copies of all units, dead ones included.
func (w *Wave) Units() []Unit {
	out := make([]Unit, len(w.units))
	for i, u := range w.units {
		out[i] = *u
	}
	return out
}

func (w *Wave) Alive() int {
	n := 0
	for _, u := range w.units {
		if u.Alive {
			n++
		}
	}
	return n
}

func (w *Wave) aliveFraction() float64 {
	if w.total == 0 {
		return 0
	}
	return float64(w.Alive()) / float64(w.total)
}

// Update advances the wave to now.
func (w *Wave) Update(now time.Time, dt time.Duration) {
	if w.outcome != OutcomePending {
		return
	}
	secs := dt.Seconds()
	w.field.advanceEntities(secs)
	if !now.Before(w.nextStep) {
		w.stepFormation(now)
	}
	if w.outcome != OutcomePending {
		return
	}
	if !now.Before(w.nextDive) {
		w.launchDives(now)
	}
	w.moveUnits(now, secs)
	if !now.Before(w.nextShot) {
		w.fire(now)
	}
}

func (w *Wave) stepFormation(now time.Time) {
	frac := w.aliveFraction()
	speedFactor := lerp(1, 0.35, 1-frac)
	delay := maxDuration(110*time.Millisecond, time.Duration(float64(w.stepDelay)*speedFactor))
	w.nextStep = now.Add(delay)

	bounce := false
	for _, u := range w.units {
		if !u.Alive {
			continue
		}
		nx := u.HomeX + formationStep*w.dir
		if nx < edgeLeft || nx > edgeRight {
			bounce = true
			break
		}
	}

	for _, u := range w.units {
		if !u.Alive {
			continue
		}
		if bounce {
			u.HomeY += formationDescent
		} else {
			u.HomeX += formationStep * w.dir
		}
		if u.State == UnitIdle {
			u.X, u.Y = u.HomeX, u.HomeY
		}
	}
	if bounce {
		w.dir = -w.dir
	}
	w.checkDefensiveLine(now)
}

// checkDefensiveLine loses the wave when a unit passes the line with no lives
// left; otherwise the unit is pushed back above it.
func (w *Wave) checkDefensiveLine(now time.Time) {
	for _, u := range w.units {
		if !u.Alive || u.HomeY <= defensiveLine {
			continue
		}
		if w.field.Player.Lives <= 0 {
			w.outcome = OutcomeLost
			w.field.Emit(Event{Kind: EventLost, At: now, Note: "defensive line"})
			return
		}
		u.HomeY = repositionY
		if u.State == UnitIdle {
			u.Y = repositionY
		}
	}
}

func (w *Wave) launchDives(now time.Time) {
	w.nextDive = now.Add(ms(rng.Between(w.rng, 2600, 4200)))
	count := 1
	if rng.Roll(0.25, w.rng) {
		count = 2
	}
	for i := 0; i < count; i++ {
		var idle []*Unit
		for _, u := range w.units {
			if u.Alive && u.State == UnitIdle {
				idle = append(idle, u)
			}
		}
		if len(idle) == 0 {
			return
		}
		u := idle[rng.Between(w.rng, 0, len(idle)-1)]
		dx := w.field.Player.X - u.X
		u.State = UnitDiving
		u.vx = clamp(dx*0.45, -220, 220)
		u.vy = rng.Range(w.rng, 160, 230)
		u.diveEnds = now.Add(ms(rng.Between(w.rng, 900, 1400)))
		w.field.Emit(Event{Kind: EventUnitDive, At: now, ID: u.ID, X: u.X, Y: u.Y})
	}
}

func (w *Wave) moveUnits(now time.Time, dt float64) {
	px := w.field.Player.X
	for _, u := range w.units {
		if !u.Alive {
			continue
		}
		switch u.State {
		case UnitDiving:
			track := clamp((px-u.X)*0.2, -140, 140)
			u.vx = clamp(u.vx+track*dt, -220, 220)
			u.X += u.vx * dt
			u.Y += u.vy * dt
			if !now.Before(u.diveEnds) || u.Y >= defensiveLine {
				u.State = UnitRecovering
				u.recoverStart = now
				u.recoverFromX, u.recoverFromY = u.X, u.Y
			}
		case UnitRecovering:
			t := float64(now.Sub(u.recoverStart)) / float64(w.opts.RecoverWindow)
			e := w.opts.Easing.Apply(t)
			u.X = lerp(u.recoverFromX, u.HomeX, e)
			u.Y = lerp(u.recoverFromY, u.HomeY, e)
			if t >= 1 || (math.Abs(u.Y-u.HomeY) < settleDistance && math.Abs(u.X-u.HomeX) < settleDistance) {
				u.X, u.Y = u.HomeX, u.HomeY
				u.State = UnitIdle
			}
		}
	}
}

// ShotDelay is the volley cadence for the current alive fraction, before pacing.
func (w *Wave) ShotDelay() time.Duration {
	frac := w.aliveFraction()
	endgame := frac < endgameFraction
	base := clamp(float64(900-(w.field.Level-1)*110), 220, 900)
	mult := lerp(1, 0.55, 1-frac)
	if endgame {
		mult *= 0.65
	}
	return ms(int(math.Max(200, math.Floor(base*mult))))
}

func (w *Wave) fire(now time.Time) {
	var alive []*Unit
	for _, u := range w.units {
		if u.Alive {
			alive = append(alive, u)
		}
	}
	if len(alive) == 0 {
		return
	}
	frac := w.aliveFraction()
	endgame := frac < endgameFraction
	shooters, vy := 1, 300.0
	if endgame {
		shooters = len(alive)
		if shooters > 3 {
			shooters = 3
		}
		vy += 60
	}

	shots := make([]Shot, 0, shooters)
	for i := 0; i < shooters; i++ {
		u := alive[rng.Between(w.rng, 0, len(alive)-1)]
		shots = append(shots, Shot{X: u.X, Y: u.Y + 16, VY: vy})
	}
	w.field.Emit(Event{Kind: EventEnemyVolley, At: now, Shots: shots})

	delay := w.ShotDelay()
	if endgame {
		delay += w.pacer.Next()
	} else {
		w.pacer.Reset()
	}
	w.nextShot = now.Add(delay)
}

// HitUnit applies one player hit to unit id and returns the points awarded on a kill.
func (w *Wave) HitUnit(now time.Time, id int) (killed bool, points int) {
	if w.outcome != OutcomePending {
		return false, 0
	}
	for _, u := range w.units {
		if u.ID != id || !u.Alive {
			continue
		}
		u.Health -= w.field.Player.DamageMult
		if u.Health > 1e-9 {
			return false, 0
		}
		u.Alive = false
		points = w.field.ScoreKill(now)
		w.field.Emit(Event{Kind: EventUnitDestroyed, At: now, ID: u.ID, X: u.X, Y: u.Y, Value: points})
		w.checkCleared(now)
		return true, points
	}
	return false, 0
}

// LiveUnitIDs returns the ids of units still alive.
func (w *Wave) LiveUnitIDs() []int {
	var out []int
	for _, u := range w.units {
		if u.Alive {
			out = append(out, u.ID)
		}
	}
	return out
}

// Lose ends the wave as a defeat.
func (w *Wave) Lose(now time.Time) {
	if w.outcome != OutcomePending {
		return
	}
	w.outcome = OutcomeLost
	w.field.Emit(Event{Kind: EventLost, At: now})
}

func (w *Wave) checkCleared(now time.Time) {
	if w.outcome == OutcomePending && w.Alive() == 0 {
		w.outcome = OutcomeCleared
		w.field.Emit(Event{Kind: EventCleared, At: now, Value: w.field.Score})
	}
}
