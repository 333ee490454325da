package encounter

import (
	"math"
	"time"

	"github.com/xtding233/sector-run/internal/rng"
)

// BossState is the boss's terminal state machine.
type BossState int

const (
	BossFighting BossState = iota
	BossDefeated
)

// DashState toggles the boss's burst of speed.
type DashState int

const (
	DashIdle DashState = iota
	DashActive
)

func (s DashState) String() string {
	if s == DashActive {
		return "dashing"
	}
	return "idle"
}

// BandMode is the width class of the boss's patrol band.
type BandMode string

const (
	BandNarrow BandMode = "narrow"
	BandWide   BandMode = "wide"
)

const (
	bossBaseHP       = 60
	bossHomeY        = 140.0
	bossBandMin      = 60.0
	bossBandMax      = 740.0
	bossBobAmplitude = 18.0
	bossDashMult     = 2.1
	bossMaxSpeed     = 240.0
	bandEdgeSlack    = 2.0
	watchdogInterval = 900 * time.Millisecond
	watchdogMinMove  = 4.0

	OverchargeMax     = 12.0
	pierceDamage      = 10.0
	bulletHitCooldown = 120 * time.Millisecond

	phaseOneAt   = 20 * time.Second
	phaseTwoAt   = 35 * time.Second
	enrageOn     = 5 * time.Second
	enrageOff    = 8 * time.Second
	patternEvery = 2 * time.Second
)

// Pattern is one volley shape with its cadence.
type Pattern struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Floor    time.Duration
	Shots    int
	Spread   float64 // horizontal speed step between shots
}

// Tier groups the stats a boss gets from the level.
type Tier struct {
	Name        string
	Speed       float64
	BulletSpeed float64
	FireScale   float64
	Patterns    []Pattern
}

var (
	patternFocus   = Pattern{MinDelay: ms(800), MaxDelay: ms(1100), Floor: ms(300), Shots: 3, Spread: 40}
	patternFan     = Pattern{MinDelay: ms(1000), MaxDelay: ms(1300), Floor: ms(350), Shots: 5, Spread: 120}
	patternBurst   = Pattern{MinDelay: ms(700), MaxDelay: ms(950), Floor: ms(280), Shots: 4, Spread: 70}
	patternCurtain = Pattern{MinDelay: ms(1200), MaxDelay: ms(1500), Floor: ms(400), Shots: 9, Spread: 60}
)

// TierFor picks the boss tier for level.
func TierFor(level int) Tier {
	switch {
	case level >= 9:
		return Tier{Name: "dragon", Speed: 160, BulletSpeed: 320, FireScale: 0.7,
			Patterns: []Pattern{patternFocus, patternFan, patternBurst, patternCurtain}}
	case level >= 6:
		return Tier{Name: "cyber", Speed: 140, BulletSpeed: 300, FireScale: 0.8,
			Patterns: []Pattern{patternFocus, patternFan, patternBurst}}
	default:
		return Tier{Name: "standard", Speed: 110, BulletSpeed: 260, FireScale: 1.0,
			Patterns: []Pattern{patternFocus, patternFan}}
	}
}

// BaseHP is floor(60 * (1 + (level-1) * 0.25)).
func BaseHP(level int) int {
	if level < 1 {
		level = 1
	}
	return int(math.Floor(bossBaseHP * (1 + float64(level-1)*0.25)))
}

// Boss is the boss encounter.
type Boss struct {
	field *Field
	rng   rng.Source
	tier  Tier
	start time.Time

	X, Y  float64
	dir   float64
	state BossState

	Health    float64
	MaxHealth int
	baseHP    int

	speed         float64
	bulletSpeed   float64
	baseFireScale float64
	fireScale     float64
	dashMult      float64
	phase         int

	bandMin, bandMax float64
	bandMode         BandMode
	nextRetarget     time.Time
	lastSampleX      float64
	nextSample       time.Time

	dash     DashState
	nextDash time.Time
	dashEnds time.Time
	Trail    bool

	overcharge  float64
	pierceReady bool

	enraged  bool
	enrageAt time.Time

	nextFire   time.Time
	bulletHits map[int]time.Time
}

// NewBoss sets up the boss for the field's level and schedules its timers from now.
func NewBoss(now time.Time, field *Field) *Boss {
	tier := TierFor(field.Level)
	hp := BaseHP(field.Level)
	b := &Boss{
		field:         field,
		rng:           field.RNG,
		tier:          tier,
		start:         now,
		X:             ArenaWidth / 2,
		Y:             bossHomeY,
		dir:           1,
		Health:        float64(hp),
		MaxHealth:     hp,
		baseHP:        hp,
		speed:         tier.Speed,
		bulletSpeed:   tier.BulletSpeed,
		baseFireScale: tier.FireScale,
		fireScale:     tier.FireScale,
		dashMult:      bossDashMult,
		bandMin:       bossBandMin,
		bandMax:       bossBandMax,
		bandMode:      BandWide,
		bulletHits:    make(map[int]time.Time),
	}
	b.lastSampleX = b.X
	b.nextSample = now.Add(watchdogInterval)
	b.nextRetarget = now.Add(ms(rng.Between(b.rng, 3000, 6000)))
	b.nextDash = now.Add(ms(rng.Between(b.rng, 2200, 5200)))
	b.nextFire = now.Add(b.fireDelay(b.pattern(now)))
	return b
}

func (b *Boss) Kind() Kind       { return KindBoss }
func (b *Boss) Field() *Field    { return b.field }
func (b *Boss) Tier() Tier       { return b.tier }
func (b *Boss) Phase() int       { return b.phase }
func (b *Boss) State() BossState { return b.state }
func (b *Boss) Dash() DashState  { return b.dash }
func (b *Boss) Enraged() bool    { return b.enraged }
func (b *Boss) Speed() float64   { return b.speed }

func (b *Boss) FireScale() float64     { return b.fireScale }
func (b *Boss) BaseFireScale() float64 { return b.baseFireScale }
func (b *Boss) BaseHP() int            { return b.baseHP }

func (b *Boss) Band() (float64, float64, BandMode) { return b.bandMin, b.bandMax, b.bandMode }

func (b *Boss) Outcome() Outcome {
	if b.state == BossDefeated {
		return OutcomeCleared
	}
	if b.field.Player.Lives <= 0 {
		return OutcomeLost
	}
	return OutcomePending
}

// Overcharge returns the meter value and whether a piercing shot is ready.
func (b *Boss) Overcharge() (float64, bool) { return b.overcharge, b.pierceReady }

// ApplyDanger rescales fire cadence and health from the baseline.
func (b *Boss) ApplyDanger(now time.Time, d Danger) {
	b.fireScale = d.BossFireScale(b.baseFireScale)
	b.MaxHealth = d.BossMaxHP(b.baseHP)
	b.Health = float64(b.MaxHealth)
}

// ScaleFire multiplies the current fire scale; lower fires faster.
func (b *Boss) ScaleFire(f float64) { b.fireScale *= f }

// ScaleDash multiplies the dash speed multiplier.
func (b *Boss) ScaleDash(f float64) { b.dashMult *= f }

func (b *Boss) DashMult() float64 { return b.dashMult }

// ScheduleEnrage arms the enrage toggle at at unless one is already armed.
func (b *Boss) ScheduleEnrage(at time.Time) {
	if b.enrageAt.IsZero() {
		b.enrageAt = at
	}
}

// Update advances the boss to now.
func (b *Boss) Update(now time.Time, dt time.Duration) {
	if b.state != BossFighting {
		return
	}
	secs := dt.Seconds()
	b.field.advanceEntities(secs)
	b.updatePhase(now)
	b.updateEnrage(now)
	b.updateDash(now)
	if !now.Before(b.nextRetarget) {
		b.retarget(now)
	}
	b.move(now, secs)
	if !now.Before(b.nextSample) {
		b.watchdog(now)
	}
	if !now.Before(b.nextFire) {
		b.fire(now)
	}
}

func (b *Boss) updatePhase(now time.Time) {
	elapsed := now.Sub(b.start)
	switch {
	case b.phase == 0 && elapsed >= phaseOneAt:
		b.phase = 1
		b.speed = math.Min(b.speed*1.3, 170)
		b.fireScale *= 0.8
		b.field.Emit(Event{Kind: EventBossPhase, At: now, Value: 1})
	case b.phase == 1 && elapsed >= phaseTwoAt:
		b.phase = 2
		b.speed = math.Min(b.speed*1.15, 190)
		b.bulletSpeed = math.Max(b.bulletSpeed, 300)
		b.fireScale *= 0.875
		b.ScheduleEnrage(now.Add(enrageOff))
		b.field.Emit(Event{Kind: EventBossPhase, At: now, Value: 2})
	}
}

// updateEnrage toggles enrage once the fight has reached phase 2.
func (b *Boss) updateEnrage(now time.Time) {
	if b.phase < 2 || b.enrageAt.IsZero() || now.Before(b.enrageAt) {
		return
	}
	b.enraged = !b.enraged
	if b.enraged {
		b.enrageAt = now.Add(enrageOn)
		b.field.Emit(Event{Kind: EventBossEnrage, At: now, Value: 1})
	} else {
		b.enrageAt = now.Add(enrageOff)
		b.field.Emit(Event{Kind: EventBossEnrage, At: now, Value: 0})
	}
}

func (b *Boss) updateDash(now time.Time) {
	switch b.dash {
	case DashIdle:
		if !now.Before(b.nextDash) {
			b.dash = DashActive
			b.Trail = true
			b.dashEnds = now.Add(ms(rng.Between(b.rng, 450, 800)))
			b.field.Emit(Event{Kind: EventBossDash, At: now, X: b.X, Y: b.Y})
		}
	case DashActive:
		if !now.Before(b.dashEnds) {
			b.dash = DashIdle
			b.Trail = false
			b.nextDash = now.Add(ms(rng.Between(b.rng, 2800, 5600)))
			b.field.Emit(Event{Kind: EventBossDashEnd, At: now, X: b.X, Y: b.Y})
		}
	}
}

// setBand centers a band of width w on center, clamped inside the arena band.
func (b *Boss) setBand(center, w float64, mode BandMode) {
	half := w / 2
	center = clamp(center, bossBandMin+half, bossBandMax-half)
	b.bandMin, b.bandMax, b.bandMode = center-half, center+half, mode
}

func (b *Boss) retarget(now time.Time) {
	b.nextRetarget = now.Add(ms(rng.Between(b.rng, 2500, 6000)))
	mode, width, speed := BandWide, rng.Range(b.rng, 480, 660), rng.Range(b.rng, 90, 150)
	if rng.Roll(0.5, b.rng) {
		mode, width, speed = BandNarrow, rng.Range(b.rng, 180, 260), rng.Range(b.rng, 120, 180)
	}
	b.setBand(b.X+rng.Range(b.rng, -60, 60), width, mode)
	b.speed = math.Min(speed*(1+float64(b.phase)*0.12), bossMaxSpeed)
	if b.X <= b.bandMin+bandEdgeSlack {
		b.dir = 1
	} else if b.X >= b.bandMax-bandEdgeSlack {
		b.dir = -1
	}
}

func (b *Boss) move(now time.Time, dt float64) {
	mult := 1.0
	if b.dash == DashActive {
		mult = b.dashMult
	}
	b.X += b.speed * mult * dt * b.dir
	if b.X <= b.bandMin {
		b.X = b.bandMin
		b.dir = 1
	} else if b.X >= b.bandMax {
		b.X = b.bandMax
		b.dir = -1
	}
	t := float64(now.Sub(b.start).Milliseconds())
	b.Y = bossHomeY + math.Sin(t*0.004)*bossBobAmplitude
}

// watchdog rebuilds the band when the boss has barely moved since the last sample.
func (b *Boss) watchdog(now time.Time) {
	b.nextSample = now.Add(watchdogInterval)
	moved := math.Abs(b.X - b.lastSampleX)
	b.lastSampleX = b.X
	if moved >= watchdogMinMove {
		return
	}
	b.dir = -b.dir
	mode, width, speed := BandWide, rng.Range(b.rng, 480, 660), rng.Range(b.rng, 100, 160)
	if rng.Roll(0.5, b.rng) {
		mode, width, speed = BandNarrow, rng.Range(b.rng, 180, 260), rng.Range(b.rng, 120, 180)
	}
	b.setBand(b.X, width, mode)
	b.speed = math.Min(speed*(1+float64(b.phase)*0.12), bossMaxSpeed)
	b.nextRetarget = now.Add(ms(rng.Between(b.rng, 1800, 3500)))
}

func (b *Boss) pattern(now time.Time) Pattern {
	n := len(b.tier.Patterns)
	idx := int(now.Sub(b.start)/patternEvery) % n
	return b.tier.Patterns[idx]
}

func (b *Boss) fireDelay(p Pattern) time.Duration {
	raw := float64(rng.Between(b.rng, int(p.MinDelay.Milliseconds()), int(p.MaxDelay.Milliseconds())))
	return maxDuration(p.Floor, ms(int(math.Floor(raw*b.fireScale))))
}

// FireDelayBounds reports the cadence window of the current pattern after scaling.
func (b *Boss) FireDelayBounds(now time.Time) (time.Duration, time.Duration) {
	p := b.pattern(now)
	lo := maxDuration(p.Floor, ms(int(math.Floor(float64(p.MinDelay.Milliseconds())*b.fireScale))))
	hi := maxDuration(p.Floor, ms(int(math.Floor(float64(p.MaxDelay.Milliseconds())*b.fireScale))))
	return lo, hi
}

func (b *Boss) fire(now time.Time) {
	p := b.pattern(now)
	shots := make([]Shot, 0, p.Shots+7)
	mid := float64(p.Shots-1) / 2
	for i := 0; i < p.Shots; i++ {
		shots = append(shots, Shot{X: b.X, Y: b.Y + 30, VX: (float64(i) - mid) * p.Spread, VY: b.bulletSpeed})
	}
	if b.enraged {
		for k := -3; k <= 3; k++ {
			vx := float64(k)*80 + rng.Range(b.rng, -20, 20)
			shots = append(shots, Shot{X: b.X, Y: b.Y + 30, VX: vx, VY: b.bulletSpeed})
		}
	}
	b.field.Emit(Event{Kind: EventBossVolley, At: now, X: b.X, Y: b.Y, Shots: shots})
	b.nextFire = now.Add(b.fireDelay(p))
}

// ArmShot consumes a ready pierce charge; the shot being fired pierces if it returns true.
func (b *Boss) ArmShot() bool {
	if !b.pierceReady {
		return false
	}
	b.pierceReady = false
	b.overcharge = 0
	return true
}

// Hit applies a player bullet. A bullet can hit again only after a short cooldown.
func (b *Boss) Hit(now time.Time, bulletID int, piercing bool) (damage float64, defeated bool) {
	if b.state != BossFighting {
		return 0, false
	}
	if last, ok := b.bulletHits[bulletID]; ok && now.Sub(last) < bulletHitCooldown {
		return 0, false
	}
	for id, at := range b.bulletHits {
		if now.Sub(at) >= bulletHitCooldown {
			delete(b.bulletHits, id)
		}
	}
	b.bulletHits[bulletID] = now

	dmgMult := b.field.Player.DamageMult
	if dmgMult <= 0 {
		dmgMult = 1
	}
	if piercing {
		damage = pierceDamage * dmgMult
	} else {
		damage = dmgMult
		if !b.pierceReady {
			boost := b.field.Player.PierceBoost
			if boost <= 0 {
				boost = 1
			}
			b.overcharge = math.Min(OverchargeMax, b.overcharge+boost)
			if b.overcharge >= OverchargeMax {
				b.pierceReady = true
				b.field.Emit(Event{Kind: EventPierceReady, At: now})
			}
		}
	}
	b.Health -= damage
	b.field.Emit(Event{Kind: EventBossHit, At: now, Value: int(math.Ceil(b.Health))})
	if b.Health <= 0 {
		b.Health = 0
		b.state = BossDefeated
		b.pierceReady = false
		b.overcharge = 0
		b.Trail = false
		clear(b.bulletHits)
		b.field.Emit(Event{Kind: EventBossDefeated, At: now, X: b.X, Y: b.Y})
		return damage, true
	}
	return damage, false
}
