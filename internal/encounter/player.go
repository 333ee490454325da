package encounter

import "time"

const (
	MaxLives          = 5
	DefaultShieldCap  = 2
	baseFireInterval  = 300 * time.Millisecond
	shieldPrepWindow  = 8 * time.Second
	emergencyHealCap  = 3
	emergencyHealGain = 2
)

// Player is the ship state that persists across the encounters of a run.
type Player struct {
	X     float64 `json:"x"`
	Lives int     `json:"lives"`

	ShieldHits     int       `json:"shieldHits"`
	ShieldCapacity int       `json:"shieldCapacity"`
	ShieldUntil    time.Time `json:"shieldUntil"`

	DamageMult       float64       `json:"damageMult"`
	FireRateMult     float64       `json:"fireRateMult"`
	PierceBoost      float64       `json:"pierceBoost"`
	DamageReduction  float64       `json:"damageReduction"`
	EmergencyRepairs int           `json:"emergencyRepairs"`
	ComboExtension   time.Duration `json:"comboExtension"`
	SalvageMult      float64       `json:"salvageMult"`

	// Hazard effects, restored by the modifier that set them.
	FireDelay      time.Duration `json:"fireDelay"`
	Accuracy       float64       `json:"accuracy"`
	DisruptedUntil time.Time     `json:"disruptedUntil"`

	lastShot time.Time
}

// NewPlayer returns a ship with neutral multipliers.
func NewPlayer(lives int) *Player {
	return &Player{
		X:              400,
		Lives:          lives,
		ShieldCapacity: DefaultShieldCap,
		DamageMult:     1,
		FireRateMult:   1,
		PierceBoost:    1,
		SalvageMult:    1,
		Accuracy:       1,
	}
}

// GrantShield arms a timed shield that absorbs extra hits, up to the shield capacity.
func (p *Player) GrantShield(now time.Time, hits int) {
	p.ShieldHits = max(1, min(max(p.ShieldCapacity, 1), p.ShieldHits+hits))
	p.ShieldUntil = now.Add(shieldPrepWindow)
}

// Clone copies the ship state for read-only views.
func (p *Player) Clone() Player { return *p }

func (p *Player) shielded(now time.Time) bool {
	return p.ShieldHits > 0 && now.Before(p.ShieldUntil)
}

// FireInterval is the cooldown between player shots.
func (p *Player) FireInterval() time.Duration {
	mult := p.FireRateMult
	if mult <= 0 {
		mult = 1
	}
	return time.Duration(float64(baseFireInterval)/mult) + p.FireDelay
}

// TryFire reports whether a shot may leave the ship now and starts the cooldown.
func (p *Player) TryFire(now time.Time) bool {
	if now.Before(p.DisruptedUntil) {
		return false
	}
	if !p.lastShot.IsZero() && now.Sub(p.lastShot) < p.FireInterval() {
		return false
	}
	p.lastShot = now
	return true
}

func (p *Player) GainLife() {
	if p.Lives < MaxLives {
		p.Lives++
	}
}
