package encounter

import (
	"math"
	"sort"
	"time"

	"github.com/xtding233/sector-run/internal/rng"
)

// Arena bounds shared by every encounter.
const (
	ArenaWidth  = 800.0
	ArenaHeight = 600.0
)

// Entity is an auxiliary object owned by a modifier: debris, escorts, cargo.
type Entity struct {
	ID     int     `json:"id"`
	Group  string  `json:"group"`
	HP     int     `json:"hp"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx,omitempty"`
	VY     float64 `json:"vy,omitempty"`
	Bounty int     `json:"bounty,omitempty"` // salvage granted when destroyed
	// Hostile entities hurt the player on contact or, for cargo, are protected.
	Hostile bool `json:"hostile,omitempty"`
}

// Field is the state one encounter shares with its modifiers.
type Field struct {
	Level  int
	Player *Player
	Combo  *Combo
	RNG    rng.Source

	Score        int
	BonusSalvage int
	Elite        bool

	DoubleRewardUntil    time.Time
	DoubleRewardDisabled bool
	TradeApplied         bool

	groups   map[string][]*Entity
	overlays map[string]bool
	nextID   int
	events   []Event
}

// NewField prepares the shared state for one encounter at level.
func NewField(level int, player *Player, src rng.Source) *Field {
	if src == nil {
		src = rng.Default()
	}
	if player == nil {
		player = NewPlayer(3)
	}
	return &Field{
		Level:    level,
		Player:   player,
		Combo:    NewCombo(player.ComboExtension),
		RNG:      src,
		groups:   make(map[string][]*Entity),
		overlays: make(map[string]bool),
	}
}

func (f *Field) Emit(e Event) { f.events = append(f.events, e) }

// DrainEvents returns and clears the buffered events.
func (f *Field) DrainEvents() []Event {
	out := f.events
	f.events = nil
	return out
}

// Spawn adds e to group and returns it with a fresh id.
func (f *Field) Spawn(now time.Time, group string, e Entity) *Entity {
	f.nextID++
	e.ID = f.nextID
	e.Group = group
	ent := &e
	f.groups[group] = append(f.groups[group], ent)
	f.Emit(Event{Kind: EventEntitySpawned, At: now, ID: ent.ID, X: ent.X, Y: ent.Y, Note: group})
	return ent
}

// Group returns the live entities of group.
func (f *Field) Group(group string) []*Entity {
	return f.groups[group]
}

// ClearGroup removes every entity of group and returns how many were removed.
func (f *Field) ClearGroup(group string) int {
	n := len(f.groups[group])
	delete(f.groups, group)
	return n
}

// AuxCount is the number of live auxiliary entities across all groups.
func (f *Field) AuxCount() int {
	n := 0
	for _, g := range f.groups {
		n += len(g)
	}
	return n
}

// Entities lists every auxiliary entity ordered by id.
func (f *Field) Entities() []Entity {
	var out []Entity
	for _, g := range f.groups {
		for _, e := range g {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HitEntity damages an auxiliary entity and reports whether it was destroyed.
func (f *Field) HitEntity(now time.Time, id, damage int) bool {
	for group, g := range f.groups {
		for i, e := range g {
			if e.ID != id {
				continue
			}
			e.HP -= damage
			if e.HP > 0 {
				return false
			}
			f.groups[group] = append(g[:i], g[i+1:]...)
			if len(f.groups[group]) == 0 {
				delete(f.groups, group)
			}
			if e.Bounty > 0 {
				f.AddBonusSalvage(now, e.Bounty, group)
			}
			f.Emit(Event{Kind: EventEntityDestroyed, At: now, ID: e.ID, X: e.X, Y: e.Y, Note: group})
			return true
		}
	}
	return false
}

// AddBonusSalvage credits salvage earned mid-encounter, scaled by the salvage multiplier.
func (f *Field) AddBonusSalvage(now time.Time, base int, note string) int {
	amt := int(math.Floor(float64(base) * f.salvageMult()))
	f.BonusSalvage += amt
	f.Emit(Event{Kind: EventBonus, At: now, Value: amt, Note: note})
	return amt
}

func (f *Field) salvageMult() float64 {
	if f.Player.SalvageMult <= 0 {
		return 1
	}
	return f.Player.SalvageMult
}

// SetOverlay toggles a named visual overlay such as fog.
func (f *Field) SetOverlay(name string, on bool) {
	if on {
		f.overlays[name] = true
		return
	}
	delete(f.overlays, name)
}

func (f *Field) Overlay(name string) bool { return f.overlays[name] }

// Overlays lists the active overlay names, sorted.
func (f *Field) Overlays() []string {
	out := make([]string, 0, len(f.overlays))
	for k := range f.overlays {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GrantDoubleReward doubles kill points for d unless a trade disabled it.
func (f *Field) GrantDoubleReward(now time.Time, d time.Duration) {
	f.DoubleRewardUntil = now.Add(d)
}

func (f *Field) DoubleRewardActive(now time.Time) bool {
	return !f.DoubleRewardDisabled && now.Before(f.DoubleRewardUntil)
}

// ScoreKill registers a kill with the combo and returns the points awarded.
func (f *Field) ScoreKill(now time.Time) int {
	mult := f.Combo.Register(now)
	pts := killPoints * mult
	if f.DoubleRewardActive(now) {
		pts *= 2
	}
	f.Score += pts
	return pts
}

// DamagePlayer applies one enemy hit. It reports whether the player is out of lives.
func (f *Field) DamagePlayer(now time.Time) bool {
	p := f.Player
	if p.Lives <= 0 {
		return true
	}
	if p.shielded(now) {
		p.ShieldHits--
		f.Emit(Event{Kind: EventShieldAbsorbed, At: now, Value: p.ShieldHits})
		return false
	}
	f.Combo.Reset()
	if p.DamageReduction > 0 && rng.Roll(p.DamageReduction, f.RNG) {
		f.Emit(Event{Kind: EventShieldAbsorbed, At: now, Note: "armor"})
		return false
	}
	// a repair on the last life absorbs the hit
	if p.Lives == 1 && p.EmergencyRepairs > 0 {
		p.EmergencyRepairs--
		p.Lives = int(math.Min(emergencyHealCap, float64(p.Lives+emergencyHealGain)))
		f.Emit(Event{Kind: EventPlayerRepaired, At: now, Value: p.Lives})
		return false
	}
	p.Lives--
	f.Emit(Event{Kind: EventPlayerHit, At: now, Value: p.Lives})
	if p.Lives <= 0 {
		f.Emit(Event{Kind: EventPlayerDefeated, At: now})
		return true
	}
	return false
}

// advanceEntities moves drifting entities and drops those that left the arena.
func (f *Field) advanceEntities(dt float64) {
	for group, g := range f.groups {
		kept := g[:0]
		for _, e := range g {
			e.X += e.VX * dt
			e.Y += e.VY * dt
			if e.Y > ArenaHeight+20 || e.Y < -80 || e.X < -80 || e.X > ArenaWidth+80 {
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(f.groups, group)
			continue
		}
		f.groups[group] = kept
	}
}
