package encounter

import "time"

// EventKind names something the render/audio layer may want to react to.
type EventKind string

const (
	EventUnitDestroyed   EventKind = "unit-destroyed"
	EventUnitDive        EventKind = "unit-dive"
	EventEnemyVolley     EventKind = "enemy-volley"
	EventBossVolley      EventKind = "boss-volley"
	EventBossHit         EventKind = "boss-hit"
	EventBossPhase       EventKind = "boss-phase"
	EventBossDash        EventKind = "boss-dash"
	EventBossDashEnd     EventKind = "boss-dash-end"
	EventBossEnrage      EventKind = "boss-enrage"
	EventBossDefeated    EventKind = "boss-defeated"
	EventPierceReady     EventKind = "pierce-ready"
	EventEntitySpawned   EventKind = "entity-spawned"
	EventEntityDestroyed EventKind = "entity-destroyed"
	EventInterference    EventKind = "interference"
	EventPlayerHit       EventKind = "player-hit"
	EventShieldAbsorbed  EventKind = "shield-absorbed"
	EventPlayerRepaired  EventKind = "player-repaired"
	EventPlayerDefeated  EventKind = "player-defeated"
	EventBonus           EventKind = "bonus"
	EventCleared         EventKind = "cleared"
	EventLost            EventKind = "lost"
)

// Shot is a projectile spawned by the core; collision is resolved elsewhere.
type Shot struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// Event is buffered on the field until drained.
type Event struct {
	Kind  EventKind `json:"kind"`
	At    time.Time `json:"at"`
	ID    int       `json:"id,omitempty"`
	X     float64   `json:"x,omitempty"`
	Y     float64   `json:"y,omitempty"`
	Value int       `json:"value,omitempty"`
	Note  string    `json:"note,omitempty"`
	Shots []Shot    `json:"shots,omitempty"`
}
