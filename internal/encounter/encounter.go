// Package encounter runs the wave and boss state machines of a node, along
// with the combo scoring and danger scaling they share.
//
// Encounters are advanced from the tick loop and are not safe for concurrent use.
package encounter

import "time"

// Kind of encounter a node runs.
type Kind string

const (
	KindWave Kind = "wave"
	KindBoss Kind = "boss"
)

// Outcome of an encounter.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeCleared
	OutcomeLost
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCleared:
		return "cleared"
	case OutcomeLost:
		return "lost"
	default:
		return "pending"
	}
}

// Encounter is the common surface of Wave and Boss.
type Encounter interface {
	Kind() Kind
	Field() *Field
	// ApplyDanger rescales from the baseline captured at construction.
	ApplyDanger(now time.Time, d Danger)
	Update(now time.Time, dt time.Duration)
	Outcome() Outcome
}

var (
	_ Encounter = (*Wave)(nil)
	_ Encounter = (*Boss)(nil)
)
