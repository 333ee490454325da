package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// RecordVersion is the schema version written with every persistence record.
const RecordVersion = 1

// State is the durable meta-progression record for one profile.
type State struct {
	Salvage        int               `json:"salvage"`
	Cores          int               `json:"cores"`
	Unlocks        map[string]Unlock `json:"unlocks"`
	LastRun        *RunRecord        `json:"lastRun"`
	PendingLoadout *Loadout          `json:"pendingLoadout"`
	Version        int               `json:"version"`
}

// Delta is a signed currency adjustment.
type Delta struct {
	Salvage int `json:"salvage,omitempty"`
	Cores   int `json:"cores,omitempty"`
}

// RunRecord is the summary of the most recently finished run.
type RunRecord struct {
	ID        string    `json:"id"`
	Success   bool      `json:"success"`
	Status    string    `json:"status,omitempty"`
	Salvage   int       `json:"salvage"`
	Cores     int       `json:"cores"`
	GraphID   string    `json:"graphId"`
	Timestamp time.Time `json:"timestamp"`
}

// Loadout is what the hangar screen hands to the next run.
type Loadout struct {
	Ship        string         `json:"ship,omitempty"`
	Upgrades    map[string]int `json:"upgrades,omitempty"`
	Abilities   []string       `json:"abilities,omitempty"`
	ExtraLife   bool           `json:"extraLife,omitempty"`
	PierceBoost bool           `json:"pierceBoost,omitempty"`
	ShieldPrep  bool           `json:"shieldPrep,omitempty"`
}

// Clone returns a deep copy, nil-safe.
func (l *Loadout) Clone() *Loadout {
	if l == nil {
		return nil
	}
	out := *l
	if l.Upgrades != nil {
		out.Upgrades = make(map[string]int, len(l.Upgrades))
		for k, v := range l.Upgrades {
			out.Upgrades[k] = v
		}
	}
	if l.Abilities != nil {
		out.Abilities = append([]string(nil), l.Abilities...)
	}
	return &out
}

// Upgrade returns the purchased level of an upgrade, zero if absent.
func (l *Loadout) Upgrade(key string) int {
	if l == nil || l.Upgrades == nil {
		return 0
	}
	return l.Upgrades[key]
}

// Unlock is either a boolean flag or an upgrade level. On the wire it is a
// JSON bool or a JSON number.
type Unlock struct {
	Level int
	Flag  bool
}

func FlagUnlock(on bool) Unlock { return Unlock{Flag: on} }
func LevelUnlock(n int) Unlock  { return Unlock{Level: n} }
func (u Unlock) Unlocked() bool { return u.Flag || u.Level > 0 }

func (u Unlock) MarshalJSON() ([]byte, error) {
	if u.Level != 0 {
		return []byte(strconv.Itoa(u.Level)), nil
	}
	return json.Marshal(u.Flag)
}

func (u *Unlock) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true":
		*u = Unlock{Flag: true}
		return nil
	case "false", "null":
		*u = Unlock{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("unlock must be bool or number: %w", err)
	}
	*u = Unlock{Level: int(f)}
	return nil
}

// Defaults returns the record used for a first launch or after corruption.
func Defaults() State {
	return State{Unlocks: map[string]Unlock{}, Version: RecordVersion}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Unlocks = make(map[string]Unlock, len(s.Unlocks))
	for k, v := range s.Unlocks {
		out.Unlocks[k] = v
	}
	if s.LastRun != nil {
		lr := *s.LastRun
		out.LastRun = &lr
	}
	out.PendingLoadout = s.PendingLoadout.Clone()
	return out
}

// normalize clamps currencies and fills the fields a partial record may omit.
func (s *State) normalize() {
	s.Salvage = clampNonNegative(s.Salvage)
	s.Cores = clampNonNegative(s.Cores)
	if s.Unlocks == nil {
		s.Unlocks = map[string]Unlock{}
	}
	s.Version = RecordVersion
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
