package session

import (
	"github.com/xtding233/sector-run/internal/encounter"
	"github.com/xtding233/sector-run/internal/graph"
	"github.com/xtding233/sector-run/internal/report"
	"github.com/xtding233/sector-run/internal/run"
)

// View is a read-only snapshot of the director for rendering and the HTTP API.
type View struct {
	Phase    Phase              `json:"phase"`
	Run      *run.State         `json:"run,omitempty"`
	Node     *graph.Node        `json:"node,omitempty"`
	Level    int                `json:"level"`
	Danger   int                `json:"danger"`
	Score    int                `json:"score"`
	Player   *encounter.Player  `json:"player,omitempty"`
	Combo    ComboView          `json:"combo"`
	Modifier string             `json:"modifier,omitempty"`
	Choices  []graph.Node       `json:"choices,omitempty"`
	Wave     *WaveView          `json:"wave,omitempty"`
	Boss     *BossView          `json:"boss,omitempty"`
	Entities []encounter.Entity `json:"entities,omitempty"`
	Overlays []string           `json:"overlays,omitempty"`
	Events   []encounter.Event  `json:"events,omitempty"`
	Summary  *report.Summary    `json:"summary,omitempty"`
}

type ComboView struct {
	Count      int `json:"count"`
	Multiplier int `json:"multiplier"`
}

type WaveView struct {
	Units     []encounter.Unit `json:"units"`
	Alive     int              `json:"alive"`
	StepDelay int64            `json:"stepDelayMs"`
}

type BossView struct {
	Tier        string  `json:"tier"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Health      float64 `json:"health"`
	MaxHealth   int     `json:"maxHealth"`
	Phase       int     `json:"phase"`
	Dashing     bool    `json:"dashing"`
	Enraged     bool    `json:"enraged"`
	Overcharge  float64 `json:"overcharge"`
	PierceReady bool    `json:"pierceReady"`
	BandMin     float64 `json:"bandMin"`
	BandMax     float64 `json:"bandMax"`
	BandMode    string  `json:"bandMode"`
}

// View snapshots the director.
func (d *Director) View() View {
	v := View{
		Phase:    d.phase,
		Run:      d.lifecycle.Snapshot(),
		Level:    d.level,
		Danger:   int(d.danger),
		Score:    d.score,
		Modifier: d.registry.Active(),
		Choices:  d.selector.Options(),
		Summary:  d.Summary(),
	}
	if len(v.Choices) == 0 {
		v.Choices = nil
	}
	if d.player != nil {
		p := d.player.Clone()
		v.Player = &p
	}
	if d.node.ID != "" {
		n := d.node.Clone()
		v.Node = &n
	}
	v.Events = append([]encounter.Event(nil), d.events...)
	if d.enc == nil {
		return v
	}

	f := d.enc.Field()
	v.Score += f.Score
	v.Combo = ComboView{Count: f.Combo.Count, Multiplier: f.Combo.Multiplier}
	v.Entities = f.Entities()
	v.Overlays = f.Overlays()
	switch e := d.enc.(type) {
	case *encounter.Wave:
		v.Wave = &WaveView{Units: e.Units(), Alive: e.Alive(), StepDelay: e.StepDelay().Milliseconds()}
	case *encounter.Boss:
		charge, ready := e.Overcharge()
		lo, hi, mode := e.Band()
		v.Boss = &BossView{
			Tier:        e.Tier().Name,
			X:           e.X,
			Y:           e.Y,
			Health:      e.Health,
			MaxHealth:   e.MaxHealth,
			Phase:       e.Phase(),
			Dashing:     e.Dash() == encounter.DashActive,
			Enraged:     e.Enraged(),
			Overcharge:  charge,
			PierceReady: ready,
			BandMin:     lo,
			BandMax:     hi,
			BandMode:    string(mode),
		}
	}
	return v
}
