package run

import (
	"time"

	"github.com/xtding233/sector-run/internal/ledger"
)

// Status of a run. A run leaves StatusInProgress exactly once.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
)

// DefaultGraphID is used when Begin is given no graph.
const DefaultGraphID = "sector-default"

// ReasonSuperseded marks a run forfeited because another one began.
const ReasonSuperseded = "superseded"

// WaveResult is what one cleared node contributed.
type WaveResult struct {
	NodeID  string `json:"nodeId,omitempty"`
	Salvage int    `json:"salvage"`
	Cores   int    `json:"cores"`
	Label   string `json:"label,omitempty"`
}

// Options configures Begin.
type Options struct {
	Seed    int64           `json:"seed,omitempty"`
	GraphID string          `json:"graphId,omitempty"`
	Flags   map[string]bool `json:"flags,omitempty"`
	// Loadout overrides the ledger's pending loadout when set.
	Loadout *ledger.Loadout `json:"loadout,omitempty"`
}

// Outcome is passed to Complete.
type Outcome struct {
	Success bool     `json:"success"`
	Notes   []string `json:"notes,omitempty"`
}

// Summary is attached to a run when it completes.
type Summary struct {
	SalvageEarned int      `json:"salvageEarned"`
	CoresEarned   int      `json:"coresEarned"`
	Notes         []string `json:"notes"`
}

// State is one playthrough.
type State struct {
	ID            string          `json:"id"`
	Seed          int64           `json:"seed"`
	GraphID       string          `json:"graphId"`
	SelectedNodes []string        `json:"selectedNodes"`
	SalvageEarned int             `json:"salvageEarned"`
	CoresEarned   int             `json:"coresEarned"`
	Status        Status          `json:"status"`
	StatusReason  string          `json:"statusReason,omitempty"`
	Events        []WaveResult    `json:"events"`
	Flags         map[string]bool `json:"flags,omitempty"`
	Loadout       *ledger.Loadout `json:"loadout,omitempty"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	Summary       *Summary        `json:"summary,omitempty"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.SelectedNodes = append([]string{}, s.SelectedNodes...)
	out.Events = append([]WaveResult{}, s.Events...)
	if s.Flags != nil {
		out.Flags = make(map[string]bool, len(s.Flags))
		for k, v := range s.Flags {
			out.Flags[k] = v
		}
	}
	out.Loadout = s.Loadout.Clone()
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.Summary != nil {
		sum := *s.Summary
		sum.Notes = append([]string{}, s.Summary.Notes...)
		out.Summary = &sum
	}
	return out
}

// Duration is the wall time of a finished run, zero while it is active.
func (s State) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}
