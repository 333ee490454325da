// Package run owns the single active run and its transitions.
package run

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/xtding233/sector-run/internal/graph"
	"github.com/xtding233/sector-run/internal/ledger"
)

var ErrRunInProgress = errors.New("a run is already in progress")

// Lifecycle drives NONE -> IN_PROGRESS -> {SUCCESS, FAILED, ABANDONED}.
// It is owned by the tick loop and is not safe for concurrent use.
type Lifecycle struct {
	ledger *ledger.Ledger
	log    zerolog.Logger
	now    func() time.Time
	strict bool

	active *State
	last   *State
}

// Option customizes a Lifecycle.
type Option func(*Lifecycle)

// WithStrictBegin makes Begin fail with ErrRunInProgress instead of forfeiting the active run.
func WithStrictBegin(strict bool) Option {
	return func(l *Lifecycle) { l.strict = strict }
}

// WithClock overrides the time source used for run ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

func New(led *ledger.Ledger, logger zerolog.Logger, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		ledger: led,
		log:    logger.With().Str("component", "run").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Begin starts a new run. An active run is forfeited as abandoned unless strict mode is on.
func (l *Lifecycle) Begin(opts Options) (State, error) {
	if l.active != nil {
		if l.strict {
			return State{}, fmt.Errorf("begin: %w (%s)", ErrRunInProgress, l.active.ID)
		}
		l.log.Info().Str("run", l.active.ID).Msg("forfeiting active run")
		l.Abandon(ReasonSuperseded)
	}

	now := l.now()
	seed := opts.Seed
	if seed == 0 {
		seed = now.UnixMilli()
	}
	graphID := opts.GraphID
	if graphID == "" {
		graphID = DefaultGraphID
	}
	loadout := opts.Loadout.Clone()
	if loadout == nil && l.ledger != nil {
		loadout = l.ledger.ConsumePendingLoadout()
	}
	var flags map[string]bool
	if opts.Flags != nil {
		flags = make(map[string]bool, len(opts.Flags))
		for k, v := range opts.Flags {
			flags[k] = v
		}
	}

	l.active = &State{
		ID:            fmt.Sprintf("run-%d", seed),
		Seed:          seed,
		GraphID:       graphID,
		SelectedNodes: []string{},
		Status:        StatusInProgress,
		Events:        []WaveResult{},
		Flags:         flags,
		Loadout:       loadout,
		StartedAt:     now,
	}
	l.log.Info().Str("run", l.active.ID).Str("graph", graphID).Msg("run began")
	return l.active.Clone(), nil
}

// Choose appends nodeID to the route. Exit validity is the caller's concern.
func (l *Lifecycle) Choose(nodeID string) (State, bool) {
	if l.active == nil {
		return State{}, false
	}
	l.active.SelectedNodes = append(l.active.SelectedNodes, nodeID)
	return l.active.Clone(), true
}

// RecordWaveResult adds a cleared node's earnings to the run totals.
func (l *Lifecycle) RecordWaveResult(res WaveResult) bool {
	if l.active == nil {
		return false
	}
	if res.Salvage < 0 {
		res.Salvage = 0
	}
	if res.Cores < 0 {
		res.Cores = 0
	}
	if res.NodeID == "" {
		res.NodeID = l.CurrentNodeID()
	}
	l.active.SalvageEarned += res.Salvage
	l.active.CoresEarned += res.Cores
	l.active.Events = append(l.active.Events, res)
	return true
}

// Complete finishes the active run and commits its earnings to the ledger.
// Without an active run it returns nil and changes nothing.
func (l *Lifecycle) Complete(out Outcome) *State {
	if l.active == nil {
		return nil
	}
	run := l.active
	l.active = nil

	now := l.now()
	run.CompletedAt = &now
	if out.Success {
		run.Status = StatusSuccess
	} else {
		run.Status = StatusFailed
	}
	run.Summary = &Summary{
		SalvageEarned: run.SalvageEarned,
		CoresEarned:   run.CoresEarned,
		Notes:         append([]string{}, out.Notes...),
	}
	if l.ledger != nil {
		l.ledger.CommitRun(ledger.RunRecord{
			ID:        run.ID,
			Success:   out.Success,
			Status:    string(run.Status),
			Salvage:   run.SalvageEarned,
			Cores:     run.CoresEarned,
			GraphID:   run.GraphID,
			Timestamp: now,
		})
	}
	l.last = run
	l.log.Info().
		Str("run", run.ID).
		Bool("success", out.Success).
		Int("salvage", run.SalvageEarned).
		Int("cores", run.CoresEarned).
		Msg("run completed")
	res := run.Clone()
	return &res
}

// Abandon ends the active run without committing earnings.
func (l *Lifecycle) Abandon(reason string) *State {
	if l.active == nil {
		return nil
	}
	if reason == "" {
		reason = string(StatusAbandoned)
	}
	run := l.active
	l.active = nil
	now := l.now()
	run.CompletedAt = &now
	run.Status = StatusAbandoned
	run.StatusReason = reason
	l.last = run
	l.log.Info().Str("run", run.ID).Str("reason", reason).Msg("run abandoned")
	res := run.Clone()
	return &res
}

func (l *Lifecycle) Active() bool { return l.active != nil }

// Snapshot returns a copy of the active run, or nil.
func (l *Lifecycle) Snapshot() *State {
	if l.active == nil {
		return nil
	}
	s := l.active.Clone()
	return &s
}

// Last returns a copy of the most recently finished run, or nil.
func (l *Lifecycle) Last() *State {
	if l.last == nil {
		return nil
	}
	s := l.last.Clone()
	return &s
}

// CurrentNodeID is the last chosen node, or the graph start before any choice.
func (l *Lifecycle) CurrentNodeID() string {
	if l.active == nil || len(l.active.SelectedNodes) == 0 {
		return graph.StartID
	}
	return l.active.SelectedNodes[len(l.active.SelectedNodes)-1]
}

// GraphID is the active run's graph, else the last recorded run's, else the default.
func (l *Lifecycle) GraphID() string {
	if l.active != nil {
		return l.active.GraphID
	}
	if l.ledger != nil {
		if lr := l.ledger.Meta().LastRun; lr != nil && lr.GraphID != "" {
			return lr.GraphID
		}
	}
	return DefaultGraphID
}
