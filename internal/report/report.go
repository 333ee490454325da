// Package report turns a finished run into the post-run summary panel.
package report

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtding233/sector-run/internal/leaderboard"
	"github.com/xtding233/sector-run/internal/run"
)

const (
	ActionContinue = "continue"
	ActionRetry    = "retry"

	defaultLabel = "Wave"
)

// Row is one line of the earnings breakdown.
type Row struct {
	Label   string `json:"label"`
	NodeID  string `json:"nodeId,omitempty"`
	Salvage int    `json:"value"`
	Cores   int    `json:"cores,omitempty"`
}

// Summary is everything the post-run panel shows.
type Summary struct {
	RunID         string                `json:"runId"`
	GraphID       string                `json:"graphId"`
	Success       bool                  `json:"success"`
	Status        run.Status            `json:"status"`
	Title         string                `json:"title"`
	SalvageEarned int                   `json:"salvage"`
	CoresEarned   int                   `json:"cores"`
	Score         int                   `json:"score"`
	Notes         []string              `json:"notes"`
	Breakdown     []Row                 `json:"breakdown"`
	Visited       []string              `json:"visited"`
	Duration      time.Duration         `json:"duration"`
	Actions       []string              `json:"actions"`
	Leaderboard   *leaderboard.Standing `json:"leaderboard,omitempty"`
}

func defaultRows() []Row {
	return []Row{{Label: "Wave Clears"}, {Label: "Combo Bonus"}, {Label: "Boss Bonus"}}
}

// Build summarizes s. Totals come from the run state, not from the rows.
func Build(s run.State) Summary {
	sum := Summary{
		RunID:         s.ID,
		GraphID:       s.GraphID,
		Success:       s.Status == run.StatusSuccess,
		Status:        s.Status,
		Title:         "Defeat",
		SalvageEarned: s.SalvageEarned,
		CoresEarned:   s.CoresEarned,
		Notes:         []string{},
		Visited:       append([]string{}, s.SelectedNodes...),
		Duration:      s.Duration(),
		Actions:       []string{ActionContinue, ActionRetry},
	}
	if sum.Success {
		sum.Title = "Victory"
	}
	if s.Summary != nil {
		sum.Notes = append(sum.Notes, s.Summary.Notes...)
	}
	if s.StatusReason != "" {
		sum.Notes = append(sum.Notes, s.StatusReason)
	}
	for _, ev := range s.Events {
		label := ev.Label
		if label == "" {
			label = defaultLabel
		}
		sum.Breakdown = append(sum.Breakdown, Row{Label: label, NodeID: ev.NodeID, Salvage: ev.Salvage, Cores: ev.Cores})
	}
	if len(sum.Breakdown) == 0 {
		sum.Breakdown = defaultRows()
	}
	return sum
}

// Submitter is the leaderboard surface the reporter needs; *leaderboard.Board satisfies it.
type Submitter interface {
	Submit(ctx context.Context, name string, score int, runID string) (leaderboard.Standing, error)
}

// Reporter attaches a leaderboard standing to summaries.
type Reporter struct {
	board Submitter
	log   zerolog.Logger
}

func NewReporter(board Submitter, logger zerolog.Logger) *Reporter {
	return &Reporter{board: board, log: logger.With().Str("component", "report").Logger()}
}

// Finish submits sum.Score for player. Failures only mark the standing unavailable.
func (r *Reporter) Finish(ctx context.Context, sum Summary, player string) Summary {
	if r.board == nil {
		sum.Leaderboard = &leaderboard.Standing{Status: leaderboard.StatusUnavailable}
		return sum
	}
	st, err := r.board.Submit(ctx, player, sum.Score, sum.RunID)
	if err != nil {
		r.log.Debug().Err(err).Str("run", sum.RunID).Msg("standing unavailable")
		st.Status = leaderboard.StatusUnavailable
	}
	sum.Leaderboard = &st
	return sum
}
