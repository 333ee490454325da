// Package balance estimates run economy by replaying headless autopiloted runs.
package balance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtding233/sector-run/internal/encounter"
	"github.com/xtding233/sector-run/internal/ledger"
	"github.com/xtding233/sector-run/internal/loop"
	"github.com/xtding233/sector-run/internal/rng"
	"github.com/xtding233/sector-run/internal/run"
	"github.com/xtding233/sector-run/internal/session"
)

const (
	frame          = 16 * time.Millisecond
	defaultTimeLim = 15 * time.Minute
	autopilotSalt  = 0x5eed_a070
)

var ErrNoGraphs = errors.New("balance: graphs are required")

// SimParams describes the autopilot and the run it plays.
type SimParams struct {
	GraphID string `json:"graphId"`
	// Seed of the first trial; trial i plays seed Seed+i.
	Seed    int64           `json:"seed"`
	Lives   int             `json:"lives,omitempty"`
	Loadout *ledger.Loadout `json:"loadout,omitempty"`

	// Accuracy is the chance a fired shot connects.
	Accuracy float64 `json:"accuracy"`
	// HitChance is the chance each enemy or boss volley damages the ship.
	HitChance float64 `json:"hitChance"`
	// TimeLimit caps one trial's simulated time; an unfinished run is abandoned and counts as a loss.
	TimeLimit time.Duration `json:"timeLimit,omitempty"`
}

// Stats summarizes simulation results.
type Stats struct {
	Mean   float64 `json:"mean"`
	Var    float64 `json:"var"`
	StdDev float64 `json:"stdDev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
	// Raw samples for histograms/exports.
	Samples []int `json:"-"`
}

// Report is one Monte Carlo batch.
type Report struct {
	Trials  int   `json:"trials"`
	Salvage Stats `json:"salvage"`
	Cores   Stats `json:"cores"`
	Nodes   Stats `json:"nodesCleared"`
	Wins    Stats `json:"wins"`
}

// Trial is what one autopiloted run produced.
type Trial struct {
	Seed     int64         `json:"seed"`
	Success  bool          `json:"success"`
	Status   run.Status    `json:"status"`
	Salvage  int           `json:"salvage"`
	Cores    int           `json:"cores"`
	Nodes    int           `json:"nodes"`
	Duration time.Duration `json:"duration"`
}

// statsOf summarizes one metric across trials with population variance and
// linearly interpolated percentiles.
func statsOf(trials []Trial, metric func(Trial) int) Stats {
	if len(trials) == 0 {
		return Stats{}
	}
	samples := make([]int, len(trials))
	for i, tr := range trials {
		samples[i] = metric(tr)
	}
	sorted := slices.Sorted(slices.Values(samples))

	n := float64(len(sorted))
	var sum float64
	for _, v := range sorted {
		sum += float64(v)
	}
	mean := sum / n
	var sq float64
	for _, v := range sorted {
		sq += (float64(v) - mean) * (float64(v) - mean)
	}
	variance := sq / n

	return Stats{
		Mean:    mean,
		Var:     variance,
		StdDev:  math.Sqrt(variance),
		P50:     quantile(sorted, 0.50),
		P90:     quantile(sorted, 0.90),
		P99:     quantile(sorted, 0.99),
		Samples: samples,
	}
}

// quantile reads q from an ascending, non-empty slice.
func quantile(sorted []int, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return float64(sorted[len(sorted)-1])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[lo+1]-sorted[lo])
}

func trialSalvage(tr Trial) int { return tr.Salvage }
func trialCores(tr Trial) int   { return tr.Cores }
func trialNodes(tr Trial) int   { return tr.Nodes }

func trialWon(tr Trial) int {
	if tr.Success {
		return 1
	}
	return 0
}

// RunMonteCarlo plays trials runs and returns summary stats.
func RunMonteCarlo(ctx context.Context, graphs session.Graphs, p SimParams, trials int) (Report, error) {
	if graphs == nil {
		return Report{}, ErrNoGraphs
	}
	if trials <= 0 {
		return Report{}, nil
	}
	played := make([]Trial, 0, trials)
	for i := 0; i < trials; i++ {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		tr, err := Simulate(ctx, graphs, p, p.Seed+int64(i))
		if err != nil {
			return Report{}, fmt.Errorf("trial %d: %w", i, err)
		}
		played = append(played, tr)
	}
	return Report{
		Trials:  trials,
		Salvage: statsOf(played, trialSalvage),
		Cores:   statsOf(played, trialCores),
		Nodes:   statsOf(played, trialNodes),
		Wins:    statsOf(played, trialWon),
	}, nil
}

// Simulate plays one run with the given seed on a private loop and manual clock.
func Simulate(ctx context.Context, graphs session.Graphs, p SimParams, seed int64) (Trial, error) {
	limit := p.TimeLimit
	if limit <= 0 {
		limit = defaultTimeLim
	}
	start := time.Unix(0, 0)
	clk := loop.NewManualClock(start)
	lp := loop.New(loop.Config{TickRate: int(time.Second / frame)}, clk, zerolog.Nop())
	lp.SetSpawner(loop.Inline)
	led := ledger.Open(ctx, ledger.NewMemoryStore(), "sim", zerolog.Nop())
	dir := session.New(lp, led, graphs, zerolog.Nop(), session.Options{
		ResolveTimeout: time.Second,
		Lives:          p.Lives,
	})
	ap := &autopilot{dir: dir, p: p, rng: rng.NewSeeded(uint64(seed) ^ autopilotSalt)}
	dir.OnEvent(ap.observe)

	if _, err := dir.Start(ctx, run.Options{Seed: seed, GraphID: p.GraphID, Loadout: p.Loadout}); err != nil {
		return Trial{}, err
	}
	for clk.Now().Sub(start) < limit {
		clk.Advance(frame)
		lp.Step()
		if ph := dir.Phase(); ph == session.PhaseFinished || ph == session.PhaseIdle {
			break
		}
		ap.act()
	}
	if dir.Phase() != session.PhaseFinished {
		dir.Abandon("time limit")
	}

	tr := Trial{Seed: seed, Duration: clk.Now().Sub(start)}
	if sum := dir.Summary(); sum != nil {
		tr.Success = sum.Success
		tr.Status = sum.Status
		tr.Salvage = sum.SalvageEarned
		tr.Cores = sum.CoresEarned
	}
	tr.Nodes = ap.cleared
	return tr, nil
}

// autopilot stands in for a player: it fires whenever it can, picks the first
// offered node and turns a share of incoming volleys into hits.
type autopilot struct {
	dir      *session.Director
	p        SimParams
	rng      rng.Source
	incoming int
	cleared  int
}

func (a *autopilot) observe(ev encounter.Event) {
	switch ev.Kind {
	case encounter.EventEnemyVolley, encounter.EventBossVolley:
		a.incoming++
	case encounter.EventCleared, encounter.EventBossDefeated:
		a.cleared++
	}
}

func (a *autopilot) act() {
	switch a.dir.Phase() {
	case session.PhaseSelecting:
		if opts := a.dir.Selector().Options(); len(opts) > 0 {
			_ = a.dir.Choose(opts[0].ID)
		}
		return
	case session.PhaseFighting:
	default:
		a.incoming = 0
		return
	}

	for ; a.incoming > 0; a.incoming-- {
		if rng.Roll(a.p.HitChance, a.rng) {
			if out, _ := a.dir.PlayerHit(); out {
				a.incoming = 0
				return
			}
		}
	}

	shot, err := a.dir.FirePlayerShot()
	if err != nil || !rng.Roll(a.p.Accuracy, a.rng) {
		return
	}
	switch enc := a.dir.Encounter().(type) {
	case *encounter.Wave:
		ids := enc.LiveUnitIDs()
		if len(ids) > 0 {
			_, _, _ = a.dir.HitUnit(ids[rng.Between(a.rng, 0, len(ids)-1)])
		}
	case *encounter.Boss:
		_, _, _ = a.dir.HitBoss(shot.ID)
	}
}
