// Command runsim replays autopiloted runs headlessly and prints economy stats as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/xtding233/sector-run/internal/balance"
	"github.com/xtding233/sector-run/internal/config"
	"github.com/xtding233/sector-run/internal/graph"
	"github.com/xtding233/sector-run/internal/ledger"
	"github.com/xtding233/sector-run/internal/logging"
)

type result struct {
	Params balance.SimParams `json:"params"`
	Report balance.Report    `json:"report"`
	Took   string            `json:"took"`
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	trials := flag.Int("trials", 200, "number of runs")
	seed := flag.Int64("seed", 1, "seed of the first run")
	graphID := flag.String("graph", "", "graph id (defaults to data.default_graph)")
	accuracy := flag.Float64("accuracy", 0.85, "chance a shot connects")
	hitChance := flag.Float64("hit-chance", 0.08, "chance an enemy volley hits the ship")
	lives := flag.Int("lives", 0, "starting lives (0 uses the game default)")
	limit := flag.Duration("time-limit", 15*time.Minute, "simulated time cap per run")
	loadoutJSON := flag.String("loadout", "", `loadout JSON, e.g. {"upgrades":{"weapon_damage":2}}`)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logging.New("runsim", logging.Options{})
		boot.Fatal().Err(err).Msg("load config")
	}
	// stdout carries the report
	logger := logging.New("runsim", logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		NoColor: cfg.Log.NoColor,
		Out:     os.Stderr,
	})

	lo, err := parseLoadout(*loadoutJSON)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse loadout")
	}
	if *graphID == "" {
		*graphID = cfg.Data.DefaultGraph
	}

	embedded, err := graph.NewEmbeddedSource()
	if err != nil {
		logger.Fatal().Err(err).Msg("load embedded graph")
	}
	ctx := context.Background()
	resolver := graph.NewResolver(graph.Chain{graph.NewFileSource(cfg.Data.GraphDir), embedded}, cfg.Data.DefaultGraph, logger)
	if err := resolver.Warm(ctx); err != nil {
		logger.Warn().Err(err).Msg("default graph not warmed")
	}

	p := balance.SimParams{
		GraphID:   *graphID,
		Seed:      *seed,
		Lives:     *lives,
		Loadout:   lo,
		Accuracy:  *accuracy,
		HitChance: *hitChance,
		TimeLimit: *limit,
	}
	start := time.Now()
	rep, err := balance.RunMonteCarlo(ctx, resolver, p, *trials)
	if err != nil {
		logger.Fatal().Err(err).Msg("simulate")
	}
	logger.Info().Int("trials", rep.Trials).Float64("winRate", rep.Wins.Mean).
		Float64("salvageMean", rep.Salvage.Mean).Dur("took", time.Since(start)).Msg("done")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result{Params: p, Report: rep, Took: time.Since(start).String()}); err != nil {
		logger.Fatal().Err(err).Msg("write report")
	}
}

func parseLoadout(raw string) (*ledger.Loadout, error) {
	if raw == "" {
		return nil, nil
	}
	lo := &ledger.Loadout{}
	if err := json.Unmarshal([]byte(raw), lo); err != nil {
		return nil, err
	}
	return lo, nil
}
