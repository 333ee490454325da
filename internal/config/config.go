// Package config loads service settings from a TOML file and SECTOR_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config is the full settings tree for the run service and the balance simulator.
type Config struct {
	Server      ServerConfig
	Data        DataConfig
	Ledger      LedgerConfig
	Leaderboard LeaderboardConfig
	Run         RunConfig
	Log         LogConfig
}

type ServerConfig struct {
	Addr     string `env:"SECTOR_ADDR"`
	TickRate int    `env:"SECTOR_TICK_RATE"` // ticks per second
}

type DataConfig struct {
	// GraphDir holds graphs/<id>.yaml and an optional graphs.yaml bundle.
	GraphDir      string        `env:"SECTOR_GRAPH_DIR"`
	DefaultGraph  string        `env:"SECTOR_DEFAULT_GRAPH"`
	WatchInterval time.Duration `env:"SECTOR_WATCH_INTERVAL"` // 0 disables hot reload
}

type LedgerConfig struct {
	Driver  string `env:"SECTOR_LEDGER_DRIVER"` // sqlite | file | memory
	Path    string `env:"SECTOR_LEDGER_PATH"`
	Profile string `env:"SECTOR_PROFILE"`
}

type LeaderboardConfig struct {
	Addr           string        `env:"SECTOR_LEADERBOARD_ADDR"` // empty disables submission
	Timeout        time.Duration `env:"SECTOR_LEADERBOARD_TIMEOUT"`
	SubmitInterval time.Duration `env:"SECTOR_LEADERBOARD_SUBMIT_INTERVAL"`
}

type RunConfig struct {
	// StrictBegin rejects Begin while a run is active instead of forfeiting it.
	StrictBegin       bool          `env:"SECTOR_STRICT_BEGIN"`
	ResolveTimeout    time.Duration `env:"SECTOR_RESOLVE_TIMEOUT"`
	BossContinueDelay time.Duration `env:"SECTOR_BOSS_CONTINUE_DELAY"`
}

type LogConfig struct {
	Level   string `env:"SECTOR_LOG_LEVEL"`
	Format  string `env:"SECTOR_LOG_FORMAT"` // console | json
	NoColor bool   `env:"SECTOR_LOG_NOCOLOR"`
}

// Default returns the settings used when no file or env override is present.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", TickRate: 60},
		Data: DataConfig{
			GraphDir:      "config",
			DefaultGraph:  "sector-default",
			WatchInterval: 2 * time.Second,
		},
		Ledger: LedgerConfig{Driver: "sqlite", Path: "sector-run.db", Profile: "default"},
		Leaderboard: LeaderboardConfig{
			Timeout:        2 * time.Second,
			SubmitInterval: 5 * time.Second,
		},
		Run: RunConfig{
			ResolveTimeout:    3 * time.Second,
			BossContinueDelay: 2500 * time.Millisecond,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

type fileConfig struct {
	Server struct {
		Addr     string `toml:"addr"`
		TickRate int    `toml:"tick_rate"`
	} `toml:"server"`
	Data struct {
		GraphDir      string `toml:"graph_dir"`
		DefaultGraph  string `toml:"default_graph"`
		WatchInterval string `toml:"watch_interval"`
	} `toml:"data"`
	Ledger struct {
		Driver  string `toml:"driver"`
		Path    string `toml:"path"`
		Profile string `toml:"profile"`
	} `toml:"ledger"`
	Leaderboard struct {
		Addr           string `toml:"addr"`
		Timeout        string `toml:"timeout"`
		SubmitInterval string `toml:"submit_interval"`
	} `toml:"leaderboard"`
	Run struct {
		StrictBegin       bool   `toml:"strict_begin"`
		ResolveTimeout    string `toml:"resolve_timeout"`
		BossContinueDelay string `toml:"boss_continue_delay"`
	} `toml:"run"`
	Log struct {
		Level   string `toml:"level"`
		Format  string `toml:"format"`
		NoColor bool   `toml:"no_color"`
	} `toml:"log"`
}

// Load applies defaults, then the TOML file at path (skipped when path is empty),
// then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("server", "addr") {
		cfg.Server.Addr = strings.TrimSpace(raw.Server.Addr)
	}
	if meta.IsDefined("server", "tick_rate") {
		cfg.Server.TickRate = raw.Server.TickRate
	}

	if meta.IsDefined("data", "graph_dir") {
		cfg.Data.GraphDir = strings.TrimSpace(raw.Data.GraphDir)
	}
	if meta.IsDefined("data", "default_graph") {
		cfg.Data.DefaultGraph = strings.TrimSpace(raw.Data.DefaultGraph)
	}
	if meta.IsDefined("data", "watch_interval") {
		d, err := parseDuration("data.watch_interval", raw.Data.WatchInterval)
		if err != nil {
			return err
		}
		cfg.Data.WatchInterval = d
	}

	if meta.IsDefined("ledger", "driver") {
		cfg.Ledger.Driver = strings.ToLower(strings.TrimSpace(raw.Ledger.Driver))
	}
	if meta.IsDefined("ledger", "path") {
		cfg.Ledger.Path = strings.TrimSpace(raw.Ledger.Path)
	}
	if meta.IsDefined("ledger", "profile") {
		cfg.Ledger.Profile = strings.TrimSpace(raw.Ledger.Profile)
	}

	if meta.IsDefined("leaderboard", "addr") {
		cfg.Leaderboard.Addr = strings.TrimSpace(raw.Leaderboard.Addr)
	}
	if meta.IsDefined("leaderboard", "timeout") {
		d, err := parseDuration("leaderboard.timeout", raw.Leaderboard.Timeout)
		if err != nil {
			return err
		}
		cfg.Leaderboard.Timeout = d
	}
	if meta.IsDefined("leaderboard", "submit_interval") {
		d, err := parseDuration("leaderboard.submit_interval", raw.Leaderboard.SubmitInterval)
		if err != nil {
			return err
		}
		cfg.Leaderboard.SubmitInterval = d
	}

	if meta.IsDefined("run", "strict_begin") {
		cfg.Run.StrictBegin = raw.Run.StrictBegin
	}
	if meta.IsDefined("run", "resolve_timeout") {
		d, err := parseDuration("run.resolve_timeout", raw.Run.ResolveTimeout)
		if err != nil {
			return err
		}
		cfg.Run.ResolveTimeout = d
	}
	if meta.IsDefined("run", "boss_continue_delay") {
		d, err := parseDuration("run.boss_continue_delay", raw.Run.BossContinueDelay)
		if err != nil {
			return err
		}
		cfg.Run.BossContinueDelay = d
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(raw.Log.Format))
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// Validate checks semantic constraints and reports every problem at once.
func (c Config) Validate() error {
	var errs []string
	if c.Server.TickRate <= 0 || c.Server.TickRate > 1000 {
		errs = append(errs, "server.tick_rate must be in [1,1000]")
	}
	if c.Data.DefaultGraph == "" {
		errs = append(errs, "data.default_graph must not be empty")
	}
	if c.Data.WatchInterval < 0 {
		errs = append(errs, "data.watch_interval must be >= 0")
	}
	switch c.Ledger.Driver {
	case "sqlite", "file":
		if c.Ledger.Path == "" {
			errs = append(errs, "ledger.path is required for driver="+c.Ledger.Driver)
		}
	case "memory":
	default:
		errs = append(errs, "ledger.driver must be one of: sqlite, file, memory")
	}
	if c.Ledger.Profile == "" {
		errs = append(errs, "ledger.profile must not be empty")
	}
	if c.Leaderboard.Timeout <= 0 {
		errs = append(errs, "leaderboard.timeout must be > 0")
	}
	if c.Leaderboard.SubmitInterval < 0 {
		errs = append(errs, "leaderboard.submit_interval must be >= 0")
	}
	if c.Run.ResolveTimeout <= 0 {
		errs = append(errs, "run.resolve_timeout must be > 0")
	}
	if c.Run.BossContinueDelay < 0 {
		errs = append(errs, "run.boss_continue_delay must be >= 0")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, "log.format must be one of: console, json")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TickInterval is the wall-clock duration of one loop tick.
func (c Config) TickInterval() time.Duration {
	if c.Server.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.Server.TickRate)
}
