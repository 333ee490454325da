package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtding233/sector-run/internal/config"
	"github.com/xtding233/sector-run/internal/graph"
	"github.com/xtding233/sector-run/internal/leaderboard"
	"github.com/xtding233/sector-run/internal/ledger"
	"github.com/xtding233/sector-run/internal/ledger/sqlite"
	"github.com/xtding233/sector-run/internal/logging"
	"github.com/xtding233/sector-run/internal/loop"
	"github.com/xtding233/sector-run/internal/report"
	"github.com/xtding233/sector-run/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logging.New("sector-run", logging.Options{})
		boot.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New("sector-run", logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		NoColor: cfg.Log.NoColor,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg.Ledger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Ledger.Driver).Msg("open ledger store")
	}
	defer closeStore()
	led := ledger.Open(ctx, store, cfg.Ledger.Profile, logger)

	embedded, err := graph.NewEmbeddedSource()
	if err != nil {
		logger.Fatal().Err(err).Msg("load embedded graph")
	}
	files := graph.NewFileSource(cfg.Data.GraphDir)
	resolver := graph.NewResolver(graph.Chain{files, embedded}, cfg.Data.DefaultGraph, logger)
	if err := resolver.Warm(ctx); err != nil {
		logger.Warn().Err(err).Msg("default graph not warmed")
	}
	if cfg.Data.WatchInterval > 0 {
		w := graph.NewWatcher(files.Paths(), cfg.Data.WatchInterval, func(path string) {
			logger.Info().Str("path", path).Msg("graph file changed, dropping cache")
			resolver.Invalidate()
		})
		w.Start()
		defer w.Stop()
	}

	board, closeBoard := openBoard(cfg.Leaderboard, logger)
	defer closeBoard()

	rep := report.NewReporter(board, logger)
	lp := loop.New(loop.Config{TickRate: cfg.Server.TickRate}, loop.SystemClock{}, logger)
	dir := session.New(lp, led, resolver, logger, session.Options{
		StrictBegin:    cfg.Run.StrictBegin,
		ResolveTimeout: cfg.Run.ResolveTimeout,
		ContinueDelay:  cfg.Run.BossContinueDelay,
		Reporter:       rep,
	})
	go func() {
		if err := lp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("loop stopped")
		}
	}()

	srv := &server{
		loop:     lp,
		dir:      dir,
		ledger:   led,
		board:    board,
		reporter: rep,
		timeout:  cfg.Run.ResolveTimeout,
		strict:   cfg.Run.StrictBegin,
		log:      logger.With().Str("component", "http").Logger(),
	}
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdown)
	}()

	logger.Info().Str("addr", cfg.Server.Addr).Msg("listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("serve")
	}
}

func openStore(cfg config.LedgerConfig) (ledger.Store, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "file":
		s, err := ledger.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return ledger.NewMemoryStore(), func() {}, nil
	}
}

// openBoard dials the leaderboard when an address is configured; otherwise
// every submission reports unavailable.
func openBoard(cfg config.LeaderboardConfig, logger zerolog.Logger) (*leaderboard.Board, func()) {
	opts := []leaderboard.BoardOption{
		leaderboard.WithThrottle(cfg.SubmitInterval),
		leaderboard.WithTimeout(cfg.Timeout),
	}
	if cfg.Addr == "" {
		return leaderboard.NewBoard(leaderboard.Disabled{}, logger, opts...), func() {}
	}
	client, err := leaderboard.Dial(cfg.Addr)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("leaderboard disabled")
		return leaderboard.NewBoard(leaderboard.Disabled{}, logger, opts...), func() {}
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Healthy(ctx); err != nil {
		// the client connects lazily, so a server that starts later still gets submissions
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("leaderboard not serving yet")
	}
	return leaderboard.NewBoard(client, logger, opts...), func() { _ = client.Close() }
}
