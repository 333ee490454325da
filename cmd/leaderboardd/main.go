// Command leaderboardd serves an in-memory leaderboard over gRPC for local play and tests.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/xtding233/sector-run/internal/leaderboard"
	"github.com/xtding233/sector-run/internal/logging"
)

func main() {
	addr := flag.String("addr", ":7070", "listen address")
	level := flag.String("log-level", "info", "log level")
	format := flag.String("log-format", "console", "console or json")
	flag.Parse()

	logger := logging.New("leaderboardd", logging.Options{Level: *level, Format: *format})

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", *addr).Msg("listen")
	}

	srv := grpc.NewServer(grpc.UnaryInterceptor(logUnary(logger)))
	leaderboard.RegisterService(srv, leaderboard.NewMemoryService())
	hs := health.NewServer()
	hs.SetServingStatus(leaderboard.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	logger.Info().Str("addr", lis.Addr().String()).Msg("listening")
	if err := srv.Serve(lis); err != nil {
		logger.Fatal().Err(err).Msg("serve")
	}
}

func logUnary(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		ev := logger.Debug()
		if err != nil {
			ev = logger.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).Str("code", status.Code(err).String()).
			Dur("took", time.Since(start)).Msg("rpc")
		return resp, err
	}
}
