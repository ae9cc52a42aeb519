package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"montewalk/internal/app"
	"montewalk/internal/config"
	"montewalk/internal/util"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("wiring montewalk-server")
	}
	defer a.Close()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Int("grpc_port", cfg.Server.GRPCPort).Msg("montewalk-server starting")
	if err := a.Serve(ctx, logger); err != nil {
		logger.Error().Err(err).Msg("server error")
		a.Close()
		os.Exit(1)
	}
}
