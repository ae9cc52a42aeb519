package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"montewalk/internal/app"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC API servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App, logger zerolog.Logger) error {
				logger.Info().Int("port", a.Config.Server.Port).Int("grpc_port", a.Config.Server.GRPCPort).Msg("serving")
				return a.Serve(ctx, logger)
			})
		},
	}
}
