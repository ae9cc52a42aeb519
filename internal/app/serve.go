package app

import (
	"context"

	"github.com/rs/zerolog"

	"montewalk/internal/api"
	"montewalk/internal/httpapi"
)

// Serve runs the HTTP and gRPC servers until ctx is cancelled.
func (a *App) Serve(ctx context.Context, logger zerolog.Logger) error {
	h := httpapi.NewServer(a.Tools, a.Metrics, a.Registry, logger)
	srv := api.NewServer(a.Config.Server, h.Handler(), a.Tools, logger)
	return srv.ListenAndServe(ctx)
}
