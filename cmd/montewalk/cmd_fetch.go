package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"montewalk/internal/app"
	"montewalk/internal/gather"
)

func (c *cli) fetchCmd() *cobra.Command {
	var (
		period    string
		workers   int
		watchlist bool
	)
	cmd := &cobra.Command{
		Use:   "fetch [SYMBOL...]",
		Short: "Backfill the local Parquet archive with daily bars",
		Example: `  montewalk fetch AAPL MSFT BTC/USD --period 10y
  montewalk fetch --watchlist`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App, logger zerolog.Logger) error {
				if a.Upstream == nil {
					return errors.New("fetch needs Alpaca credentials (APCA_API_KEY_ID, APCA_API_SECRET_KEY)")
				}
				symbols := args
				if watchlist {
					list, err := a.DB.Watchlist(ctx)
					if err != nil {
						return err
					}
					symbols = append(symbols, list...)
				}
				if len(symbols) == 0 {
					return errors.New("no symbols: pass them as arguments or use --watchlist")
				}
				g := gather.NewBarGatherer(a.Upstream, a.Bars, gather.Options{
					Symbols:  symbols,
					Period:   period,
					Workers:  workers,
					StateDir: filepath.Join(a.Config.Storage.DataDir, ".gather"),
				}, logger)
				sum, err := g.Gather(ctx)
				if err != nil {
					return err
				}
				if err := c.print(cmd.OutOrStdout(), sum); err != nil {
					return err
				}
				if len(sum.Failed) > 0 {
					return errors.New("some symbols failed")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "5y", "Lookback period to fetch")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent downloads")
	cmd.Flags().BoolVar(&watchlist, "watchlist", false, "Also fetch every watchlist symbol")
	return cmd
}
