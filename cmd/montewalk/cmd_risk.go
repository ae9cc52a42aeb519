package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"montewalk/internal/app"
	"montewalk/internal/chart"
	"montewalk/internal/tools"
)

func (c *cli) riskCommands() []*cobra.Command {
	return []*cobra.Command{c.volatilityCmd(), c.varCmd(), c.drawdownCmd(), c.portfolioRiskCmd(), c.simulateCmd()}
}

func (c *cli) volatilityCmd() *cobra.Command {
	var req tools.VolatilityRequest
	cmd := &cobra.Command{
		Use:   "volatility SYMBOL",
		Short: "Annualized volatility of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Symbol = args[0]
			return c.callTool(cmd, "volatility", req)
		},
	}
	cmd.Flags().StringVar(&req.Interval, "interval", "1d", "Bar interval")
	cmd.Flags().StringVar(&req.Period, "period", "1y", "Lookback period")
	return cmd
}

func (c *cli) varCmd() *cobra.Command {
	var req tools.VaRRequest
	cmd := &cobra.Command{
		Use:   "var SYMBOL",
		Short: "Historical Value at Risk and expected shortfall",
		Example: `  montewalk var AAPL
  montewalk var BTC/USD --confidence 0.99 --value 50000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Symbol = args[0]
			return c.callTool(cmd, "var", req)
		},
	}
	cmd.Flags().Float64Var(&req.Confidence, "confidence", 0, "Confidence level in (0,1); 0 uses the configured level")
	cmd.Flags().Float64Var(&req.PortfolioValue, "value", 10000, "Position value")
	cmd.Flags().StringVar(&req.Period, "period", "1y", "Lookback period")
	return cmd
}

func (c *cli) drawdownCmd() *cobra.Command {
	var req tools.DrawdownRequest
	cmd := &cobra.Command{
		Use:   "drawdown SYMBOL",
		Short: "Maximum drawdown of a symbol's closes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Symbol = args[0]
			return c.callTool(cmd, "max_drawdown", req)
		},
	}
	cmd.Flags().StringVar(&req.Period, "period", "1y", "Lookback period")
	return cmd
}

func (c *cli) portfolioRiskCmd() *cobra.Command {
	var req tools.PortfolioRiskRequest
	cmd := &cobra.Command{
		Use:   "portfolio-risk",
		Short: "Risk report for the paper portfolio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.callTool(cmd, "portfolio_risk", req)
		},
	}
	cmd.Flags().Float64Var(&req.Confidence, "confidence", 0, "VaR confidence; 0 uses the configured level")
	cmd.Flags().StringVar(&req.Period, "period", "1y", "Lookback period")
	return cmd
}

func (c *cli) simulateCmd() *cobra.Command {
	var (
		req       tools.MonteCarloRequest
		seed      uint64
		chartPath string
	)
	cmd := &cobra.Command{
		Use:   "simulate SYMBOL...",
		Short: "Correlated Monte Carlo simulation of a portfolio",
		Example: `  montewalk simulate AAPL MSFT --weights 0.6,0.4 --paths 20000 --horizon 126
  montewalk simulate SPY --seed 42 --chart fan.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Symbols = args
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			return c.run(cmd, func(ctx context.Context, a *app.App, logger zerolog.Logger) error {
				resp, err := invoke(ctx, a, "monte_carlo_simulation", req)
				if err != nil {
					return err
				}
				if chartPath != "" {
					if err := writeChart(chartPath, func() ([]byte, error) {
						return chart.SimulationFan(resp.(*tools.MonteCarloResponse).Result)
					}); err != nil {
						return err
					}
					logger.Info().Str("path", chartPath).Msg("chart written")
				}
				return c.print(cmd.OutOrStdout(), resp)
			})
		},
	}
	f := cmd.Flags()
	f.Float64SliceVar(&req.Weights, "weights", nil, "Portfolio weights, one per symbol (default equal)")
	f.BoolVar(&req.Normalize, "normalize", false, "Rescale weights to sum to 1")
	f.IntVar(&req.NumPaths, "paths", 0, "Number of paths (default from config)")
	f.IntVar(&req.HorizonDays, "horizon", 0, "Horizon in trading days (default from config)")
	f.Float64Var(&req.InitialValue, "value", 10000, "Initial portfolio value")
	f.Float64SliceVar(&req.Percentiles, "percentiles", nil, "Percentile levels (default from config)")
	f.Uint64Var(&seed, "seed", 0, "Random seed for reproducible runs")
	f.StringVar(&req.Period, "period", "1y", "Estimation lookback")
	f.BoolVar(&req.IncludeBands, "bands", false, "Include per-day percentile bands in the output")
	f.StringVar(&chartPath, "chart", "", "Write a percentile fan chart PNG to this path")
	return cmd
}

func writeChart(path string, render func() ([]byte, error)) error {
	png, err := render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	return nil
}
