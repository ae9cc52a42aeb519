package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"montewalk/internal/app"
	"montewalk/internal/chart"
	"montewalk/internal/tools"
)

// costFlags binds optional cost overrides; unset flags leave the configured
// values in place.
func costFlags(cmd *cobra.Command, costs *tools.Costs) func() {
	var (
		costBps, slippageBps float64
		allowShort           bool
	)
	f := cmd.Flags()
	f.Float64Var(&costs.InitialCapital, "capital", 0, "Initial capital (default from config)")
	f.Float64Var(&costBps, "cost-bps", 0, "Transaction cost in basis points")
	f.Float64Var(&slippageBps, "slippage-bps", 0, "Slippage in basis points")
	f.BoolVar(&allowShort, "allow-short", false, "Allow short positions")
	return func() {
		if f.Changed("cost-bps") {
			costs.CostBps = &costBps
		}
		if f.Changed("slippage-bps") {
			costs.SlippageBps = &slippageBps
		}
		if f.Changed("allow-short") {
			costs.AllowShort = &allowShort
		}
	}
}

func rangeFlags(cmd *cobra.Command, r *tools.DateRange) {
	f := cmd.Flags()
	f.StringVar(&r.StartDate, "start", "", "First date, YYYY-MM-DD")
	f.StringVar(&r.EndDate, "end", "", "Last date, YYYY-MM-DD")
	f.StringVar(&r.Period, "period", "", "Lookback period when no start date is given")
}

func (c *cli) backtestCmd() *cobra.Command {
	var (
		req       tools.BacktestRequest
		chartPath string
	)
	cmd := &cobra.Command{
		Use:   "backtest SYMBOL",
		Short: "Backtest a strategy with transaction costs",
		Example: `  montewalk backtest AAPL --fast 10 --slow 50
  montewalk backtest SPY --strategy composite --start 2020-01-01 --chart equity.png`,
		Args: cobra.ExactArgs(1),
	}
	applyCosts := costFlags(cmd, &req.Costs)
	rangeFlags(cmd, &req.DateRange)
	cmd.Flags().StringVar(&req.Strategy, "strategy", "sma_cross", "Strategy name")
	cmd.Flags().IntVar(&req.FastMA, "fast", 0, "Fast moving average window (sma_cross)")
	cmd.Flags().IntVar(&req.SlowMA, "slow", 0, "Slow moving average window (sma_cross)")
	params := cmd.Flags().StringToString("params", nil, "Strategy parameters, e.g. fast=10,slow=50")
	cmd.Flags().StringVar(&chartPath, "chart", "", "Write an equity curve PNG to this path")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		req.Symbol = args[0]
		p, err := parseParams(*params)
		if err != nil {
			return err
		}
		req.Params = p
		applyCosts()
		return c.run(cmd, func(ctx context.Context, a *app.App, logger zerolog.Logger) error {
			resp, err := invoke(ctx, a, "run_backtest", req)
			if err != nil {
				return err
			}
			if chartPath != "" {
				if err := writeChart(chartPath, func() ([]byte, error) {
					return chart.EquityCurve(resp.(*tools.BacktestResponse).Result)
				}); err != nil {
					return err
				}
				logger.Info().Str("path", chartPath).Msg("chart written")
			}
			return c.print(cmd.OutOrStdout(), resp)
		})
	}
	return cmd
}

func (c *cli) walkForwardCmd() *cobra.Command {
	var req tools.WalkForwardRequest
	cmd := &cobra.Command{
		Use:   "walkforward SYMBOL",
		Short: "Walk-forward validation with per-window parameter selection",
		Example: `  montewalk walkforward AAPL --train 12 --test 3 --mode rolling
  montewalk walkforward SPY --selector fixed --params fast=20,slow=100`,
		Args: cobra.ExactArgs(1),
	}
	applyCosts := costFlags(cmd, &req.Costs)
	rangeFlags(cmd, &req.DateRange)
	f := cmd.Flags()
	f.StringVar(&req.Strategy, "strategy", "sma_cross", "Strategy name")
	f.IntVar(&req.TrainMonths, "train", 0, "Training window in months (default from config)")
	f.IntVar(&req.TestMonths, "test", 0, "Test window in months (default from config)")
	f.StringVar(&req.Mode, "mode", "", "Window mode: partition, rolling or expanding")
	f.StringVar(&req.Selector, "selector", "grid", "Parameter selection: grid or fixed")
	params := f.StringToString("params", nil, "Fixed strategy parameters")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		req.Symbol = args[0]
		p, err := parseParams(*params)
		if err != nil {
			return err
		}
		req.Params = p
		applyCosts()
		return c.callTool(cmd, "walk_forward_analysis", req)
	}
	return cmd
}

func parseParams(raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		out[k] = f
	}
	return out, nil
}
