package main

import (
	"strings"

	"github.com/spf13/cobra"

	"montewalk/internal/tools"
)

func (c *cli) indicatorsCmd() *cobra.Command {
	var req tools.IndicatorsRequest
	cmd := &cobra.Command{
		Use:     "indicators SYMBOL",
		Short:   "Technical indicator table",
		Example: `  montewalk indicators AAPL --indicators RSI,MACD,BBANDS,SMA_50 --tail 5`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Symbol = args[0]
			for i, name := range req.Indicators {
				req.Indicators[i] = strings.ToUpper(strings.TrimSpace(name))
			}
			return c.callTool(cmd, "compute_indicators", req)
		},
	}
	cmd.Flags().StringSliceVar(&req.Indicators, "indicators", []string{"RSI", "MACD"}, "Indicators to compute")
	cmd.Flags().StringVar(&req.Period, "period", "1y", "Lookback period")
	cmd.Flags().IntVar(&req.Tail, "tail", 10, "Rows to print; 0 prints every row")
	return cmd
}

func (c *cli) summaryCmd() *cobra.Command {
	var req tools.SummaryRequest
	cmd := &cobra.Command{
		Use:   "summary SYMBOL",
		Short: "Composite BUY/SELL/NEUTRAL verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Symbol = args[0]
			return c.callTool(cmd, "get_technical_summary", req)
		},
	}
	cmd.Flags().StringVar(&req.Period, "period", "2y", "Lookback period")
	return cmd
}

func (c *cli) optimizeCmd() *cobra.Command {
	var (
		req    tools.AllocationRequest
		method string
	)
	cmd := &cobra.Command{
		Use:   "optimize SYMBOL SYMBOL...",
		Short: "Portfolio allocation by maximum Sharpe or risk parity",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Symbols = args
			name := "mean_variance_optimize"
			if method == "risk-parity" {
				name = "risk_parity"
			}
			return c.callTool(cmd, name, req)
		},
	}
	cmd.Flags().StringVar(&method, "method", "max-sharpe", "Allocation method: max-sharpe or risk-parity")
	cmd.Flags().StringVar(&req.Period, "period", "1y", "Estimation lookback")
	return cmd
}
