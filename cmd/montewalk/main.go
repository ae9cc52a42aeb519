package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"montewalk/internal/app"
	"montewalk/internal/config"
	"montewalk/internal/util"
)

const version = "0.3.0"

// cli carries the persistent flags shared by every command.
type cli struct {
	configPath string
	logLevel   string
	compact    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "montewalk",
		Short: "Quant risk, simulation and backtesting toolkit",
		Long: `montewalk computes risk metrics, runs correlated Monte Carlo simulations,
backtests and walk-forward validates trading strategies, and paper trades,
over daily bars from Alpaca or the local Parquet archive.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", config.Path(), "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override the configured log level")
	root.PersistentFlags().BoolVar(&c.compact, "compact", false, "Print JSON on one line")

	root.AddCommand(
		c.riskCommands()...,
	)
	root.AddCommand(
		c.backtestCmd(),
		c.walkForwardCmd(),
		c.indicatorsCmd(),
		c.summaryCmd(),
		c.optimizeCmd(),
		c.fetchCmd(),
		c.toolsCmd(),
		c.toolCmd(),
		c.serveCmd(),
		versionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "montewalk %s\n", version)
		},
	}
}

// run loads the configuration, wires the application and calls fn. Logs go
// to stderr so stdout carries only results.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, logger zerolog.Logger) error) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if c.logLevel != "" {
		level = c.logLevel
	}
	logger := util.NewLoggerTo(cmd.ErrOrStderr(), level, "console")
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, logger)
}

// callTool marshals req, runs the named tool and prints the result.
func (c *cli) callTool(cmd *cobra.Command, name string, req any) error {
	return c.run(cmd, func(ctx context.Context, a *app.App, _ zerolog.Logger) error {
		resp, err := invoke(ctx, a, name, req)
		if err != nil {
			return err
		}
		return c.print(cmd.OutOrStdout(), resp)
	})
}

func invoke(ctx context.Context, a *app.App, name string, req any) (any, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s arguments: %w", name, err)
	}
	return a.Tools.Call(ctx, name, raw)
}

func (c *cli) print(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if !c.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
