// Package tools is the boundary between loosely typed tool calls and the
// analytics core. Every tool decodes its JSON arguments into a typed request
// once, runs against the injected collaborators and returns a typed,
// JSON-serializable response.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"montewalk/internal/config"
	"montewalk/internal/domain"
	"montewalk/internal/engine"
	"montewalk/internal/marketdata"
	"montewalk/internal/metrics"
	"montewalk/internal/store"
	"montewalk/internal/strategy"
	"montewalk/internal/strategy/builtins"
)

// ErrUnknownTool is returned by Call for names that are not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Deps are the collaborators a Service runs against. Provider is required;
// the stores and the engine are optional and the tools that need them report
// domain.ErrDataUnavailable when they are missing.
type Deps struct {
	Provider   marketdata.Provider
	Engine     *engine.Engine
	Watchlist  store.WatchlistStore
	Signals    store.SignalStore
	Runs       store.RunStore
	Strategies *strategy.Registry
	Metrics    *metrics.Recorder
	Config     *config.Config
}

// Info describes one registered tool.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type handler func(ctx context.Context, raw json.RawMessage) (any, error)

type tool struct {
	info Info
	call handler
}

// Service implements the tools and dispatches calls to them by name.
type Service struct {
	deps  Deps
	cfg   *config.Config
	bt    *strategy.Backtester
	tools map[string]tool
	now   func() time.Time
	log   zerolog.Logger
}

// New builds a Service. A nil Config selects config.Default() and a nil
// strategy registry selects the built-in strategies.
func New(deps Deps, logger zerolog.Logger) *Service {
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	if deps.Strategies == nil {
		deps.Strategies = builtins.NewRegistry()
	}
	s := &Service{
		deps: deps,
		cfg:  deps.Config,
		bt:   strategy.NewBacktester(logger),
		now:  time.Now,
		log:  logger.With().Str("component", "tools").Logger(),
	}
	s.register()
	return s
}

// bind adapts a typed tool method into a handler that decodes its request.
func bind[Req, Resp any](fn func(context.Context, Req) (Resp, error)) handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req Req
		if err := Decode(ctx, raw, &req); err != nil {
			return nil, err
		}
		return fn(ctx, req)
	}
}

func (s *Service) register() {
	s.tools = make(map[string]tool)
	add := func(name, desc string, h handler) {
		s.tools[name] = tool{info: Info{Name: name, Description: desc}, call: h}
	}

	add("get_price", "Historical OHLCV bars for a symbol.", bind(s.GetPrice))
	add("get_fundamentals", "Reference data and 52-week statistics for a symbol.", bind(s.GetFundamentals))

	add("volatility", "Annualized volatility of a symbol's log returns.", bind(s.Volatility))
	add("var", "Historical Value at Risk and expected shortfall of a symbol.", bind(s.VaR))
	add("max_drawdown", "Largest peak-to-trough decline of a symbol's closes.", bind(s.MaxDrawdown))
	add("portfolio_risk", "Volatility, VaR and correlation of the paper portfolio.", bind(s.PortfolioRisk))
	add("monte_carlo_simulation", "Correlated GBM simulation of a weighted portfolio.", bind(s.MonteCarlo))

	add("compute_indicators", "Technical indicator table (RSI, MACD, BBANDS, SMA, EMA).", bind(s.ComputeIndicators))
	add("rolling_stats", "Rolling mean and standard deviation of closes.", bind(s.RollingStats))
	add("get_technical_summary", "Composite BUY/SELL/NEUTRAL verdict from RSI, MACD and moving averages.", bind(s.TechnicalSummary))

	add("run_backtest", "Backtest a strategy with transaction costs.", bind(s.RunBacktest))
	add("walk_forward_analysis", "Walk-forward validation with per-window parameter selection.", bind(s.WalkForward))

	add("mean_variance_optimize", "Long-only maximum Sharpe allocation.", bind(s.MeanVarianceOptimize))
	add("risk_parity", "Inverse volatility allocation.", bind(s.RiskParity))

	add("place_order", "Submit a paper-trading order.", bind(s.PlaceOrder))
	add("cancel_order", "Cancel an open paper-trading order.", bind(s.CancelOrder))
	add("get_order_history", "Paper-trading orders, filtered by all, open or closed.", bind(s.GetOrderHistory))
	add("flatten", "Close every open paper position at market.", bind(s.Flatten))
	add("get_positions", "Current paper positions, cash and equity.", bind(s.GetPositions))
	add("add_to_watchlist", "Add a symbol to the watchlist.", bind(s.AddToWatchlist))
	add("remove_from_watchlist", "Remove a symbol from the watchlist.", bind(s.RemoveFromWatchlist))
	add("get_watchlist", "Watchlist symbols with their latest close.", bind(s.GetWatchlist))
}

// List returns the registered tools sorted by name.
func (s *Service) List() []Info {
	out := make([]Info, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call runs the named tool with JSON arguments.
func (s *Service) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	t, ok := s.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	start := time.Now()
	resp, err := t.call(ctx, args)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = domain.KindName(err)
		s.log.Warn().Err(err).Str("tool", name).Str("kind", outcome).Dur("elapsed", elapsed).Msg("tool call failed")
	} else {
		s.log.Debug().Str("tool", name).Dur("elapsed", elapsed).Msg("tool call")
	}
	s.deps.Metrics.ObserveTool(name, outcome, elapsed)
	return resp, err
}

func unavailable(op, what string) error {
	return domain.DataUnavailable(op, "", fmt.Errorf("%s is not configured", what))
}
