package tools

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"montewalk/internal/domain"
	"montewalk/internal/marketdata"
	"montewalk/internal/store"
	"montewalk/internal/strategy"
)

// Run kinds recorded in the run store.
const (
	RunKindBacktest    = "backtest"
	RunKindWalkForward = "walk_forward"
)

// Costs overrides the configured transaction-cost model. Nil fields keep
// the configured values so an explicit zero is honoured.
type Costs struct {
	InitialCapital float64  `json:"initial_capital" validate:"gte=0"`
	CostBps        *float64 `json:"cost_bps" validate:"omitempty,gte=0"`
	SlippageBps    *float64 `json:"slippage_bps" validate:"omitempty,gte=0"`
	AllowShort     *bool    `json:"allow_short"`
}

// DateRange restricts history to [StartDate, EndDate], both YYYY-MM-DD.
// Without StartDate the lookback Period applies.
type DateRange struct {
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Period    string `json:"period"`
}

// BacktestRequest runs one strategy over one symbol. FastMA and SlowMA are
// shorthands for the sma_cross "fast" and "slow" parameters.
type BacktestRequest struct {
	Symbol   string             `json:"symbol" validate:"required"`
	Strategy string             `json:"strategy" default:"sma_cross"`
	FastMA   int                `json:"fast_ma" validate:"gte=0"`
	SlowMA   int                `json:"slow_ma" validate:"gte=0"`
	Params   map[string]float64 `json:"params"`
	DateRange
	Costs
}

// BacktestResponse is the backtest result and the id of its stored summary.
type BacktestResponse struct {
	RunID  string           `json:"run_id,omitempty"`
	Result *strategy.Result `json:"result"`
}

// RunBacktest backtests a registered strategy on daily bars with the
// configured (or overridden) cost model.
func (s *Service) RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestResponse, error) {
	const op = "tools.run_backtest"
	symbol := marketdata.NormalizeSymbol(req.Symbol)

	params := strategy.Params{}
	for k, v := range req.Params {
		params[k] = v
	}
	if req.FastMA > 0 {
		params["fast"] = float64(req.FastMA)
	}
	if req.SlowMA > 0 {
		params["slow"] = float64(req.SlowMA)
	}
	strat, err := s.deps.Strategies.New(req.Strategy, params)
	if err != nil {
		return nil, err
	}

	start, end, err := req.DateRange.bounds(op)
	if err != nil {
		return nil, err
	}
	bars, err := s.rangeHistory(ctx, op, symbol, req.DateRange, start)
	if err != nil {
		return nil, err
	}

	cfg := s.backtestConfig(symbol, req.Costs)
	cfg.Start, cfg.End = start, end
	res, err := s.bt.Run(ctx, strat, bars, cfg)
	if err != nil {
		return nil, err
	}

	out := &BacktestResponse{Result: res}
	out.RunID = s.saveRun(ctx, &store.Run{
		Kind:        RunKindBacktest,
		Strategy:    res.Strategy,
		Symbol:      symbol,
		Params:      res.Params.String(),
		TotalReturn: res.Stats.TotalReturn,
		SharpeRatio: res.Stats.SharpeRatio,
		MaxDrawdown: res.Stats.MaxDrawdown,
	})
	return out, nil
}

// WalkForwardRequest parameterizes a walk-forward analysis. Zero months and
// an empty mode take the configured defaults. Selector "grid" searches the
// sma_cross grid on every train window; "fixed" reuses Params.
type WalkForwardRequest struct {
	Symbol      string             `json:"symbol" validate:"required"`
	Strategy    string             `json:"strategy" default:"sma_cross"`
	TrainMonths int                `json:"train_months" validate:"gte=0"`
	TestMonths  int                `json:"test_months" validate:"gte=0"`
	Mode        string             `json:"mode" validate:"omitempty,oneof=partition rolling expanding"`
	Selector    string             `json:"selector" default:"grid" validate:"oneof=grid fixed"`
	Params      map[string]float64 `json:"params"`
	DateRange
	Costs
}

// WalkForwardResponse is the report and the id of its stored summary.
type WalkForwardResponse struct {
	RunID    string                      `json:"run_id,omitempty"`
	Symbol   string                      `json:"symbol"`
	Strategy string                      `json:"strategy"`
	Report   *strategy.WalkForwardReport `json:"report"`
}

// WalkForward validates a strategy out of sample on successive windows.
func (s *Service) WalkForward(ctx context.Context, req WalkForwardRequest) (*WalkForwardResponse, error) {
	const op = "tools.walk_forward_analysis"
	symbol := marketdata.NormalizeSymbol(req.Symbol)

	factory, ok := s.deps.Strategies.Get(req.Strategy)
	if !ok {
		return nil, domain.InvalidParameter(op, "strategy", "unknown strategy %q", req.Strategy)
	}
	var selector strategy.ParamSelector
	switch req.Selector {
	case "grid":
		if req.Strategy != "sma_cross" {
			return nil, domain.InvalidParameter(op, "selector", "grid search needs sma_cross, got %q", req.Strategy)
		}
		selector = strategy.DefaultGrid()
	default:
		selector = strategy.FixedParams{Params: strategy.Params(req.Params)}
	}

	train, test := req.TrainMonths, req.TestMonths
	if train == 0 {
		train = s.cfg.WalkForward.TrainMonths
	}
	if test == 0 {
		test = s.cfg.WalkForward.TestMonths
	}
	mode := strategy.Mode(req.Mode)
	if mode == "" {
		mode = strategy.Mode(s.cfg.WalkForward.Mode)
	}

	start, end, err := req.DateRange.bounds(op)
	if err != nil {
		return nil, err
	}
	if req.Period == "" && start.IsZero() {
		req.Period = "5y"
	}
	bars, err := s.rangeHistory(ctx, op, symbol, req.DateRange, start)
	if err != nil {
		return nil, err
	}
	bars = within(bars, start, end)

	report, err := s.bt.WalkForward(ctx, bars, strategy.WalkForwardConfig{
		TrainBars: strategy.MonthsToBars(train),
		TestBars:  strategy.MonthsToBars(test),
		Mode:      mode,
		Selector:  selector,
		Factory:   factory,
		Backtest:  s.backtestConfig(symbol, req.Costs),
	})
	if err != nil {
		return nil, err
	}

	out := &WalkForwardResponse{Symbol: symbol, Strategy: req.Strategy, Report: report}
	var sharpe, worst float64
	for _, w := range report.Windows {
		sharpe += w.Test.Stats.SharpeRatio
		worst = math.Max(worst, w.Test.Stats.MaxDrawdown)
	}
	if len(report.Windows) > 0 {
		sharpe /= float64(len(report.Windows))
	}
	out.RunID = s.saveRun(ctx, &store.Run{
		Kind:        RunKindWalkForward,
		Strategy:    req.Strategy,
		Symbol:      symbol,
		Params:      string(mode) + ",train=" + strconv.Itoa(train) + "mo,test=" + strconv.Itoa(test) + "mo",
		TotalReturn: report.CompoundedTestReturn,
		SharpeRatio: sharpe,
		MaxDrawdown: worst,
		Consistency: report.Consistency,
	})
	return out, nil
}

func (s *Service) backtestConfig(symbol string, c Costs) strategy.Config {
	bc := s.cfg.Backtest
	cfg := strategy.Config{
		Symbol:         symbol,
		InitialCapital: bc.InitialCapital,
		CostBps:        bc.CostBps,
		Slippage:       strategy.NoSlippage{},
		AllowShort:     bc.AllowShort,
		RiskFreeRate:   s.cfg.Risk.RiskFreeRate,
		PeriodsPerYear: s.periodsPerYear(symbol, "1d"),
	}
	slippage := bc.SlippageBps
	if c.InitialCapital > 0 {
		cfg.InitialCapital = c.InitialCapital
	}
	if c.CostBps != nil {
		cfg.CostBps = *c.CostBps
	}
	if c.SlippageBps != nil {
		slippage = *c.SlippageBps
	}
	if c.AllowShort != nil {
		cfg.AllowShort = *c.AllowShort
	}
	if slippage > 0 {
		cfg.Slippage = strategy.FixedBps(slippage)
	}
	return cfg
}

func (r DateRange) bounds(op string) (start, end time.Time, err error) {
	if r.StartDate != "" {
		start, _ = time.Parse(time.DateOnly, r.StartDate)
	}
	if r.EndDate != "" {
		end, _ = time.Parse(time.DateOnly, r.EndDate)
		// Include every bar stamped on the end date.
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, domain.InvalidParameter(op, "end_date", "%s is before start_date %s", r.EndDate, r.StartDate)
	}
	return start, end, nil
}

// rangeHistory fetches daily bars reaching back to start, or over the
// lookback period (configured default) when no start is given.
func (s *Service) rangeHistory(ctx context.Context, op, symbol string, r DateRange, start time.Time) ([]domain.Bar, error) {
	period := r.Period
	if !start.IsZero() {
		days := int(math.Ceil(s.now().Sub(start).Hours()/24)) + 1
		period = strconv.Itoa(max(days, 1)) + "d"
	}
	if period == "" {
		period = s.cfg.Backtest.Period
	}
	bars, err := s.history(ctx, op, symbol, "1d", period)
	if err != nil {
		return nil, err
	}
	for i := range bars {
		bars[i].Symbol = symbol
	}
	return bars, nil
}

func within(bars []domain.Bar, start, end time.Time) []domain.Bar {
	if start.IsZero() && end.IsZero() {
		return bars
	}
	var out []domain.Bar
	for _, b := range bars {
		if (!start.IsZero() && b.Timestamp.Before(start)) || (!end.IsZero() && b.Timestamp.After(end)) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// saveRun persists a run summary and returns its id, or "" when no run
// store is configured or the write fails.
func (s *Service) saveRun(ctx context.Context, run *store.Run) string {
	if s.deps.Runs == nil {
		return ""
	}
	run.ID = uuid.NewString()
	run.CreatedAt = s.now().UTC()
	if err := s.deps.Runs.SaveRun(ctx, run); err != nil {
		s.log.Warn().Err(err).Str("kind", run.Kind).Str("symbol", run.Symbol).Msg("save run")
		return ""
	}
	return run.ID
}
