package strategy

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"montewalk/internal/domain"
	"montewalk/internal/returns"
	"montewalk/internal/risk"
)

// SlippageModel adjusts a reference price into a fill price.
type SlippageModel interface {
	Fill(price float64, side domain.OrderSide) float64
}

// NoSlippage fills at the reference price.
type NoSlippage struct{}

// Fill implements SlippageModel.
func (NoSlippage) Fill(price float64, _ domain.OrderSide) float64 { return price }

// FixedBps moves every fill against the trader by a fixed number of basis
// points.
type FixedBps float64

// Fill implements SlippageModel.
func (b FixedBps) Fill(price float64, side domain.OrderSide) float64 {
	if side == domain.OrderSideBuy {
		return price * (1 + float64(b)/1e4)
	}
	return price * (1 - float64(b)/1e4)
}

// Config parameterizes one backtest run. Zero Start/End leave the range
// unbounded; a zero TradeFrom trades from the first bar in range.
type Config struct {
	Symbol         string
	Start          time.Time
	End            time.Time
	TradeFrom      time.Time
	InitialCapital float64
	CostBps        float64
	Slippage       SlippageModel
	AllowShort     bool
	RiskFreeRate   float64
	PeriodsPerYear float64
}

// DefaultConfig returns the standard backtest settings: 100,000 capital,
// 10 bps costs, no slippage, 4% risk-free rate and 252 periods per year.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 100_000,
		CostBps:        10,
		Slippage:       NoSlippage{},
		RiskFreeRate:   0.04,
		PeriodsPerYear: 252,
	}
}

func (c *Config) applyDefaults() {
	if c.InitialCapital == 0 {
		c.InitialCapital = 100_000
	}
	if c.PeriodsPerYear == 0 {
		c.PeriodsPerYear = 252
	}
	if c.Slippage == nil {
		c.Slippage = NoSlippage{}
	}
}

func (c Config) validate() error {
	const op = "strategy.Backtest"
	switch {
	case !(c.InitialCapital > 0) || math.IsInf(c.InitialCapital, 0):
		return domain.InvalidParameter(op, "initial_capital", "must be positive, got %v", c.InitialCapital)
	case c.CostBps < 0 || math.IsNaN(c.CostBps):
		return domain.InvalidParameter(op, "cost_bps", "must be non-negative, got %v", c.CostBps)
	case !(c.PeriodsPerYear > 0):
		return domain.InvalidParameter(op, "periods_per_year", "must be positive, got %v", c.PeriodsPerYear)
	case !c.Start.IsZero() && !c.End.IsZero() && c.End.Before(c.Start):
		return domain.InvalidParameter(op, "end", "%s is before start %s", c.End.Format(time.DateOnly), c.Start.Format(time.DateOnly))
	}
	if b, ok := c.Slippage.(FixedBps); ok && b < 0 {
		return domain.InvalidParameter(op, "slippage_bps", "must be non-negative, got %v", float64(b))
	}
	return nil
}

// EquityPoint is the marked-to-market equity at a bar close.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Trade is one executed fill.
type Trade struct {
	Timestamp time.Time           `json:"timestamp"`
	Side      domain.OrderSide    `json:"side"`
	Position  domain.PositionSide `json:"position"`
	Action    string              `json:"action"`
	Qty       float64             `json:"qty"`
	Price     float64             `json:"price"`
	Fee       float64             `json:"fee"`
	PnL       float64             `json:"pnl,omitempty"`
}

// Trade actions.
const (
	ActionEntry = "entry"
	ActionExit  = "exit"
)

// Stats summarizes a backtest. ProfitFactor is zero when there are no losing
// round trips.
type Stats struct {
	TotalReturn          float64   `json:"total_return"`
	CAGR                 float64   `json:"cagr"`
	AnnualizedVolatility float64   `json:"annualized_volatility"`
	SharpeRatio          float64   `json:"sharpe_ratio"`
	MaxDrawdown          float64   `json:"max_drawdown"`
	MaxDrawdownPeak      time.Time `json:"max_drawdown_peak"`
	MaxDrawdownTrough    time.Time `json:"max_drawdown_trough"`
	TotalTrades          int       `json:"total_trades"`
	RoundTrips           int       `json:"round_trips"`
	WinRate              float64   `json:"win_rate"`
	ProfitFactor         float64   `json:"profit_factor"`
	Exposure             float64   `json:"exposure"`
	TotalFees            float64   `json:"total_fees"`
	FinalEquity          float64   `json:"final_equity"`
}

// Result is the immutable outcome of a backtest run.
type Result struct {
	Strategy    string        `json:"strategy"`
	Symbol      string        `json:"symbol"`
	Params      Params        `json:"params,omitempty"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Trades      []Trade       `json:"trades"`
	Stats       Stats         `json:"stats"`
}

// Equity returns the equity values of the curve.
func (r *Result) Equity() []float64 {
	out := make([]float64, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		out[i] = p.Equity
	}
	return out
}

// ParamsReporter is implemented by strategies that expose their parameters.
type ParamsReporter interface {
	Params() Params
}

// Backtester replays historical bars through a strategy and computes
// performance metrics.
type Backtester struct {
	log zerolog.Logger
}

// NewBacktester creates a Backtester that logs through logger.
func NewBacktester(logger zerolog.Logger) *Backtester {
	return &Backtester{
		log: logger.With().Str("component", "backtest").Logger(),
	}
}

// account tracks cash and a signed share count.
type account struct {
	cash   float64
	shares float64
	side   domain.PositionSide
	basis  float64 // entry cost (long) or net entry proceeds (short)
}

func (a *account) equity(price float64) float64 { return a.cash + a.shares*price }

// Run replays bars within [cfg.Start, cfg.End] through strat. Missing bars
// are dropped and a non-positive open or close is rejected. The target
// decided at the close of bar i is executed at the open of bar i+1; on a
// reversal the exit fills before the entry. Positions are sized with all
// available equity and every fill pays |notional|*CostBps/1e4. Bars before
// cfg.TradeFrom only warm the strategy.
func (bt *Backtester) Run(ctx context.Context, strat Strategy, bars []domain.Bar, cfg Config) (*Result, error) {
	const op = "strategy.Backtest"
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	inRange := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Missing() {
			continue
		}
		if (!cfg.Start.IsZero() && b.Timestamp.Before(cfg.Start)) || (!cfg.End.IsZero() && b.Timestamp.After(cfg.End)) {
			continue
		}
		if !(b.Open > 0) || !(b.Close > 0) {
			return nil, domain.InvalidParameter(op, "bars", "%s bar at %s has open %v close %v, prices must be positive",
				b.Symbol, b.Timestamp.Format(time.RFC3339), b.Open, b.Close)
		}
		inRange = append(inRange, b)
	}
	symbol := cfg.Symbol
	if symbol == "" && len(inRange) > 0 {
		symbol = inRange[0].Symbol
	}
	if len(inRange) == 0 || len(inRange) < strat.Warmup() {
		return nil, domain.InsufficientData(op, symbol, "%d bars in range, %s needs %d", len(inRange), strat.Name(), strat.Warmup())
	}

	from := 0
	if !cfg.TradeFrom.IsZero() {
		for from < len(inRange) && inRange[from].Timestamp.Before(cfg.TradeFrom) {
			from++
		}
		if from == len(inRange) {
			return nil, domain.InsufficientData(op, symbol, "no bars at or after trade start %s", cfg.TradeFrom.Format(time.DateOnly))
		}
	}

	if err := strat.Init(ctx); err != nil {
		return nil, err
	}
	targets, err := strat.Positions(ctx, inRange)
	if err != nil {
		return nil, err
	}
	if len(targets) != len(inRange) {
		return nil, domain.InvalidParameter(op, "strategy", "%s returned %d positions for %d bars", strat.Name(), len(targets), len(inRange))
	}

	res := &Result{
		Strategy:    strat.Name(),
		Symbol:      symbol,
		Start:       inRange[from].Timestamp,
		End:         inRange[len(inRange)-1].Timestamp,
		EquityCurve: make([]EquityPoint, 0, len(inRange)-from),
		Trades:      []Trade{},
	}
	if pr, ok := strat.(ParamsReporter); ok {
		res.Params = pr.Params()
	}

	feeRate := cfg.CostBps / 1e4
	acct := &account{cash: cfg.InitialCapital, side: domain.PositionSideFlat}
	var (
		wins, losses        int
		grossWin, grossLoss float64
		exposed             int
	)

	for i := from; i < len(inRange); i++ {
		if i&255 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		bar := inRange[i]

		// Execute the target decided at the previous close.
		if i > from {
			target := targets[i-1]
			if target == domain.PositionSideShort && !cfg.AllowShort {
				target = domain.PositionSideFlat
			}
			if target == "" {
				target = domain.PositionSideFlat
			}
			if target != acct.side {
				if acct.side != domain.PositionSideFlat {
					t := bt.exit(acct, bar, cfg.Slippage, feeRate)
					if t.PnL > 0 {
						wins++
						grossWin += t.PnL
					} else {
						losses++
						grossLoss -= t.PnL
					}
					res.Trades = append(res.Trades, t)
				}
				if target != domain.PositionSideFlat {
					if t, ok := bt.enter(acct, target, bar, cfg.Slippage, feeRate); ok {
						res.Trades = append(res.Trades, t)
					}
				}
			}
		}

		if acct.side != domain.PositionSideFlat {
			exposed++
		}
		res.EquityCurve = append(res.EquityCurve, EquityPoint{Timestamp: bar.Timestamp, Equity: acct.equity(bar.Close)})
	}

	if err := bt.stats(res, cfg, wins, losses, grossWin, grossLoss, exposed); err != nil {
		return nil, err
	}
	bt.log.Debug().
		Str("strategy", res.Strategy).
		Str("symbol", res.Symbol).
		Int("bars", len(res.EquityCurve)).
		Int("trades", res.Stats.TotalTrades).
		Float64("total_return", res.Stats.TotalReturn).
		Msg("backtest complete")
	return res, nil
}

func (bt *Backtester) enter(acct *account, side domain.PositionSide, bar domain.Bar, slip SlippageModel, feeRate float64) (Trade, bool) {
	eq := acct.cash
	if eq <= 0 {
		bt.log.Warn().Time("timestamp", bar.Timestamp).Float64("equity", eq).Msg("no equity to enter position")
		return Trade{}, false
	}
	orderSide := domain.OrderSideBuy
	if side == domain.PositionSideShort {
		orderSide = domain.OrderSideSell
	}
	price := slip.Fill(bar.Open, orderSide)
	qty := eq / (price * (1 + feeRate))
	fee := qty * price * feeRate

	if side == domain.PositionSideLong {
		acct.cash -= qty*price + fee
		acct.shares = qty
		acct.basis = qty*price + fee
	} else {
		acct.cash += qty*price - fee
		acct.shares = -qty
		acct.basis = qty*price - fee
	}
	acct.side = side
	return Trade{
		Timestamp: bar.Timestamp, Side: orderSide, Position: side, Action: ActionEntry,
		Qty: qty, Price: price, Fee: fee,
	}, true
}

func (bt *Backtester) exit(acct *account, bar domain.Bar, slip SlippageModel, feeRate float64) Trade {
	qty := math.Abs(acct.shares)
	t := Trade{Timestamp: bar.Timestamp, Position: acct.side, Action: ActionExit, Qty: qty}
	if acct.side == domain.PositionSideLong {
		t.Side = domain.OrderSideSell
		t.Price = slip.Fill(bar.Open, t.Side)
		t.Fee = qty * t.Price * feeRate
		acct.cash += qty*t.Price - t.Fee
		t.PnL = qty*t.Price - t.Fee - acct.basis
	} else {
		t.Side = domain.OrderSideBuy
		t.Price = slip.Fill(bar.Open, t.Side)
		t.Fee = qty * t.Price * feeRate
		acct.cash -= qty*t.Price + t.Fee
		t.PnL = acct.basis - (qty*t.Price + t.Fee)
	}
	acct.shares = 0
	acct.basis = 0
	acct.side = domain.PositionSideFlat
	return t
}

func (bt *Backtester) stats(res *Result, cfg Config, wins, losses int, grossWin, grossLoss float64, exposed int) error {
	equity := res.Equity()
	n := len(equity)
	s := &res.Stats

	s.FinalEquity = equity[n-1]
	s.TotalReturn = s.FinalEquity/cfg.InitialCapital - 1
	if n > 1 && s.FinalEquity > 0 {
		s.CAGR = math.Pow(s.FinalEquity/cfg.InitialCapital, cfg.PeriodsPerYear/float64(n-1)) - 1
	}

	rets := returns.SimpleReturns(equity)
	if len(rets) >= 2 {
		s.AnnualizedVolatility = stat.StdDev(rets, nil) * math.Sqrt(cfg.PeriodsPerYear)
		sharpe, err := risk.SharpeRatio(rets, cfg.RiskFreeRate, cfg.PeriodsPerYear)
		if err != nil {
			return err
		}
		s.SharpeRatio = sharpe
	}

	dd, err := risk.MaxDrawdown(equity)
	if err != nil {
		return err
	}
	s.MaxDrawdown = dd.Magnitude
	s.MaxDrawdownPeak = res.EquityCurve[dd.PeakIndex].Timestamp
	s.MaxDrawdownTrough = res.EquityCurve[dd.TroughIndex].Timestamp

	s.TotalTrades = len(res.Trades)
	s.RoundTrips = wins + losses
	if s.RoundTrips > 0 {
		s.WinRate = float64(wins) / float64(s.RoundTrips)
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	}
	s.Exposure = float64(exposed) / float64(n)
	for _, t := range res.Trades {
		s.TotalFees += t.Fee
	}
	return nil
}
