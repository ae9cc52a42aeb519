package strategy

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"montewalk/internal/domain"
)

// scripted replays a fixed list of targets regardless of the bars.
type scripted struct {
	name    string
	warmup  int
	targets []domain.PositionSide
}

func (s *scripted) Name() string                 { return s.name }
func (s *scripted) Warmup() int                  { return s.warmup }
func (s *scripted) Init(_ context.Context) error { return nil }
func (s *scripted) Positions(_ context.Context, bars []domain.Bar) ([]domain.PositionSide, error) {
	out := make([]domain.PositionSide, len(bars))
	for i := range out {
		if i < len(s.targets) {
			out[i] = s.targets[i]
		} else {
			out[i] = domain.PositionSideFlat
		}
	}
	return out, nil
}

// momentum is long while the close is above the close lookback bars ago.
type momentum struct{ lookback int }

func (m *momentum) Name() string                 { return "momentum" }
func (m *momentum) Warmup() int                  { return m.lookback + 1 }
func (m *momentum) Init(_ context.Context) error { return nil }
func (m *momentum) Params() Params               { return Params{"lookback": float64(m.lookback)} }
func (m *momentum) Positions(_ context.Context, bars []domain.Bar) ([]domain.PositionSide, error) {
	out := make([]domain.PositionSide, len(bars))
	for i := range out {
		switch {
		case i < m.lookback:
			out[i] = domain.PositionSideFlat
		case bars[i].Close > bars[i-m.lookback].Close:
			out[i] = domain.PositionSideLong
		default:
			out[i] = domain.PositionSideShort
		}
	}
	return out, nil
}

func momentumFactory(p Params) (Strategy, error) {
	lb := p.Int("lookback", 5)
	if lb <= 0 {
		return nil, domain.InvalidParameter("momentum", "lookback", "must be positive, got %d", lb)
	}
	return &momentum{lookback: lb}, nil
}

var day0 = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

// ohlc builds bars whose open is opens[i] and close is opens[i]+0.5.
func ohlc(opens ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(opens))
	for i, o := range opens {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: day0.AddDate(0, 0, i),
			Open:      o,
			High:      o + 1,
			Low:       o - 1,
			Close:     o + 0.5,
			Volume:    1000,
		}
	}
	return bars
}

// wave builds n daily bars oscillating around an upward drift.
func wave(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := 100 + 0.05*float64(i) + 8*math.Sin(float64(i)/9)
		bars[i] = domain.Bar{
			Symbol:    "WAVE",
			Timestamp: day0.AddDate(0, 0, i),
			Open:      c - 0.2,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
		}
	}
	return bars
}

func nearly(a, b float64) bool { return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b)) }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", momentumFactory)
	r.Register("alpha", momentumFactory)

	if _, ok := r.Get("alpha"); !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	if _, ok := r.Get("nonexistent"); ok {
		t.Error("Get returned true for unregistered strategy")
	}

	names := r.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}

	s, err := r.New("alpha", Params{"lookback": 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Warmup() != 4 {
		t.Errorf("Warmup = %d, want 4", s.Warmup())
	}
	if _, err := r.New("missing", nil); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("New(missing) error = %v, want ErrInvalidParameter", err)
	}
}

func TestParams(t *testing.T) {
	p := Params{"slow": 50, "fast": 20}
	if got := p.String(); got != "fast=20,slow=50" {
		t.Errorf("String = %q", got)
	}
	if got := p.Int("fast", 1); got != 20 {
		t.Errorf("Int(fast) = %d", got)
	}
	if got := p.Int("missing", 7); got != 7 {
		t.Errorf("Int(missing) = %d", got)
	}
	c := p.Clone()
	c["fast"] = 5
	if p["fast"] != 20 {
		t.Error("Clone shares storage with the original")
	}
}

func TestBacktestExecutesAtNextOpen(t *testing.T) {
	bt := NewBacktester(zerolog.Nop())
	strat := &scripted{name: "script", targets: []domain.PositionSide{
		domain.PositionSideLong, domain.PositionSideLong, domain.PositionSideFlat, domain.PositionSideFlat,
	}}
	cfg := DefaultConfig()
	cfg.CostBps = 0

	res, err := bt.Run(context.Background(), strat, ohlc(10, 11, 12, 13), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.EquityCurve) != 4 {
		t.Fatalf("equity curve has %d points, want 4", len(res.EquityCurve))
	}
	if res.EquityCurve[0].Equity != 100_000 {
		t.Errorf("first equity = %v, want initial capital", res.EquityCurve[0].Equity)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(res.Trades))
	}
	entry, exit := res.Trades[0], res.Trades[1]
	if entry.Price != 11 || !entry.Timestamp.Equal(day0.AddDate(0, 0, 1)) {
		t.Errorf("entry = %+v, want fill at bar 1 open 11", entry)
	}
	if exit.Price != 13 || exit.Action != ActionExit {
		t.Errorf("exit = %+v, want fill at bar 3 open 13", exit)
	}

	qty := 100_000.0 / 11
	if !nearly(res.EquityCurve[1].Equity, qty*11.5) {
		t.Errorf("equity[1] = %v, want %v", res.EquityCurve[1].Equity, qty*11.5)
	}
	want := 100_000.0 * 13 / 11
	if !nearly(res.Stats.FinalEquity, want) {
		t.Errorf("FinalEquity = %v, want %v", res.Stats.FinalEquity, want)
	}
	if !nearly(res.Stats.TotalReturn, want/100_000-1) {
		t.Errorf("TotalReturn = %v", res.Stats.TotalReturn)
	}
	if res.Stats.RoundTrips != 1 || res.Stats.WinRate != 1 {
		t.Errorf("round trips = %d win rate = %v, want 1 and 1", res.Stats.RoundTrips, res.Stats.WinRate)
	}
	if res.Stats.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0 without losing trades", res.Stats.ProfitFactor)
	}
	if res.Stats.Exposure != 0.5 {
		t.Errorf("Exposure = %v, want 0.5", res.Stats.Exposure)
	}
}

func TestBacktestFeesAndSlippage(t *testing.T) {
	bt := NewBacktester(zerolog.Nop())
	strat := &scripted{name: "script", targets: []domain.PositionSide{
		domain.PositionSideLong, domain.PositionSideLong, domain.PositionSideFlat,
	}}
	cfg := DefaultConfig()
	cfg.CostBps = 10

	res, err := bt.Run(context.Background(), strat, ohlc(10, 11, 12, 13), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	qty := 100_000 / (11 * 1.001)
	wantFees := qty*11*0.001 + qty*13*0.001
	if !nearly(res.Stats.TotalFees, wantFees) {
		t.Errorf("TotalFees = %v, want %v", res.Stats.TotalFees, wantFees)
	}
	if want := qty * 13 * 0.999; !nearly(res.Stats.FinalEquity, want) {
		t.Errorf("FinalEquity = %v, want %v", res.Stats.FinalEquity, want)
	}

	cfg.CostBps = 0
	cfg.Slippage = FixedBps(100)
	res, err = bt.Run(context.Background(), strat, ohlc(10, 11, 12, 13), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.Trades[0].Price; !nearly(got, 11*1.01) {
		t.Errorf("buy fill = %v, want %v", got, 11*1.01)
	}
	if got := res.Trades[1].Price; !nearly(got, 13*0.99) {
		t.Errorf("sell fill = %v, want %v", got, 13*0.99)
	}
}

func TestBacktestShorting(t *testing.T) {
	bt := NewBacktester(zerolog.Nop())
	strat := &scripted{name: "script", targets: []domain.PositionSide{
		domain.PositionSideShort, domain.PositionSideShort, domain.PositionSideFlat,
	}}
	cfg := DefaultConfig()
	cfg.CostBps = 0

	res, err := bt.Run(context.Background(), strat, ohlc(10, 11, 12, 13), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 || res.Stats.TotalReturn != 0 {
		t.Errorf("short signals without AllowShort traded: %d trades, return %v", len(res.Trades), res.Stats.TotalReturn)
	}

	cfg.AllowShort = true
	res, err = bt.Run(context.Background(), strat, ohlc(10, 11, 12, 13), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 2 || res.Trades[0].Side != domain.OrderSideSell {
		t.Fatalf("trades = %+v, want sell entry then buy exit", res.Trades)
	}
	want := 100_000 * (2 - 13.0/11)
	if !nearly(res.Stats.FinalEquity, want) {
		t.Errorf("FinalEquity = %v, want %v", res.Stats.FinalEquity, want)
	}
	if res.Stats.WinRate != 0 || res.Trades[1].PnL >= 0 {
		t.Errorf("short into a rally should lose: win rate %v pnl %v", res.Stats.WinRate, res.Trades[1].PnL)
	}
}

func TestBacktestReversalExitsFirst(t *testing.T) {
	bt := NewBacktester(zerolog.Nop())
	strat := &scripted{name: "script", targets: []domain.PositionSide{
		domain.PositionSideLong, domain.PositionSideShort, domain.PositionSideShort,
	}}
	cfg := DefaultConfig()
	cfg.AllowShort = true

	res, err := bt.Run(context.Background(), strat, ohlc(10, 11, 12, 13), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(res.Trades))
	}
	if res.Trades[1].Action != ActionExit || res.Trades[2].Action != ActionEntry {
		t.Errorf("reversal order = %s, %s; want exit then entry", res.Trades[1].Action, res.Trades[2].Action)
	}
	if !res.Trades[1].Timestamp.Equal(res.Trades[2].Timestamp) {
		t.Error("reversal legs should fill on the same bar")
	}
}

func TestBacktestDeterministic(t *testing.T) {
	bt := NewBacktester(zerolog.Nop())
	bars := wave(300)
	cfg := DefaultConfig()
	cfg.AllowShort = true

	a, err := bt.Run(context.Background(), &momentum{lookback: 10}, bars, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := bt.Run(context.Background(), &momentum{lookback: 10}, bars, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.Stats != b.Stats || len(a.Trades) != len(b.Trades) {
		t.Error("identical inputs produced different results")
	}
	if a.Params["lookback"] != 10 {
		t.Errorf("Params = %v, want lookback reported", a.Params)
	}
	if a.Stats.MaxDrawdown < 0 || a.Stats.MaxDrawdown > 1 {
		t.Errorf("MaxDrawdown = %v out of [0,1]", a.Stats.MaxDrawdown)
	}
}

func TestBacktestTradeFromAndRange(t *testing.T) {
	bt := NewBacktester(zerolog.Nop())
	bars := wave(100)
	cfg := DefaultConfig()
	cfg.TradeFrom = bars[40].Timestamp
	cfg.End = bars[79].Timestamp

	res, err := bt.Run(context.Background(), &momentum{lookback: 20}, bars, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.EquityCurve) != 40 {
		t.Errorf("equity curve has %d points, want 40", len(res.EquityCurve))
	}
	if !res.Start.Equal(bars[40].Timestamp) || !res.End.Equal(bars[79].Timestamp) {
		t.Errorf("range = %s..%s", res.Start, res.End)
	}
}

func TestBacktestErrors(t *testing.T) {
	bt := NewBacktester(zerolog.Nop())
	ctx := context.Background()

	if _, err := bt.Run(ctx, &momentum{lookback: 20}, wave(10), DefaultConfig()); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("short history: error = %v, want ErrInsufficientData", err)
	}
	if _, err := bt.Run(ctx, &momentum{lookback: 2}, nil, DefaultConfig()); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("no bars: error = %v, want ErrInsufficientData", err)
	}

	cfg := DefaultConfig()
	cfg.InitialCapital = -1
	if _, err := bt.Run(ctx, &momentum{lookback: 2}, wave(10), cfg); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("negative capital: error = %v, want ErrInvalidParameter", err)
	}
	cfg = DefaultConfig()
	cfg.CostBps = -5
	if _, err := bt.Run(ctx, &momentum{lookback: 2}, wave(10), cfg); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("negative cost: error = %v, want ErrInvalidParameter", err)
	}
}

func TestBacktestBadBars(t *testing.T) {
	bt := NewBacktester(zerolog.Nop())
	ctx := context.Background()
	strat := &scripted{name: "script", targets: []domain.PositionSide{
		domain.PositionSideLong, domain.PositionSideLong, domain.PositionSideFlat, domain.PositionSideFlat,
	}}
	cfg := DefaultConfig()
	cfg.CostBps = 0

	bars := ohlc(10, 11, 12, 13, 14)
	bars[1].Open = math.NaN()
	res, err := bt.Run(ctx, strat, bars, cfg)
	if err != nil {
		t.Fatalf("Run with a missing bar: %v", err)
	}
	if len(res.EquityCurve) != 4 {
		t.Fatalf("equity curve has %d points, want 4 after dropping the missing bar", len(res.EquityCurve))
	}
	if entry := res.Trades[0]; entry.Price != 12 {
		t.Errorf("entry price = %v, want 12 (next usable open)", entry.Price)
	}

	bars = ohlc(10, 11, 12, 13)
	bars[2].Open = 0
	_, err = bt.Run(ctx, strat, bars, cfg)
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Fatalf("zero open: error = %v, want ErrInvalidParameter", err)
	}
	if domain.Subject(err) != "bars" {
		t.Errorf("subject = %q, want bars", domain.Subject(err))
	}
	if !strings.Contains(err.Error(), bars[2].Timestamp.Format(time.RFC3339)) {
		t.Errorf("error %q should name the bar timestamp", err)
	}
}

func TestWindows(t *testing.T) {
	tests := []struct {
		mode Mode
		want int
	}{
		{ModePartition, 3},
		{ModeRolling, 9},
		{ModeExpanding, 9},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			ws := windows(504, 126, 42, tt.mode)
			if len(ws) != tt.want {
				t.Fatalf("got %d windows, want %d", len(ws), tt.want)
			}
			for _, w := range ws {
				if w.testStart != w.trainEnd || w.testEnd-w.testStart != 42 || w.testEnd > 504 {
					t.Errorf("bad window %+v", w)
				}
				if tt.mode == ModeExpanding && w.trainStart != 0 {
					t.Errorf("expanding window starts at %d", w.trainStart)
				}
			}
		})
	}
}

func TestWalkForwardFixedParams(t *testing.T) {
	bars := wave(504)
	cfg := WalkForwardConfig{
		TrainBars: 126,
		TestBars:  42,
		Factory:   momentumFactory,
		Selector:  FixedParams{Params: Params{"lookback": 10}},
		Backtest:  DefaultConfig(),
	}

	rep, err := NewBacktester(zerolog.Nop()).WalkForward(context.Background(), bars, cfg)
	if err != nil {
		t.Fatalf("WalkForward: %v", err)
	}
	if rep.Mode != ModePartition || len(rep.Windows) != 3 {
		t.Fatalf("mode %s with %d windows, want partition with 3", rep.Mode, len(rep.Windows))
	}

	var positive int
	for i, w := range rep.Windows {
		if !w.TestStart.After(w.TrainEnd) {
			t.Errorf("window %d: test %s does not follow train end %s", i, w.TestStart, w.TrainEnd)
		}
		if len(w.Test.EquityCurve) != 42 {
			t.Errorf("window %d: %d test equity points, want 42", i, len(w.Test.EquityCurve))
		}
		if !w.Test.Start.Equal(w.TestStart) {
			t.Errorf("window %d: test run starts %s, want %s", i, w.Test.Start, w.TestStart)
		}
		if w.Params["lookback"] != 10 {
			t.Errorf("window %d: params %v", i, w.Params)
		}
		if w.Test.Stats.TotalReturn > 0 {
			positive++
		}
	}
	if want := float64(positive) / 3; rep.Consistency != want {
		t.Errorf("Consistency = %v, want %v", rep.Consistency, want)
	}
}

func TestWalkForwardModes(t *testing.T) {
	bars := wave(504)
	for _, mode := range []Mode{ModeRolling, ModeExpanding} {
		cfg := WalkForwardConfig{TrainBars: 126, TestBars: 42, Mode: mode, Factory: momentumFactory}
		rep, err := WalkForward(context.Background(), bars, cfg)
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if len(rep.Windows) != 9 {
			t.Errorf("%s: %d windows, want 9", mode, len(rep.Windows))
		}
	}
}

func TestWalkForwardErrors(t *testing.T) {
	ctx := context.Background()
	bars := wave(100)

	_, err := WalkForward(ctx, bars, WalkForwardConfig{TrainBars: 80, TestBars: 40, Factory: momentumFactory})
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("short history: error = %v, want ErrInsufficientData", err)
	}
	_, err = WalkForward(ctx, bars, WalkForwardConfig{TrainBars: 0, TestBars: 10, Factory: momentumFactory})
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("zero train: error = %v, want ErrInvalidParameter", err)
	}
	_, err = WalkForward(ctx, bars, WalkForwardConfig{TrainBars: 50, TestBars: 10})
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("nil factory: error = %v, want ErrInvalidParameter", err)
	}
	_, err = WalkForward(ctx, bars, WalkForwardConfig{TrainBars: 50, TestBars: 10, Mode: "sideways", Factory: momentumFactory})
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("bad mode: error = %v, want ErrInvalidParameter", err)
	}
}

func TestMonthsToBars(t *testing.T) {
	if got := MonthsToBars(12); got != 252 {
		t.Errorf("MonthsToBars(12) = %d, want 252", got)
	}
}
