package strategy

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"montewalk/internal/domain"
	"montewalk/internal/util"
)

// MonthsToBars converts calendar months into daily bar counts.
func MonthsToBars(months int) int { return months * util.TradingDaysPerMonth }

// Mode selects how successive walk-forward windows advance.
type Mode string

const (
	// ModePartition advances by train+test so no two windows overlap.
	ModePartition Mode = "partition"
	// ModeRolling advances by the test length; train windows overlap.
	ModeRolling Mode = "rolling"
	// ModeExpanding anchors every train window at the first bar.
	ModeExpanding Mode = "expanding"
)

// ParamSelector chooses strategy parameters on a train window and reports
// the train score of the choice.
type ParamSelector interface {
	Select(ctx context.Context, bt *Backtester, train []domain.Bar, factory Factory, cfg Config) (Params, float64, error)
}

// ScoreFunc ranks a train-window backtest; higher is better.
type ScoreFunc func(*Result) float64

// BySharpe scores a run by its Sharpe ratio.
func BySharpe(r *Result) float64 { return r.Stats.SharpeRatio }

// FixedParams uses the same caller-supplied parameters in every window.
type FixedParams struct {
	Params Params
	Score  ScoreFunc
}

// Select implements ParamSelector.
func (f FixedParams) Select(ctx context.Context, bt *Backtester, train []domain.Bar, factory Factory, cfg Config) (Params, float64, error) {
	strat, err := factory(f.Params)
	if err != nil {
		return nil, 0, err
	}
	res, err := bt.Run(ctx, strat, train, cfg)
	if err != nil {
		return nil, 0, err
	}
	score := f.Score
	if score == nil {
		score = BySharpe
	}
	return f.Params.Clone(), score(res), nil
}

// GridSearch tries every fast/slow pair with fast < slow and keeps the best
// train score; ties keep the first pair in grid order.
type GridSearch struct {
	Fast  []int
	Slow  []int
	Score ScoreFunc
}

// DefaultGrid is the standard SMA crossover search space.
func DefaultGrid() GridSearch {
	return GridSearch{Fast: []int{10, 20, 50}, Slow: []int{50, 100, 200}, Score: BySharpe}
}

// Select implements ParamSelector. Candidates the train window is too short
// for are skipped.
func (g GridSearch) Select(ctx context.Context, bt *Backtester, train []domain.Bar, factory Factory, cfg Config) (Params, float64, error) {
	score := g.Score
	if score == nil {
		score = BySharpe
	}
	var (
		best      Params
		bestScore = math.Inf(-1)
		lastErr   error
	)
	for _, fast := range g.Fast {
		for _, slow := range g.Slow {
			if fast >= slow {
				continue
			}
			p := Params{"fast": float64(fast), "slow": float64(slow)}
			strat, err := factory(p)
			if err != nil {
				return nil, 0, err
			}
			res, err := bt.Run(ctx, strat, train, cfg)
			if errors.Is(err, domain.ErrInsufficientData) {
				lastErr = err
				continue
			}
			if err != nil {
				return nil, 0, err
			}
			if sc := score(res); best == nil || sc > bestScore {
				best, bestScore = p, sc
			}
		}
	}
	if best == nil {
		if lastErr == nil {
			lastErr = domain.InvalidParameter("strategy.GridSearch", "grid", "no fast < slow pairs")
		}
		return nil, 0, lastErr
	}
	return best, bestScore, nil
}

// WalkForwardConfig parameterizes WalkForward. Backtest supplies the cost,
// capital and shorting settings for every window; its Start, End and
// TradeFrom are managed per window.
type WalkForwardConfig struct {
	TrainBars int
	TestBars  int
	Mode      Mode
	Selector  ParamSelector
	Factory   Factory
	Backtest  Config
}

// WindowResult is one train/test pair.
type WindowResult struct {
	Index      int       `json:"index"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
	Params     Params    `json:"params"`
	TrainScore float64   `json:"train_score"`
	Test       *Result   `json:"test"`
}

// WalkForwardReport aggregates the out-of-sample windows.
type WalkForwardReport struct {
	Mode                 Mode           `json:"mode"`
	TrainBars            int            `json:"train_bars"`
	TestBars             int            `json:"test_bars"`
	Windows              []WindowResult `json:"windows"`
	Consistency          float64        `json:"consistency"`
	MeanTestReturn       float64        `json:"mean_test_return"`
	CompoundedTestReturn float64        `json:"compounded_test_return"`
}

type window struct {
	trainStart, trainEnd, testStart, testEnd int
}

// windows lays out [start, end) bar index ranges for n bars. A window is
// emitted while its test range fits.
func windows(n, train, test int, mode Mode) []window {
	var out []window
	for k := 0; ; k++ {
		var w window
		switch mode {
		case ModeRolling:
			w.trainStart = k * test
			w.trainEnd = w.trainStart + train
		case ModeExpanding:
			w.trainStart = 0
			w.trainEnd = train + k*test
		default:
			w.trainStart = k * (train + test)
			w.trainEnd = w.trainStart + train
		}
		w.testStart = w.trainEnd
		w.testEnd = w.testStart + test
		if w.testEnd > n {
			return out
		}
		out = append(out, w)
	}
}

// WalkForward runs WalkForward with a backtester logging to the global
// logger.
func WalkForward(ctx context.Context, bars []domain.Bar, cfg WalkForwardConfig) (*WalkForwardReport, error) {
	return NewBacktester(log.Logger).WalkForward(ctx, bars, cfg)
}

// WalkForward slides train/test windows over bars. Parameters are chosen on
// each train window, then the test window is backtested on
// bars[testStart-warmup:testEnd] with trading starting at testStart, so
// indicators are warm but no test bar leaks into training.
func (bt *Backtester) WalkForward(ctx context.Context, bars []domain.Bar, cfg WalkForwardConfig) (*WalkForwardReport, error) {
	const op = "strategy.WalkForward"
	if cfg.TrainBars <= 0 {
		return nil, domain.InvalidParameter(op, "train_bars", "must be positive, got %d", cfg.TrainBars)
	}
	if cfg.TestBars <= 0 {
		return nil, domain.InvalidParameter(op, "test_bars", "must be positive, got %d", cfg.TestBars)
	}
	if cfg.Factory == nil {
		return nil, domain.InvalidParameter(op, "strategy", "no strategy factory")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModePartition
	case ModePartition, ModeRolling, ModeExpanding:
	default:
		return nil, domain.InvalidParameter(op, "mode", "unknown mode %q", cfg.Mode)
	}
	if cfg.Selector == nil {
		cfg.Selector = FixedParams{}
	}

	symbol := cfg.Backtest.Symbol
	if symbol == "" && len(bars) > 0 {
		symbol = bars[0].Symbol
	}
	n := len(bars)
	if n < cfg.TrainBars+cfg.TestBars {
		return nil, domain.InsufficientData(op, symbol, "%d bars, need train %d + test %d", n, cfg.TrainBars, cfg.TestBars)
	}

	base := cfg.Backtest
	base.Symbol = symbol
	base.Start, base.End, base.TradeFrom = time.Time{}, time.Time{}, time.Time{}

	report := &WalkForwardReport{Mode: cfg.Mode, TrainBars: cfg.TrainBars, TestBars: cfg.TestBars}
	compounded := 1.0
	var positive int
	var sumReturn float64

	for i, w := range windows(n, cfg.TrainBars, cfg.TestBars, cfg.Mode) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		params, trainScore, err := cfg.Selector.Select(ctx, bt, bars[w.trainStart:w.trainEnd], cfg.Factory, base)
		if err != nil {
			return nil, err
		}
		strat, err := cfg.Factory(params)
		if err != nil {
			return nil, err
		}

		from := max(w.testStart-strat.Warmup(), 0)
		testCfg := base
		testCfg.TradeFrom = bars[w.testStart].Timestamp
		test, err := bt.Run(ctx, strat, bars[from:w.testEnd], testCfg)
		if err != nil {
			return nil, err
		}

		ret := test.Stats.TotalReturn
		if ret > 0 {
			positive++
		}
		sumReturn += ret
		compounded *= 1 + ret

		report.Windows = append(report.Windows, WindowResult{
			Index:      i,
			TrainStart: bars[w.trainStart].Timestamp,
			TrainEnd:   bars[w.trainEnd-1].Timestamp,
			TestStart:  bars[w.testStart].Timestamp,
			TestEnd:    bars[w.testEnd-1].Timestamp,
			Params:     params,
			TrainScore: trainScore,
			Test:       test,
		})
		bt.log.Debug().
			Int("window", i).
			Str("params", params.String()).
			Float64("train_score", trainScore).
			Float64("test_return", ret).
			Msg("walk-forward window")
	}

	k := len(report.Windows)
	report.Consistency = float64(positive) / float64(k)
	report.MeanTestReturn = sumReturn / float64(k)
	report.CompoundedTestReturn = compounded - 1
	return report, nil
}
