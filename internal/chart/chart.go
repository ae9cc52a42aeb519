// Package chart renders backtest equity curves and Monte Carlo percentile
// fans as PNG images.
package chart

import (
	"fmt"
	"math"
	"strconv"

	charts "github.com/vicanso/go-charts/v2"

	"montewalk/internal/montecarlo"
	"montewalk/internal/strategy"
)

const (
	width  = 900
	height = 500
)

// maxPoints caps the plotted points per series; longer series are sampled.
const maxPoints = 400

func yRange(series ...[]float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Abs(hi) * 0.05
	}
	return lo - pad, hi + pad
}

// sample returns the indices kept when thinning n points to at most
// maxPoints, always including the last.
func sample(n int) []int {
	step := max(1, (n+maxPoints-1)/maxPoints)
	var idx []int
	for i := 0; i < n; i += step {
		idx = append(idx, i)
	}
	if idx[len(idx)-1] != n-1 {
		idx = append(idx, n-1)
	}
	return idx
}

func splitNumber(n int) int {
	if n <= 30 {
		return max(3, n/3)
	}
	return 6
}

// EquityCurve renders the equity curve of a backtest.
func EquityCurve(res *strategy.Result) ([]byte, error) {
	if len(res.EquityCurve) < 2 {
		return nil, fmt.Errorf("equity curve has %d points, need at least 2", len(res.EquityCurve))
	}
	idx := sample(len(res.EquityCurve))
	labels := make([]string, len(idx))
	values := make([]float64, len(idx))
	for i, j := range idx {
		p := res.EquityCurve[j]
		labels[i] = p.Timestamp.Format("Jan '06")
		values[i] = p.Equity
	}
	yMin, yMax := yRange(values)

	s := res.Stats
	title := fmt.Sprintf("%s %s (%s)", res.Strategy, res.Symbol, res.Params.String())
	subtitle := fmt.Sprintf("Return: %.2f%% | Sharpe: %.2f | MaxDD: %.2f%% | Trades: %d",
		s.TotalReturn*100, s.SharpeRatio, s.MaxDrawdown*100, s.TotalTrades)

	p, err := charts.LineRender(
		[][]float64{values},
		charts.TitleTextOptionFunc(title, subtitle),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			SplitNumber: splitNumber(len(labels)),
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.LegendOptionFunc(charts.LegendOption{Data: []string{"Equity"}}),
		charts.WidthOptionFunc(width),
		charts.HeightOptionFunc(height),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("render equity chart: %w", err)
	}
	return p.Bytes()
}

// SimulationFan renders the per-day percentile bands of a simulation.
func SimulationFan(res *montecarlo.Result) ([]byte, error) {
	levels := res.Levels()
	if len(levels) == 0 || len(res.Bands[levels[0]]) < 2 {
		return nil, fmt.Errorf("simulation has no percentile bands to plot")
	}
	days := len(res.Bands[levels[0]])
	idx := sample(days)

	labels := make([]string, len(idx))
	for i, j := range idx {
		labels[i] = strconv.Itoa(j)
	}
	series := make([][]float64, len(levels))
	names := make([]string, len(levels))
	for k, lvl := range levels {
		band := res.Bands[lvl]
		vals := make([]float64, len(idx))
		for i, j := range idx {
			vals[i] = band[j]
		}
		series[k] = vals
		names[k] = "P" + strconv.FormatFloat(lvl, 'f', -1, 64)
	}
	yMin, yMax := yRange(series...)

	title := fmt.Sprintf("Monte Carlo: %d paths, %d days", len(res.Terminal), days-1)
	subtitle := fmt.Sprintf("Mean: %.2f | P(loss): %.1f%%", res.Mean, res.ProbLoss*100)

	p, err := charts.LineRender(
		series,
		charts.TitleTextOptionFunc(title, subtitle),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			SplitNumber: splitNumber(len(labels)),
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.WidthOptionFunc(width),
		charts.HeightOptionFunc(height),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("render simulation chart: %w", err)
	}
	return p.Bytes()
}
