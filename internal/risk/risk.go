// Package risk computes volatility, historical Value-at-Risk, drawdowns,
// risk-adjusted ratios and correlation structure from return series.
package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"montewalk/internal/domain"
)

// Volatility returns the annualized sample standard deviation of returns.
func Volatility(returns []float64, periodsPerYear float64) (float64, error) {
	const op = "risk.Volatility"
	if periodsPerYear <= 0 || math.IsNaN(periodsPerYear) || math.IsInf(periodsPerYear, 0) {
		return 0, domain.InvalidParameter(op, "periods_per_year", "must be positive, got %v", periodsPerYear)
	}
	if len(returns) < 2 {
		return 0, domain.InsufficientData(op, "", "need at least 2 returns, got %d", len(returns))
	}
	return stat.StdDev(returns, nil) * math.Sqrt(periodsPerYear), nil
}

// Percentile returns the p-quantile (p in [0,1]) of values using linear
// interpolation between order statistics at rank h = (n-1)p. This is the
// PERCENTILE.INC convention.
func Percentile(values []float64, p float64) (float64, error) {
	const op = "risk.Percentile"
	if len(values) == 0 {
		return 0, domain.InsufficientData(op, "", "no values")
	}
	if p < 0 || p > 1 || math.IsNaN(p) {
		return 0, domain.InvalidParameter(op, "p", "must be in [0,1], got %v", p)
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return PercentileSorted(sorted, p), nil
}

// PercentileSorted is Percentile over an already ascending, non-empty slice.
func PercentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func checkTail(op string, returns []float64, confidence, portfolioValue float64) error {
	if !(confidence > 0 && confidence < 1) {
		return domain.InvalidParameter(op, "confidence", "must be in (0,1), got %v", confidence)
	}
	if !(portfolioValue > 0) || math.IsInf(portfolioValue, 0) {
		return domain.InvalidParameter(op, "portfolio_value", "must be positive, got %v", portfolioValue)
	}
	if len(returns) == 0 {
		return domain.InsufficientData(op, "", "no returns")
	}
	return nil
}

// ValueAtRisk is historical-simulation VaR on log returns: the loss of
// portfolioValue at the (1-confidence) percentile of the empirical return
// distribution, value*(1-e^q). A negative result means that percentile is a
// gain; it is returned as is.
func ValueAtRisk(returns []float64, confidence, portfolioValue float64) (float64, error) {
	const op = "risk.ValueAtRisk"
	if err := checkTail(op, returns, confidence, portfolioValue); err != nil {
		return 0, err
	}
	q, err := Percentile(returns, 1-confidence)
	if err != nil {
		return 0, err
	}
	return portfolioValue * (1 - math.Exp(q)), nil
}

// ExpectedShortfall is the mean loss over the returns at or below the VaR
// percentile.
func ExpectedShortfall(returns []float64, confidence, portfolioValue float64) (float64, error) {
	const op = "risk.ExpectedShortfall"
	if err := checkTail(op, returns, confidence, portfolioValue); err != nil {
		return 0, err
	}
	q, err := Percentile(returns, 1-confidence)
	if err != nil {
		return 0, err
	}
	var sum float64
	var n int
	for _, r := range returns {
		if r <= q {
			sum += portfolioValue * (1 - math.Exp(r))
			n++
		}
	}
	return sum / float64(n), nil
}

// Drawdown is the largest peak-to-trough decline of an equity curve.
type Drawdown struct {
	Magnitude   float64 `json:"magnitude"`
	PeakIndex   int     `json:"peak_index"`
	TroughIndex int     `json:"trough_index"`
}

// MaxDrawdown scans the running maximum once. Drawdown at t is
// (peak-equity_t)/peak; ties keep the first occurrence. A curve that never
// declines yields a zero Drawdown.
func MaxDrawdown(equity []float64) (Drawdown, error) {
	const op = "risk.MaxDrawdown"
	if len(equity) == 0 {
		return Drawdown{}, domain.InsufficientData(op, "", "empty equity curve")
	}

	var dd Drawdown
	peak, peakIdx := equity[0], 0
	for i, v := range equity {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Drawdown{}, domain.InvalidParameter(op, "equity", "non-finite value at index %d", i)
		}
		if v > peak {
			peak, peakIdx = v, i
		}
		if peak <= 0 {
			return Drawdown{}, domain.InvalidParameter(op, "equity", "running peak %v at index %d is not positive", peak, peakIdx)
		}
		if d := (peak - v) / peak; d > dd.Magnitude {
			dd = Drawdown{Magnitude: d, PeakIndex: peakIdx, TroughIndex: i}
		}
	}
	return dd, nil
}

// SharpeRatio annualizes the mean excess return over its sample standard
// deviation. A series without variance scores zero.
func SharpeRatio(returns []float64, riskFreeRate, periodsPerYear float64) (float64, error) {
	excess, err := excessReturns("risk.SharpeRatio", returns, riskFreeRate, periodsPerYear)
	if err != nil {
		return 0, err
	}
	if constant(excess) {
		return 0, nil
	}
	mean, std := stat.MeanStdDev(excess, nil)
	if std == 0 || math.IsNaN(std) {
		return 0, nil
	}
	return mean / std * math.Sqrt(periodsPerYear), nil
}

// Sortino is SharpeRatio with downside deviation in the denominator.
func Sortino(returns []float64, riskFreeRate, periodsPerYear float64) (float64, error) {
	excess, err := excessReturns("risk.Sortino", returns, riskFreeRate, periodsPerYear)
	if err != nil {
		return 0, err
	}
	var downside float64
	for _, r := range excess {
		if r < 0 {
			downside += r * r
		}
	}
	dd := math.Sqrt(downside / float64(len(excess)))
	if dd == 0 {
		return 0, nil
	}
	return stat.Mean(excess, nil) / dd * math.Sqrt(periodsPerYear), nil
}

func excessReturns(op string, returns []float64, riskFreeRate, periodsPerYear float64) ([]float64, error) {
	if periodsPerYear <= 0 {
		return nil, domain.InvalidParameter(op, "periods_per_year", "must be positive, got %v", periodsPerYear)
	}
	if len(returns) < 2 {
		return nil, domain.InsufficientData(op, "", "need at least 2 returns, got %d", len(returns))
	}
	rf := riskFreeRate / periodsPerYear
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r - rf
	}
	return out, nil
}

// constant reports whether every value equals the first. Summation rounding
// can leave a tiny non-zero stdev for such series.
func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
