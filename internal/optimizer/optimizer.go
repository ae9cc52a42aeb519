// Package optimizer computes long-only portfolio weights from aligned return
// history: maximum-Sharpe mean-variance and inverse-volatility risk parity.
package optimizer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"montewalk/internal/domain"
	"montewalk/internal/returns"
	"montewalk/internal/risk"
)

// MinWeight is the cutoff below which a weight is reported as zero.
const MinWeight = 0.01

// Method names.
const (
	MethodMaxSharpe  = "max_sharpe"
	MethodRiskParity = "risk_parity"
)

// Allocation is an optimized set of weights with the portfolio's
// annualized statistics under those weights.
type Allocation struct {
	Method         string             `json:"method"`
	Weights        map[string]float64 `json:"weights"`
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	SharpeRatio    float64            `json:"sharpe_ratio"`
	Observations   int                `json:"observations"`
}

type inputs struct {
	symbols []string
	mean    []float64
	cov     *mat.SymDense
	n       int
}

// prepare converts aligned log returns into simple returns and estimates
// their per-period mean and covariance.
func prepare(op string, aligned returns.Aligned) (*inputs, error) {
	k := len(aligned.Symbols)
	if k == 0 {
		return nil, domain.InsufficientData(op, "", "no assets")
	}
	simple := make([][]float64, k)
	for i, col := range aligned.Values {
		if len(col) < 2 {
			return nil, domain.InsufficientData(op, aligned.Symbols[i], "need at least 2 returns, got %d", len(col))
		}
		s := make([]float64, len(col))
		for t, r := range col {
			s[t] = math.Expm1(r)
		}
		simple[i] = s
	}

	in := &inputs{symbols: aligned.Symbols, mean: make([]float64, k), n: len(simple[0])}
	for i, s := range simple {
		in.mean[i] = stat.Mean(s, nil)
	}
	cov, err := risk.CovarianceMatrix(simple, aligned.Symbols...)
	if err != nil {
		return nil, err
	}
	in.cov = cov
	return in, nil
}

// stats returns the annualized return, volatility and Sharpe ratio of w.
func (in *inputs) stats(w []float64, riskFreeRate, periodsPerYear float64) (ret, vol, sharpe float64) {
	ret = floats.Dot(in.mean, w) * periodsPerYear
	wv := mat.NewVecDense(len(w), w)
	vol = math.Sqrt(math.Max(mat.Inner(wv, in.cov, wv), 0) * periodsPerYear)
	if vol > 1e-6 {
		sharpe = (ret - riskFreeRate) / vol
	}
	return ret, vol, sharpe
}

func (in *inputs) allocation(method string, w []float64, riskFreeRate, periodsPerYear float64) *Allocation {
	a := &Allocation{
		Method:       method,
		Weights:      make(map[string]float64, len(w)),
		Observations: in.n,
	}
	a.ExpectedReturn, a.Volatility, a.SharpeRatio = in.stats(w, riskFreeRate, periodsPerYear)
	for i, sym := range in.symbols {
		a.Weights[sym] = w[i]
	}
	return a
}

// softmax maps unconstrained x onto the simplex.
func softmax(x []float64) []float64 {
	w := make([]float64, len(x))
	m := floats.Max(x)
	var sum float64
	for i, v := range x {
		w[i] = math.Exp(v - m)
		sum += w[i]
	}
	floats.Scale(1/sum, w)
	return w
}

// prune zeroes weights below MinWeight and renormalizes the rest.
func prune(w []float64) []float64 {
	out := make([]float64, len(w))
	var sum float64
	for i, v := range w {
		if v >= MinWeight {
			out[i] = v
			sum += v
		}
	}
	if sum == 0 {
		return w
	}
	floats.Scale(1/sum, out)
	return out
}

// MaxSharpe finds long-only weights summing to 1 that maximize the
// annualized Sharpe ratio. The simplex constraint is enforced by a softmax
// parameterization searched with Nelder-Mead from equal weights.
func MaxSharpe(aligned returns.Aligned, riskFreeRate, periodsPerYear float64) (*Allocation, error) {
	const op = "optimizer.MaxSharpe"
	if periodsPerYear <= 0 {
		return nil, domain.InvalidParameter(op, "periods_per_year", "must be positive, got %v", periodsPerYear)
	}
	in, err := prepare(op, aligned)
	if err != nil {
		return nil, err
	}
	k := len(in.symbols)
	if k == 1 {
		return in.allocation(MethodMaxSharpe, []float64{1}, riskFreeRate, periodsPerYear), nil
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			_, vol, sharpe := in.stats(softmax(x), riskFreeRate, periodsPerYear)
			if vol <= 1e-6 {
				return 0
			}
			return -sharpe
		},
	}
	settings := &optimize.Settings{
		MajorIterations: 2000,
		FuncEvaluations: 20000,
	}
	res, err := optimize.Minimize(problem, make([]float64, k), settings, &optimize.NelderMead{})
	if res == nil {
		return nil, err
	}
	w := prune(softmax(res.X))
	return in.allocation(MethodMaxSharpe, w, riskFreeRate, periodsPerYear), nil
}

// RiskParity weights each asset by the inverse of its return volatility.
func RiskParity(aligned returns.Aligned, riskFreeRate, periodsPerYear float64) (*Allocation, error) {
	const op = "optimizer.RiskParity"
	if periodsPerYear <= 0 {
		return nil, domain.InvalidParameter(op, "periods_per_year", "must be positive, got %v", periodsPerYear)
	}
	in, err := prepare(op, aligned)
	if err != nil {
		return nil, err
	}
	w := make([]float64, len(in.symbols))
	for i, sym := range in.symbols {
		sd := math.Sqrt(in.cov.At(i, i))
		if !(sd > 0) {
			return nil, domain.InvalidParameter(op, sym, "zero volatility")
		}
		w[i] = 1 / sd
	}
	floats.Scale(1/floats.Sum(w), w)
	return in.allocation(MethodRiskParity, w, riskFreeRate, periodsPerYear), nil
}
