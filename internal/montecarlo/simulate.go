// Package montecarlo simulates correlated geometric Brownian motion price
// paths for a buy-and-hold portfolio and summarizes the terminal
// distribution.
package montecarlo

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"montewalk/internal/domain"
	"montewalk/internal/risk"
)

const weightTolerance = 1e-6

// blockSize is the number of consecutive paths sharing one RNG stream.
const blockSize = 256

// MaxPathCells bounds NumPaths*(HorizonDays+1), the number of stored path
// values of one simulation.
const MaxPathCells = 50_000_000

// DefaultPercentiles are reported when Params.Percentiles is empty.
var DefaultPercentiles = []float64{5, 50, 95}

// Params configure one simulation. Mu and Sigma are annualized per asset.
// A nil Correlation means uncorrelated assets.
type Params struct {
	Mu             []float64
	Sigma          []float64
	Correlation    *mat.SymDense
	Weights        []float64
	NumPaths       int
	HorizonDays    int
	PeriodsPerYear float64
	InitialValue   float64
	Percentiles    []float64
	Seed           *uint64
	Workers        int
}

// Result is the outcome of Simulate. It is not modified after return.
type Result struct {
	Paths       [][]float64           `json:"-"`
	Terminal    []float64             `json:"-"`
	Percentiles map[float64]float64   `json:"-"`
	Bands       map[float64][]float64 `json:"-"`
	Mean        float64               `json:"mean"`
	StdDev      float64               `json:"std_dev"`
	ProbLoss    float64               `json:"probability_of_loss"`
	Initial     float64               `json:"initial_value"`
	Seed        uint64                `json:"seed"`
	Workers     int                   `json:"workers"`

	levels []float64
}

// Levels returns the percentile levels in ascending order.
func (r *Result) Levels() []float64 { return r.levels }

func (p *Params) applyDefaults() {
	if p.PeriodsPerYear == 0 {
		p.PeriodsPerYear = 252
	}
	if p.InitialValue == 0 {
		p.InitialValue = 1
	}
	if len(p.Percentiles) == 0 {
		p.Percentiles = DefaultPercentiles
	}
	if p.Workers <= 0 {
		p.Workers = runtime.NumCPU()
	}
	if p.Workers > p.NumPaths {
		p.Workers = p.NumPaths
	}
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func (p *Params) validate() error {
	const op = "montecarlo.Simulate"
	k := len(p.Mu)
	switch {
	case k == 0:
		return domain.InvalidParameter(op, "mu", "no assets")
	case len(p.Sigma) != k:
		return domain.InvalidParameter(op, "sigma", "has %d entries for %d assets", len(p.Sigma), k)
	case len(p.Weights) != k:
		return domain.InvalidParameter(op, "weights", "has %d entries for %d assets", len(p.Weights), k)
	case p.NumPaths <= 0:
		return domain.InvalidParameter(op, "num_paths", "must be positive, got %d", p.NumPaths)
	case p.HorizonDays <= 0:
		return domain.InvalidParameter(op, "horizon_days", "must be positive, got %d", p.HorizonDays)
	case p.NumPaths > MaxPathCells/(p.HorizonDays+1):
		return domain.InvalidParameter(op, "num_paths", "%d paths over %d days exceed %d path values", p.NumPaths, p.HorizonDays, MaxPathCells)
	case !(p.PeriodsPerYear > 0) || !finite(p.PeriodsPerYear):
		return domain.InvalidParameter(op, "periods_per_year", "must be positive, got %v", p.PeriodsPerYear)
	case !(p.InitialValue > 0) || !finite(p.InitialValue):
		return domain.InvalidParameter(op, "initial_value", "must be positive, got %v", p.InitialValue)
	}
	for i := 0; i < k; i++ {
		if !finite(p.Mu[i]) {
			return domain.InvalidParameter(op, "mu", "asset %d drift is not finite", i)
		}
		if !finite(p.Sigma[i]) || p.Sigma[i] < 0 {
			return domain.InvalidParameter(op, "sigma", "asset %d volatility %v must be finite and non-negative", i, p.Sigma[i])
		}
	}
	if err := checkWeights(op, p.Weights); err != nil {
		return err
	}
	for _, q := range p.Percentiles {
		if q < 0 || q > 100 || !finite(q) {
			return domain.InvalidParameter(op, "percentiles", "level %v outside [0,100]", q)
		}
	}
	if c := p.Correlation; c != nil {
		if c.SymmetricDim() != k {
			return domain.InvalidParameter(op, "correlation", "is %dx%d for %d assets", c.SymmetricDim(), c.SymmetricDim(), k)
		}
		for i := 0; i < k; i++ {
			if math.Abs(c.At(i, i)-1) > 1e-9 {
				return domain.InvalidParameter(op, "correlation", "diagonal entry %d is %v", i, c.At(i, i))
			}
			for j := 0; j < i; j++ {
				if v := c.At(i, j); !finite(v) || v < -1-1e-9 || v > 1+1e-9 {
					return domain.InvalidParameter(op, "correlation", "entry (%d,%d) is %v", i, j, v)
				}
			}
		}
	}
	return nil
}

func checkWeights(op string, w []float64) error {
	var sum float64
	for i, x := range w {
		if !finite(x) || x < 0 {
			return domain.InvalidParameter(op, "weights", "weight %d is %v, must be finite and non-negative", i, x)
		}
		sum += x
	}
	if math.Abs(sum-1) > weightTolerance {
		return domain.InvalidParameter(op, "weights", "sum to %v, want 1", sum)
	}
	return nil
}

// NormalizeWeights scales non-negative weights to sum to 1.
func NormalizeWeights(w []float64) ([]float64, error) {
	const op = "montecarlo.NormalizeWeights"
	var sum float64
	for i, x := range w {
		if !finite(x) || x < 0 {
			return nil, domain.InvalidParameter(op, "weights", "weight %d is %v, must be finite and non-negative", i, x)
		}
		sum += x
	}
	if sum <= 0 {
		return nil, domain.InvalidParameter(op, "weights", "sum to zero")
	}
	out := make([]float64, len(w))
	for i, x := range w {
		out[i] = x / sum
	}
	return out, nil
}

// Simulate runs NumPaths correlated GBM trajectories over HorizonDays steps.
// Paths are grouped into blocks of blockSize; block b draws every path from
// one PCG stream seeded (seed, b) and workers take blocks in stride, so a
// seeded result does not depend on the worker count.
func Simulate(ctx context.Context, p Params) (*Result, error) {
	p.applyDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}

	k := len(p.Mu)
	corr := p.Correlation
	if corr == nil {
		corr = mat.NewSymDense(k, nil)
		for i := 0; i < k; i++ {
			corr.SetSym(i, i, 1)
		}
	}
	cov, err := risk.CovarianceFromCorrelation(p.Sigma, corr)
	if err != nil {
		return nil, err
	}
	chol, err := Cholesky(cov)
	if err != nil {
		return nil, err
	}

	seed := uint64(time.Now().UnixNano())
	if p.Seed != nil {
		seed = *p.Seed
	}

	dt := 1 / p.PeriodsPerYear
	sqrtDt := math.Sqrt(dt)
	drift := make([]float64, k)
	for i := range drift {
		drift[i] = (p.Mu[i] - 0.5*p.Sigma[i]*p.Sigma[i]) * dt
	}
	// Dense copy of L for the hot loop.
	l := make([]float64, k*k)
	for i := 0; i < k; i++ {
		for j := 0; j <= i; j++ {
			l[i*k+j] = chol.At(i, j)
		}
	}

	steps := p.HorizonDays + 1
	backing := make([]float64, p.NumPaths*steps)
	paths := make([][]float64, p.NumPaths)
	for i := range paths {
		paths[i] = backing[i*steps : (i+1)*steps : (i+1)*steps]
	}

	blocks := (p.NumPaths + blockSize - 1) / blockSize
	workers := min(p.Workers, blocks)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			z := make([]float64, k)
			prices := make([]float64, k)
			for blk := w; blk < blocks; blk += workers {
				if err := ctx.Err(); err != nil {
					errs[w] = err
					return
				}
				rng := rand.New(rand.NewPCG(seed, uint64(blk)))
				hi := min((blk+1)*blockSize, p.NumPaths)
				for n := blk * blockSize; n < hi; n++ {
					path := paths[n]
					for i := range prices {
						prices[i] = 1
					}
					path[0] = p.InitialValue
					for t := 1; t < steps; t++ {
						for i := range z {
							z[i] = rng.NormFloat64()
						}
						var value float64
						for i := 0; i < k; i++ {
							var shock float64
							row := l[i*k : i*k+i+1]
							for j, lij := range row {
								shock += lij * z[j]
							}
							prices[i] *= math.Exp(drift[i] + shock*sqrtDt)
							value += p.Weights[i] * prices[i]
						}
						path[t] = p.InitialValue * value
					}
				}
			}
		}(w)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return summarize(paths, p, seed), nil
}

func summarize(paths [][]float64, p Params, seed uint64) *Result {
	n := len(paths)
	steps := p.HorizonDays + 1

	levels := append([]float64(nil), p.Percentiles...)
	sort.Float64s(levels)

	res := &Result{
		Paths:       paths,
		Terminal:    make([]float64, n),
		Percentiles: make(map[float64]float64, len(levels)),
		Bands:       make(map[float64][]float64, len(levels)),
		Initial:     p.InitialValue,
		Seed:        seed,
		Workers:     p.Workers,
		levels:      levels,
	}

	var sum, losses float64
	for i, path := range paths {
		v := path[steps-1]
		res.Terminal[i] = v
		sum += v
		if v < p.InitialValue {
			losses++
		}
	}
	res.Mean = sum / float64(n)
	res.ProbLoss = losses / float64(n)
	var ss float64
	for _, v := range res.Terminal {
		ss += (v - res.Mean) * (v - res.Mean)
	}
	if n > 1 {
		res.StdDev = math.Sqrt(ss / float64(n-1))
	}

	for _, q := range levels {
		res.Bands[q] = make([]float64, steps)
	}
	col := make([]float64, n)
	for t := 0; t < steps; t++ {
		for i, path := range paths {
			col[i] = path[t]
		}
		sort.Float64s(col)
		for _, q := range levels {
			res.Bands[q][t] = risk.PercentileSorted(col, q/100)
		}
	}
	for _, q := range levels {
		res.Percentiles[q] = res.Bands[q][steps-1]
	}
	return res
}
