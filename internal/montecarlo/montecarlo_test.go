package montecarlo

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"montewalk/internal/domain"
	"montewalk/internal/returns"
)

func seedPtr(s uint64) *uint64 { return &s }

func TestCholeskyPositiveDefinite(t *testing.T) {
	a := mat.NewSymDense(3, []float64{
		4, 2, 0.4,
		2, 5, 1,
		0.4, 1, 3,
	})
	l, err := Cholesky(a)
	require.NoError(t, err)

	var got mat.Dense
	got.Mul(l, l.T())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, a.At(i, j), got.At(i, j), 1e-12)
		}
	}
	assert.Zero(t, l.At(0, 1), "upper triangle is zero")
}

func TestCholeskySemidefinite(t *testing.T) {
	a := mat.NewSymDense(2, []float64{0.04, 0.04, 0.04, 0.04})
	l, err := Cholesky(a)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, l.At(0, 0), 1e-15)
	assert.InDelta(t, 0.2, l.At(1, 0), 1e-15)
	assert.Zero(t, l.At(1, 1))
}

func TestCholeskyRejectsIndefinite(t *testing.T) {
	tests := []struct {
		name string
		a    *mat.SymDense
	}{
		{"negative pivot", mat.NewSymDense(2, []float64{1, 2, 2, 1})},
		{"zero pivot with nonzero residual", mat.NewSymDense(3, []float64{
			1, 1, 0,
			1, 1, 1,
			0, 1, 1,
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Cholesky(tt.a)
			require.ErrorIs(t, err, domain.ErrNonPositiveDefinite)
			assert.Equal(t, "NonPositiveDefiniteError", domain.KindName(err))
		})
	}
}

func TestSimulateRejectsIndefiniteCorrelation(t *testing.T) {
	_, err := Simulate(context.Background(), Params{
		Mu:      []float64{0.05, 0.05, 0.05},
		Sigma:   []float64{0.2, 0.2, 0.2},
		Weights: []float64{0.4, 0.3, 0.3},
		Correlation: mat.NewSymDense(3, []float64{
			1, 1, 0,
			1, 1, 1,
			0, 1, 1,
		}),
		NumPaths:    10,
		HorizonDays: 5,
		Seed:        seedPtr(1),
	})
	require.ErrorIs(t, err, domain.ErrNonPositiveDefinite)
}

func TestSimulateShapeAndDeterminism(t *testing.T) {
	p := Params{
		Mu:           []float64{0.08, 0.05},
		Sigma:        []float64{0.2, 0.1},
		Correlation:  mat.NewSymDense(2, []float64{1, 0.3, 0.3, 1}),
		Weights:      []float64{0.6, 0.4},
		NumPaths:     500,
		HorizonDays:  20,
		InitialValue: 10000,
		Seed:         seedPtr(42),
		Workers:      4,
	}
	a, err := Simulate(context.Background(), p)
	require.NoError(t, err)
	b, err := Simulate(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, a.Paths, 500)
	for _, path := range a.Paths {
		require.Len(t, path, 21)
		assert.Equal(t, 10000.0, path[0])
	}
	assert.Equal(t, a.Paths, b.Paths)
	assert.Equal(t, a.Percentiles, b.Percentiles)
	assert.Equal(t, uint64(42), a.Seed)
	assert.Equal(t, []float64{5, 50, 95}, a.Levels())

	p5, p50, p95 := a.Percentiles[5], a.Percentiles[50], a.Percentiles[95]
	assert.Less(t, p5, p50)
	assert.Less(t, p50, p95)
	require.Len(t, a.Bands[50], 21)
	assert.Equal(t, p95, a.Bands[95][20])

	p.Seed = seedPtr(43)
	c, err := Simulate(context.Background(), p)
	require.NoError(t, err)
	assert.NotEqual(t, a.Terminal, c.Terminal)
}

func TestSimulateIndependentOfWorkerCount(t *testing.T) {
	p := Params{
		Mu:          []float64{0.08, 0.05},
		Sigma:       []float64{0.2, 0.1},
		Correlation: mat.NewSymDense(2, []float64{1, 0.3, 0.3, 1}),
		Weights:     []float64{0.6, 0.4},
		NumPaths:    257,
		HorizonDays: 10,
		Seed:        seedPtr(42),
	}
	p.Workers = 1
	one, err := Simulate(context.Background(), p)
	require.NoError(t, err)
	p.Workers = 4
	four, err := Simulate(context.Background(), p)
	require.NoError(t, err)
	p.Workers = 0
	auto, err := Simulate(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, one.Paths, four.Paths)
	assert.Equal(t, one.Paths, auto.Paths)
	assert.Equal(t, one.Percentiles, four.Percentiles)
}

func TestSimulateSingleAssetLogMean(t *testing.T) {
	if testing.Short() {
		t.Skip("large simulation")
	}
	res, err := Simulate(context.Background(), Params{
		Mu:          []float64{0},
		Sigma:       []float64{0.2},
		Weights:     []float64{1},
		NumPaths:    50000,
		HorizonDays: 252,
		Seed:        seedPtr(7),
	})
	require.NoError(t, err)

	logs := make([]float64, len(res.Terminal))
	for i, v := range res.Terminal {
		logs[i] = math.Log(v)
	}
	// E[ln S_T] = (mu - sigma^2/2) T = -0.02.
	assert.InDelta(t, -0.02, stat.Mean(logs, nil), 0.01)
	assert.InDelta(t, 0.2, stat.StdDev(logs, nil), 0.01)
}

func TestSimulatePerfectCorrelationSharesShocks(t *testing.T) {
	base := Params{
		Mu:          []float64{0.05, 0.05},
		Sigma:       []float64{0.3, 0.3},
		Correlation: mat.NewSymDense(2, []float64{1, 1, 1, 1}),
		NumPaths:    64,
		HorizonDays: 30,
		Seed:        seedPtr(99),
		Workers:     2,
	}
	first, second := base, base
	first.Weights = []float64{1, 0}
	second.Weights = []float64{0, 1}

	a, err := Simulate(context.Background(), first)
	require.NoError(t, err)
	b, err := Simulate(context.Background(), second)
	require.NoError(t, err)
	for i := range a.Paths {
		for tt := range a.Paths[i] {
			assert.InDelta(t, a.Paths[i][tt], b.Paths[i][tt], 1e-12)
		}
	}
}

func TestSimulateZeroVolatilityIsDeterministicDrift(t *testing.T) {
	res, err := Simulate(context.Background(), Params{
		Mu:          []float64{0.1},
		Sigma:       []float64{0},
		Weights:     []float64{1},
		NumPaths:    10,
		HorizonDays: 252,
		Seed:        seedPtr(1),
	})
	require.NoError(t, err)
	for _, v := range res.Terminal {
		assert.InDelta(t, math.Exp(0.1), v, 1e-9)
	}
	assert.Zero(t, res.ProbLoss)
}

func TestSimulateInvalidParams(t *testing.T) {
	valid := func() Params {
		return Params{
			Mu: []float64{0.05}, Sigma: []float64{0.2}, Weights: []float64{1},
			NumPaths: 10, HorizonDays: 5, Seed: seedPtr(1),
		}
	}
	tests := map[string]func(p *Params){
		"zero paths":        func(p *Params) { p.NumPaths = 0 },
		"negative horizon":  func(p *Params) { p.HorizonDays = -1 },
		"weights sum":       func(p *Params) { p.Weights = []float64{0.9} },
		"negative weight":   func(p *Params) { p.Mu, p.Sigma, p.Weights = []float64{0, 0}, []float64{0.1, 0.1}, []float64{1.5, -0.5} },
		"nan weight":        func(p *Params) { p.Weights = []float64{math.NaN()} },
		"length mismatch":   func(p *Params) { p.Sigma = []float64{0.2, 0.3} },
		"negative sigma":    func(p *Params) { p.Sigma = []float64{-0.2} },
		"infinite mu":       func(p *Params) { p.Mu = []float64{math.Inf(1)} },
		"bad percentile":    func(p *Params) { p.Percentiles = []float64{101} },
		"corr wrong size":   func(p *Params) { p.Correlation = mat.NewSymDense(2, []float64{1, 0, 0, 1}) },
		"negative periods":  func(p *Params) { p.PeriodsPerYear = -252 },
		"negative initial":  func(p *Params) { p.InitialValue = -1 },
		"too many cells":    func(p *Params) { p.NumPaths, p.HorizonDays = 1_000_000, 2520 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := valid()
			mutate(&p)
			_, err := Simulate(context.Background(), p)
			assert.ErrorIs(t, err, domain.ErrInvalidParameter)
		})
	}

	p := valid()
	p.Mu, p.Sigma, p.Weights = []float64{0, 0}, []float64{0.1, 0.1}, []float64{0.5, 0.5}
	p.Correlation = mat.NewSymDense(2, []float64{1, 0.5, 0.5, 1})
	p.Correlation.SetSym(0, 1, 1.5)
	_, err := Simulate(context.Background(), p)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestSimulateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Simulate(ctx, Params{
		Mu: []float64{0}, Sigma: []float64{0.1}, Weights: []float64{1},
		NumPaths: 100, HorizonDays: 5, Seed: seedPtr(1),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeWeights(t *testing.T) {
	w, err := NormalizeWeights([]float64{2, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25, 0.25}, w)

	_, err = NormalizeWeights([]float64{0, 0})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	_, err = NormalizeWeights([]float64{1, -1})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestEstimateParams(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	idx := []time.Time{t0, t0.AddDate(0, 0, 1), t0.AddDate(0, 0, 2), t0.AddDate(0, 0, 3)}
	aligned := returns.Aligned{
		Symbols: []string{"AAA", "BBB"},
		Index:   idx,
		Values: [][]float64{
			{0.01, -0.01, 0.02, 0.0},
			{0.02, -0.02, 0.04, 0.0},
		},
	}
	est, err := EstimateParams(aligned, 252)
	require.NoError(t, err)

	mean, sd := stat.MeanStdDev(aligned.Values[0], nil)
	sigma := sd * math.Sqrt(252)
	assert.InDelta(t, sigma, est.Sigma[0], 1e-12)
	assert.InDelta(t, mean*252+0.5*sigma*sigma, est.Mu[0], 1e-12)
	assert.InDelta(t, 1, est.Correlation.At(0, 1), 1e-12)

	// Perfect correlation still simulates.
	_, err = Simulate(context.Background(), Params{
		Mu: est.Mu, Sigma: est.Sigma, Correlation: est.Correlation, Weights: []float64{0.5, 0.5},
		NumPaths: 10, HorizonDays: 5, Seed: seedPtr(3),
	})
	require.NoError(t, err)

	_, err = EstimateParams(aligned, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}
