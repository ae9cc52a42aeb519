package montecarlo

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"montewalk/internal/domain"
	"montewalk/internal/returns"
	"montewalk/internal/risk"
)

// Estimate holds annualized GBM parameters fitted from history.
type Estimate struct {
	Symbols     []string
	Mu          []float64
	Sigma       []float64
	Correlation *mat.SymDense
}

// EstimateParams fits per-asset drift and volatility from aligned log
// returns: sigma = stdev*sqrt(ppy) and mu = mean*ppy + sigma^2/2, the drift
// whose GBM reproduces the observed mean log return.
func EstimateParams(aligned returns.Aligned, periodsPerYear float64) (*Estimate, error) {
	const op = "montecarlo.EstimateParams"
	if periodsPerYear <= 0 {
		return nil, domain.InvalidParameter(op, "periods_per_year", "must be positive, got %v", periodsPerYear)
	}
	k := len(aligned.Symbols)
	if k == 0 {
		return nil, domain.InsufficientData(op, "", "no assets")
	}

	est := &Estimate{
		Symbols: aligned.Symbols,
		Mu:      make([]float64, k),
		Sigma:   make([]float64, k),
	}
	for i, col := range aligned.Values {
		if len(col) < 2 {
			return nil, domain.InsufficientData(op, aligned.Symbols[i], "need at least 2 returns, got %d", len(col))
		}
		mean, sd := stat.MeanStdDev(col, nil)
		est.Sigma[i] = sd * math.Sqrt(periodsPerYear)
		est.Mu[i] = mean*periodsPerYear + 0.5*est.Sigma[i]*est.Sigma[i]
	}

	if k == 1 {
		est.Correlation = mat.NewSymDense(1, []float64{1})
		return est, nil
	}
	corr, err := risk.CorrelationMatrix(aligned.Values, aligned.Symbols...)
	if err != nil {
		return nil, err
	}
	est.Correlation = corr
	return est, nil
}
