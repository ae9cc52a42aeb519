package risk

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"montewalk/internal/domain"
	"montewalk/internal/returns"
)

// PortfolioOptions parameterize PortfolioRisk.
type PortfolioOptions struct {
	Confidence     float64
	PeriodsPerYear float64
	RiskFreeRate   float64
}

// PortfolioReport summarizes the risk of a portfolio snapshot.
type PortfolioReport struct {
	Symbols           []string           `json:"symbols"`
	Weights           map[string]float64 `json:"weights"`
	GrossExposure     float64            `json:"gross_exposure"`
	Volatility        float64            `json:"annualized_volatility"`
	VaR               float64            `json:"var"`
	ExpectedShortfall float64            `json:"expected_shortfall"`
	SharpeRatio       float64            `json:"sharpe_ratio"`
	Correlation       [][]float64        `json:"correlation,omitempty"`
	RiskContribution  map[string]float64 `json:"risk_contribution"`
	Observations      int                `json:"observations"`
}

// PortfolioRisk weights each position by market value over gross exposure
// (shorts weigh negative), then reports annualized volatility sqrt(w'Σw),
// historical VaR and expected shortfall of the weighted return series scaled
// by gross exposure, the correlation matrix and each position's share of
// portfolio variance. aligned must contain every position's symbol.
func PortfolioRisk(snap domain.PortfolioSnapshot, aligned returns.Aligned, opts PortfolioOptions) (*PortfolioReport, error) {
	const op = "risk.PortfolioRisk"

	var positions []domain.Position
	for _, p := range snap.Positions {
		if p.Qty != 0 {
			positions = append(positions, p)
		}
	}
	if len(positions) == 0 {
		return nil, domain.InsufficientData(op, "", "portfolio has no open positions")
	}

	symbols := make([]string, len(positions))
	values := make([]float64, len(positions))
	cols := make([][]float64, len(positions))
	var gross float64
	for i, p := range positions {
		mv := p.MarketValue
		if mv == 0 {
			mv = p.Qty * p.CurrentPrice
		}
		if mv == 0 {
			mv = p.Qty * p.AvgCost
		}
		symbols[i] = strings.ToUpper(p.Symbol)
		values[i] = mv
		gross += math.Abs(mv)

		cols[i] = aligned.Column(symbols[i])
		if cols[i] == nil {
			return nil, domain.InsufficientData(op, symbols[i], "no return history for position")
		}
	}
	if gross <= 0 {
		return nil, domain.InvalidParameter(op, "positions", "gross exposure is zero")
	}

	w := make([]float64, len(values))
	weights := make(map[string]float64, len(values))
	for i, v := range values {
		w[i] = v / gross
		weights[symbols[i]] = w[i]
	}

	cov, err := CovarianceMatrix(cols, symbols...)
	if err != nil {
		return nil, err
	}
	wv := mat.NewVecDense(len(w), w)
	var sw mat.VecDense
	sw.MulVec(cov, wv)
	variance := mat.Dot(wv, &sw)

	contrib := make(map[string]float64, len(w))
	for i, s := range symbols {
		if variance > 0 {
			contrib[s] = w[i] * sw.AtVec(i) / variance
		} else {
			contrib[s] = 0
		}
	}

	port := make([]float64, len(aligned.Index))
	for t := range port {
		for i := range w {
			port[t] += w[i] * cols[i][t]
		}
	}

	report := &PortfolioReport{
		Symbols:          symbols,
		Weights:          weights,
		GrossExposure:    gross,
		Volatility:       math.Sqrt(math.Max(variance, 0)) * math.Sqrt(opts.PeriodsPerYear),
		RiskContribution: contrib,
		Observations:     len(port),
	}
	if report.VaR, err = ValueAtRisk(port, opts.Confidence, gross); err != nil {
		return nil, err
	}
	if report.ExpectedShortfall, err = ExpectedShortfall(port, opts.Confidence, gross); err != nil {
		return nil, err
	}
	if report.SharpeRatio, err = SharpeRatio(port, opts.RiskFreeRate, opts.PeriodsPerYear); err != nil {
		return nil, err
	}
	if len(cols) > 1 {
		corr, err := CorrelationMatrix(cols, symbols...)
		if err != nil {
			return nil, err
		}
		report.Correlation = Rows(corr)
	}
	return report, nil
}
