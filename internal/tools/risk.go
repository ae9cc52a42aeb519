package tools

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"montewalk/internal/domain"
	"montewalk/internal/marketdata"
	"montewalk/internal/montecarlo"
	"montewalk/internal/returns"
	"montewalk/internal/risk"
)

// VolatilityRequest selects the return history to measure.
type VolatilityRequest struct {
	Symbol   string `json:"symbol" validate:"required"`
	Interval string `json:"interval" default:"1d"`
	Period   string `json:"period" default:"1y"`
}

// VolatilityResponse reports annualized volatility.
type VolatilityResponse struct {
	Symbol         string  `json:"symbol"`
	Volatility     float64 `json:"annualized_volatility"`
	PeriodsPerYear float64 `json:"periods_per_year"`
	Observations   int     `json:"observations"`
}

// Volatility annualizes the sample standard deviation of log returns.
func (s *Service) Volatility(ctx context.Context, req VolatilityRequest) (*VolatilityResponse, error) {
	const op = "tools.volatility"
	symbol := marketdata.NormalizeSymbol(req.Symbol)
	iv, err := parseInterval(op, req.Interval)
	if err != nil {
		return nil, err
	}
	rs, err := s.returnsOf(ctx, op, symbol, iv, req.Period)
	if err != nil {
		return nil, err
	}
	ppy := s.periodsPerYear(symbol, iv)
	vol, err := risk.Volatility(rs.Values, ppy)
	if err != nil {
		return nil, err
	}
	return &VolatilityResponse{Symbol: symbol, Volatility: vol, PeriodsPerYear: ppy, Observations: rs.Len()}, nil
}

// VaRRequest parameterizes historical-simulation VaR. Confidence defaults to
// the configured level.
type VaRRequest struct {
	Symbol         string  `json:"symbol" validate:"required"`
	Confidence     float64 `json:"confidence" validate:"gte=0,lt=1"`
	PortfolioValue float64 `json:"portfolio_value" default:"10000" validate:"gt=0"`
	Period         string  `json:"period" default:"1y"`
}

// VaRResponse reports one-period VaR and expected shortfall in currency.
type VaRResponse struct {
	Symbol            string  `json:"symbol"`
	Confidence        float64 `json:"confidence"`
	PortfolioValue    float64 `json:"portfolio_value"`
	VaR               float64 `json:"var"`
	VaRPct            float64 `json:"var_pct"`
	ExpectedShortfall float64 `json:"expected_shortfall"`
	Observations      int     `json:"observations"`
}

// VaR computes historical VaR on daily log returns.
func (s *Service) VaR(ctx context.Context, req VaRRequest) (*VaRResponse, error) {
	const op = "tools.var"
	symbol := marketdata.NormalizeSymbol(req.Symbol)
	if req.Confidence == 0 {
		req.Confidence = s.cfg.Risk.VaRConfidence
	}
	rs, err := s.returnsOf(ctx, op, symbol, "1d", req.Period)
	if err != nil {
		return nil, err
	}
	v, err := risk.ValueAtRisk(rs.Values, req.Confidence, req.PortfolioValue)
	if err != nil {
		return nil, err
	}
	es, err := risk.ExpectedShortfall(rs.Values, req.Confidence, req.PortfolioValue)
	if err != nil {
		return nil, err
	}
	return &VaRResponse{
		Symbol:            symbol,
		Confidence:        req.Confidence,
		PortfolioValue:    req.PortfolioValue,
		VaR:               v,
		VaRPct:            v / req.PortfolioValue,
		ExpectedShortfall: es,
		Observations:      rs.Len(),
	}, nil
}

// DrawdownRequest selects the close history to scan.
type DrawdownRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	Period string `json:"period" default:"1y"`
}

// DrawdownResponse locates the largest decline.
type DrawdownResponse struct {
	Symbol      string    `json:"symbol"`
	MaxDrawdown float64   `json:"max_drawdown"`
	Peak        time.Time `json:"peak"`
	PeakPrice   float64   `json:"peak_price"`
	Trough      time.Time `json:"trough"`
	TroughPrice float64   `json:"trough_price"`
}

// MaxDrawdown scans daily closes for the largest peak-to-trough decline.
func (s *Service) MaxDrawdown(ctx context.Context, req DrawdownRequest) (*DrawdownResponse, error) {
	const op = "tools.max_drawdown"
	symbol := marketdata.NormalizeSymbol(req.Symbol)
	kept, err := s.cleanHistory(ctx, op, symbol, req.Period)
	if err != nil {
		return nil, err
	}
	dd, err := risk.MaxDrawdown(returns.Closes(kept))
	if err != nil {
		return nil, err
	}
	peak, trough := kept[dd.PeakIndex], kept[dd.TroughIndex]
	return &DrawdownResponse{
		Symbol:      symbol,
		MaxDrawdown: dd.Magnitude,
		Peak:        peak.Timestamp,
		PeakPrice:   peak.Close,
		Trough:      trough.Timestamp,
		TroughPrice: trough.Close,
	}, nil
}

// PortfolioRiskRequest parameterizes the paper-portfolio risk report.
type PortfolioRiskRequest struct {
	Confidence float64 `json:"confidence" validate:"gte=0,lt=1"`
	Period     string  `json:"period" default:"1y"`
}

// PortfolioRiskResponse pairs the report with the snapshot it describes.
type PortfolioRiskResponse struct {
	*risk.PortfolioReport
	Cash   float64   `json:"cash"`
	Equity float64   `json:"equity"`
	AsOf   time.Time `json:"as_of"`
}

// PortfolioRisk evaluates the current paper positions against their return
// history.
func (s *Service) PortfolioRisk(ctx context.Context, req PortfolioRiskRequest) (*PortfolioRiskResponse, error) {
	const op = "tools.portfolio_risk"
	if s.deps.Engine == nil {
		return nil, unavailable(op, "paper trading engine")
	}
	if req.Confidence == 0 {
		req.Confidence = s.cfg.Risk.VaRConfidence
	}
	snap, err := s.deps.Engine.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var symbols []string
	for _, p := range snap.Positions {
		if p.Qty != 0 {
			symbols = append(symbols, p.Symbol)
		}
	}
	if len(symbols) == 0 {
		return nil, domain.InsufficientData(op, "", "portfolio has no open positions")
	}
	aligned, err := s.aligned(ctx, op, symbols, req.Period)
	if err != nil {
		return nil, err
	}
	report, err := risk.PortfolioRisk(snap, aligned, risk.PortfolioOptions{
		Confidence:     req.Confidence,
		PeriodsPerYear: s.alignedPeriodsPerYear(symbols),
		RiskFreeRate:   s.cfg.Risk.RiskFreeRate,
	})
	if err != nil {
		return nil, err
	}
	return &PortfolioRiskResponse{PortfolioReport: report, Cash: snap.Cash, Equity: snap.Equity, AsOf: snap.AsOf}, nil
}

// MonteCarloRequest parameterizes a portfolio simulation. Drift, volatility
// and correlation are estimated from the symbols' daily history; zero
// counts take the configured defaults. Weights default to equal and must
// otherwise sum to one unless Normalize is set.
type MonteCarloRequest struct {
	Symbols      []string  `json:"symbols" validate:"required,min=1,max=50,unique,dive,required"`
	Weights      []float64 `json:"weights" validate:"omitempty,dive,gte=0"`
	Normalize    bool      `json:"normalize"`
	NumPaths     int       `json:"num_paths" validate:"gte=0,lte=1000000"`
	HorizonDays  int       `json:"horizon_days" validate:"gte=0,lte=2520"`
	InitialValue float64   `json:"initial_value" default:"10000" validate:"gt=0"`
	Percentiles  []float64 `json:"percentiles" validate:"omitempty,dive,gte=0,lte=100"`
	Seed         *uint64   `json:"seed"`
	Period       string    `json:"period" default:"1y"`
	IncludeBands bool      `json:"include_bands"`
}

// PercentileValue is one terminal-value percentile.
type PercentileValue struct {
	Level float64 `json:"level"`
	Value float64 `json:"value"`
}

// Band is the per-day value of one percentile level.
type Band struct {
	Level  float64   `json:"level"`
	Values []float64 `json:"values"`
}

// MonteCarloResponse summarizes a simulation. Result keeps the full paths
// for chart rendering and is not serialized.
type MonteCarloResponse struct {
	Symbols           []string           `json:"symbols"`
	Weights           []float64          `json:"weights"`
	Mu                []float64          `json:"mu"`
	Sigma             []float64          `json:"sigma"`
	NumPaths          int                `json:"num_paths"`
	HorizonDays       int                `json:"horizon_days"`
	InitialValue      float64            `json:"initial_value"`
	Mean              float64            `json:"mean"`
	StdDev            float64            `json:"std_dev"`
	ProbabilityOfLoss float64            `json:"probability_of_loss"`
	Percentiles       []PercentileValue  `json:"percentiles"`
	Bands             []Band             `json:"bands,omitempty"`
	Seed              uint64             `json:"seed"`
	Result            *montecarlo.Result `json:"-"`
}

// MonteCarlo estimates GBM parameters from history and simulates the
// weighted portfolio.
func (s *Service) MonteCarlo(ctx context.Context, req MonteCarloRequest) (*MonteCarloResponse, error) {
	const op = "tools.monte_carlo_simulation"

	symbols := make([]string, len(req.Symbols))
	for i, sym := range req.Symbols {
		symbols[i] = marketdata.NormalizeSymbol(sym)
	}
	weights := req.Weights
	switch {
	case len(weights) == 0:
		weights = make([]float64, len(symbols))
		for i := range weights {
			weights[i] = 1 / float64(len(symbols))
		}
	case len(weights) != len(symbols):
		return nil, domain.InvalidParameter(op, "weights", "got %d weights for %d symbols", len(weights), len(symbols))
	case req.Normalize:
		w, err := montecarlo.NormalizeWeights(weights)
		if err != nil {
			return nil, err
		}
		weights = w
	}

	numPaths, horizon := req.NumPaths, req.HorizonDays
	if numPaths == 0 {
		numPaths = s.cfg.MonteCarlo.Paths
	}
	if horizon == 0 {
		horizon = s.cfg.MonteCarlo.HorizonDays
	}
	if horizon > 0 && numPaths > montecarlo.MaxPathCells/(horizon+1) {
		return nil, domain.InvalidParameter(op, "num_paths", "%d paths over %d days exceed %d path values", numPaths, horizon, montecarlo.MaxPathCells)
	}

	ppy := s.alignedPeriodsPerYear(symbols)
	aligned, err := s.aligned(ctx, op, symbols, req.Period)
	if err != nil {
		return nil, err
	}
	est, err := montecarlo.EstimateParams(aligned, ppy)
	if err != nil {
		return nil, err
	}

	// Align sorts symbols; reorder the estimate to the caller's order.
	n := len(symbols)
	byName := make(map[string]int, n)
	for i, sym := range est.Symbols {
		byName[sym] = i
	}
	mu, sigma := make([]float64, n), make([]float64, n)
	data := make([]float64, n*n)
	for i, a := range symbols {
		ia := byName[a]
		mu[i], sigma[i] = est.Mu[ia], est.Sigma[ia]
		for j, b := range symbols {
			data[i*n+j] = est.Correlation.At(ia, byName[b])
		}
	}
	corr := mat.NewSymDense(n, data)

	p := montecarlo.Params{
		Mu:             mu,
		Sigma:          sigma,
		Correlation:    corr,
		Weights:        weights,
		NumPaths:       numPaths,
		HorizonDays:    horizon,
		PeriodsPerYear: ppy,
		InitialValue:   req.InitialValue,
		Percentiles:    req.Percentiles,
		Seed:           req.Seed,
		Workers:        s.cfg.MonteCarlo.Workers,
	}
	if len(p.Percentiles) == 0 {
		p.Percentiles = s.cfg.MonteCarlo.Percentiles
	}

	res, err := montecarlo.Simulate(ctx, p)
	if err != nil {
		return nil, err
	}
	s.deps.Metrics.AddSimulatedPaths(p.NumPaths)

	out := &MonteCarloResponse{
		Symbols:           symbols,
		Weights:           weights,
		Mu:                mu,
		Sigma:             sigma,
		NumPaths:          p.NumPaths,
		HorizonDays:       p.HorizonDays,
		InitialValue:      res.Initial,
		Mean:              res.Mean,
		StdDev:            res.StdDev,
		ProbabilityOfLoss: res.ProbLoss,
		Seed:              res.Seed,
		Result:            res,
	}
	for _, lvl := range res.Levels() {
		out.Percentiles = append(out.Percentiles, PercentileValue{Level: lvl, Value: res.Percentiles[lvl]})
		if req.IncludeBands {
			out.Bands = append(out.Bands, Band{Level: lvl, Values: res.Bands[lvl]})
		}
	}
	return out, nil
}
