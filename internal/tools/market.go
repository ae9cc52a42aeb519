package tools

import (
	"context"

	"montewalk/internal/domain"
	"montewalk/internal/marketdata"
	"montewalk/internal/returns"
	"montewalk/internal/util"
)

// GetPriceRequest selects bars by interval and lookback period.
type GetPriceRequest struct {
	Symbol   string `json:"symbol" validate:"required"`
	Interval string `json:"interval" default:"1d"`
	Period   string `json:"period" default:"1y"`
	Limit    int    `json:"limit" validate:"gte=0"`
}

// PriceResponse carries bars in ascending time order.
type PriceResponse struct {
	Symbol   string       `json:"symbol"`
	Interval string       `json:"interval"`
	Period   string       `json:"period"`
	Count    int          `json:"count"`
	Bars     []domain.Bar `json:"bars"`
}

// GetPrice returns historical bars; Limit keeps only the most recent ones.
func (s *Service) GetPrice(ctx context.Context, req GetPriceRequest) (*PriceResponse, error) {
	symbol := marketdata.NormalizeSymbol(req.Symbol)
	iv, err := parseInterval("tools.get_price", req.Interval)
	if err != nil {
		return nil, err
	}
	bars, err := s.history(ctx, "tools.get_price", symbol, iv, req.Period)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(bars) > req.Limit {
		bars = bars[len(bars)-req.Limit:]
	}
	return &PriceResponse{
		Symbol:   symbol,
		Interval: string(iv),
		Period:   req.Period,
		Count:    len(bars),
		Bars:     bars,
	}, nil
}

// SymbolRequest names a single symbol.
type SymbolRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

// GetFundamentals returns the provider's reference data, completed with
// 52-week price statistics when the provider left them empty.
func (s *Service) GetFundamentals(ctx context.Context, req SymbolRequest) (*marketdata.Fundamentals, error) {
	symbol := marketdata.NormalizeSymbol(req.Symbol)
	f, err := s.deps.Provider.GetFundamentals(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if f.LastClose == 0 {
		bars, err := s.deps.Provider.GetBars(ctx, symbol, "1d", "1y")
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("fundamentals without price statistics")
		} else {
			marketdata.Summarize(f, bars, s.now())
		}
	}
	return f, nil
}

func parseInterval(op, s string) (util.Interval, error) {
	iv, err := util.ParseInterval(s)
	if err != nil {
		return "", domain.InvalidParameter(op, "interval", "%v", err)
	}
	return iv, nil
}

// history fetches bars and rejects unsupported periods before calling out.
func (s *Service) history(ctx context.Context, op, symbol string, iv util.Interval, period string) ([]domain.Bar, error) {
	if _, err := util.PeriodStart(period, s.now()); err != nil {
		return nil, domain.InvalidParameter(op, "period", "%v", err)
	}
	return s.deps.Provider.GetBars(ctx, symbol, iv, period)
}

// returnsOf fetches history for symbol and builds its log-return series.
func (s *Service) returnsOf(ctx context.Context, op, symbol string, iv util.Interval, period string) (returns.Series, error) {
	bars, err := s.history(ctx, op, symbol, iv, period)
	if err != nil {
		return returns.Series{}, err
	}
	for i := range bars {
		bars[i].Symbol = symbol
	}
	return returns.Build(bars)
}

// aligned builds and aligns the daily return series of symbols.
func (s *Service) aligned(ctx context.Context, op string, symbols []string, period string) (returns.Aligned, error) {
	series := make(map[string]returns.Series, len(symbols))
	for _, sym := range symbols {
		sym = marketdata.NormalizeSymbol(sym)
		rs, err := s.returnsOf(ctx, op, sym, "1d", period)
		if err != nil {
			return returns.Aligned{}, err
		}
		series[sym] = rs
	}
	return returns.Align(series)
}

// periodsPerYear annualizes bars of iv for symbol. Daily US bars use the
// configured factor.
func (s *Service) periodsPerYear(symbol string, iv util.Interval) float64 {
	market := marketdata.MarketOf(symbol)
	if market == domain.MarketUS && iv == "1d" {
		return s.cfg.Risk.PeriodsPerYear
	}
	return util.NewTradingCalendar(market).PeriodsPerYear(iv)
}

// alignedPeriodsPerYear annualizes an aligned daily panel: crypto-only
// panels trade every day, anything else aligns to equity sessions.
func (s *Service) alignedPeriodsPerYear(symbols []string) float64 {
	for _, sym := range symbols {
		if marketdata.MarketOf(sym) != domain.MarketCrypto {
			return s.cfg.Risk.PeriodsPerYear
		}
	}
	return util.NewTradingCalendar(domain.MarketCrypto).DaysPerYear()
}
