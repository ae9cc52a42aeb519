package tools

import (
	"context"
	"strconv"
	"strings"
	"time"

	"montewalk/internal/domain"
	"montewalk/internal/indicator"
	"montewalk/internal/marketdata"
	"montewalk/internal/returns"
)

// SummaryStrategyID tags signals persisted by get_technical_summary.
const SummaryStrategyID = "technical_summary"

// IndicatorsRequest names the indicators to compute, optionally with a
// period suffix such as "SMA_50".
type IndicatorsRequest struct {
	Symbol     string   `json:"symbol" validate:"required"`
	Indicators []string `json:"indicators" default:"[\"RSI\",\"MACD\"]" validate:"min=1,dive,required"`
	Period     string   `json:"period" default:"1y"`
	Tail       int      `json:"tail" default:"10" validate:"gte=0"`
}

// IndicatorsResponse is the last Tail rows of the indicator table; a Tail of
// zero returns every row.
type IndicatorsResponse struct {
	Symbol string          `json:"symbol"`
	Table  indicator.Table `json:"table"`
}

// ComputeIndicators evaluates named indicators over daily closes.
func (s *Service) ComputeIndicators(ctx context.Context, req IndicatorsRequest) (*IndicatorsResponse, error) {
	const op = "tools.compute_indicators"
	symbol := marketdata.NormalizeSymbol(req.Symbol)
	bars, err := s.cleanHistory(ctx, op, symbol, req.Period)
	if err != nil {
		return nil, err
	}
	t, err := indicator.Compute(bars, req.Indicators)
	if err != nil {
		return nil, err
	}
	return &IndicatorsResponse{Symbol: symbol, Table: t.Tail(req.Tail)}, nil
}

// RollingStatsRequest parameterizes rolling statistics of closes.
type RollingStatsRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	Window int    `json:"window" default:"20" validate:"gte=2"`
	Period string `json:"period" default:"1y"`
	Tail   int    `json:"tail" default:"10" validate:"gte=0"`
}

// RollingStatsResponse carries the rolling mean and standard deviation.
type RollingStatsResponse struct {
	Symbol     string           `json:"symbol"`
	Window     int              `json:"window"`
	Timestamps []time.Time      `json:"timestamps"`
	Mean       indicator.Values `json:"mean"`
	StdDev     indicator.Values `json:"std_dev"`
}

// RollingStats computes the rolling mean and sample standard deviation of
// daily closes.
func (s *Service) RollingStats(ctx context.Context, req RollingStatsRequest) (*RollingStatsResponse, error) {
	const op = "tools.rolling_stats"
	symbol := marketdata.NormalizeSymbol(req.Symbol)
	bars, err := s.cleanHistory(ctx, op, symbol, req.Period)
	if err != nil {
		return nil, err
	}
	rs, err := indicator.RollingStats(returns.Closes(bars), req.Window)
	if err != nil {
		return nil, err
	}
	out := &RollingStatsResponse{Symbol: symbol, Window: req.Window, Mean: rs.Mean, StdDev: rs.StdDev}
	out.Timestamps = make([]time.Time, len(bars))
	for i, b := range bars {
		out.Timestamps[i] = b.Timestamp
	}
	if n := req.Tail; n > 0 && n < len(bars) {
		from := len(bars) - n
		out.Timestamps, out.Mean, out.StdDev = out.Timestamps[from:], out.Mean[from:], out.StdDev[from:]
	}
	return out, nil
}

// SummaryRequest selects the history the composite verdict is scored on.
// Two years covers the 200-day average.
type SummaryRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	Period string `json:"period" default:"2y"`
}

// SummaryResponse is the verdict plus the id of the persisted signal.
type SummaryResponse struct {
	Symbol string `json:"symbol"`
	indicator.Summary
	SignalID int64 `json:"signal_id,omitempty"`
}

// TechnicalSummary scores the composite rule set at the last close and
// records the verdict as a signal.
func (s *Service) TechnicalSummary(ctx context.Context, req SummaryRequest) (*SummaryResponse, error) {
	const op = "tools.get_technical_summary"
	symbol := marketdata.NormalizeSymbol(req.Symbol)
	bars, err := s.cleanHistory(ctx, op, symbol, req.Period)
	if err != nil {
		return nil, err
	}
	sum, err := indicator.Summarize(returns.Closes(bars))
	if err != nil {
		return nil, err
	}
	out := &SummaryResponse{Symbol: symbol, Summary: sum}

	if s.deps.Signals != nil {
		sig := &domain.Signal{
			StrategyID: SummaryStrategyID,
			Symbol:     symbol,
			Type:       sum.Signal,
			Strength:   float64(sum.Score),
			Metadata: map[string]string{
				"verdict": sum.Verdict,
				"price":   strconv.FormatFloat(sum.Price, 'f', -1, 64),
				"rsi":     strconv.FormatFloat(sum.RSI, 'f', 2, 64),
				"reasons": strings.Join(sum.Reasons, "; "),
			},
			CreatedAt: s.now().UTC(),
		}
		if err := s.deps.Signals.SaveSignal(ctx, sig); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("save signal")
		} else {
			out.SignalID = sig.ID
		}
	}
	return out, nil
}

// cleanHistory fetches daily bars and drops missing rows.
func (s *Service) cleanHistory(ctx context.Context, op, symbol, period string) ([]domain.Bar, error) {
	bars, err := s.history(ctx, op, symbol, "1d", period)
	if err != nil {
		return nil, err
	}
	var kept []domain.Bar
	for _, b := range bars {
		if !b.Missing() {
			b.Symbol = symbol
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		return nil, domain.InsufficientData(op, symbol, "no usable bars in %s", period)
	}
	return kept, nil
}
