// Package marketdata retrieves historical bars and reference data. Providers
// are tried in order by a Chain; the analytics core only ever sees bars.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"montewalk/internal/domain"
	"montewalk/internal/util"
)

// Fundamentals is reference data for a symbol. Fields a provider cannot
// supply are left zero.
type Fundamentals struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name,omitempty"`
	Exchange     string  `json:"exchange,omitempty"`
	AssetClass   string  `json:"asset_class,omitempty"`
	Status       string  `json:"status,omitempty"`
	Tradable     bool    `json:"tradable"`
	Shortable    bool    `json:"shortable"`
	Marginable   bool    `json:"marginable"`
	Fractionable bool    `json:"fractionable"`
	EasyToBorrow bool    `json:"easy_to_borrow"`
	LastClose    float64 `json:"last_close,omitempty"`
	High52Week   float64 `json:"high_52w,omitempty"`
	Low52Week    float64 `json:"low_52w,omitempty"`
	AvgVolume    float64 `json:"avg_volume,omitempty"`
	Source       string  `json:"source"`
}

// Provider supplies bars and reference data for symbols.
type Provider interface {
	// Name identifies the provider in logs and error messages.
	Name() string

	// GetBars returns bars for symbol at the given interval covering the
	// lookback period (e.g. "1y"), oldest first.
	GetBars(ctx context.Context, symbol string, interval util.Interval, period string) ([]domain.Bar, error)

	// GetFundamentals returns reference data for symbol.
	GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error)
}

// ErrUnsupported is returned by providers for requests outside their scope,
// such as intraday bars from the daily archive.
var ErrUnsupported = errors.New("unsupported request")

// MarketOf classifies symbol: pairs such as "BTC/USD" are crypto.
func MarketOf(symbol string) domain.Market {
	if strings.Contains(symbol, "/") {
		return domain.MarketCrypto
	}
	return domain.MarketUS
}

// NormalizeSymbol upper-cases and trims symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Chain tries each provider in order and returns the first non-empty
// answer. When every provider fails, the returned error is a single
// data-unavailable error wrapping each provider's cause.
type Chain struct {
	providers []Provider
	log       zerolog.Logger
}

var _ Provider = (*Chain)(nil)

// NewChain builds a chain over providers.
func NewChain(logger zerolog.Logger, providers ...Provider) *Chain {
	return &Chain{
		providers: providers,
		log:       logger.With().Str("component", "marketdata").Logger(),
	}
}

// Name returns the provider names joined with ">".
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

// GetBars implements Provider.
func (c *Chain) GetBars(ctx context.Context, symbol string, interval util.Interval, period string) ([]domain.Bar, error) {
	const op = "marketdata.GetBars"
	symbol = NormalizeSymbol(symbol)
	var causes []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := p.GetBars(ctx, symbol, interval, period)
		if err == nil && len(bars) == 0 {
			err = fmt.Errorf("no bars for %s %s over %s", symbol, interval, period)
		}
		if err != nil {
			c.log.Debug().Err(err).Str("provider", p.Name()).Str("symbol", symbol).Msg("provider failed, trying next")
			causes = append(causes, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		return bars, nil
	}
	if len(causes) == 0 {
		causes = append(causes, errors.New("no providers configured"))
	}
	c.log.Warn().Str("symbol", symbol).Int("providers", len(c.providers)).Msg("all providers failed")
	return nil, domain.DataUnavailable(op, symbol, errors.Join(causes...))
}

// GetFundamentals implements Provider.
func (c *Chain) GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	const op = "marketdata.GetFundamentals"
	symbol = NormalizeSymbol(symbol)
	var causes []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := p.GetFundamentals(ctx, symbol)
		if err != nil {
			causes = append(causes, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		return f, nil
	}
	if len(causes) == 0 {
		causes = append(causes, errors.New("no providers configured"))
	}
	return nil, domain.DataUnavailable(op, symbol, errors.Join(causes...))
}

// Summarize fills the price statistics of f from one year of daily bars.
func Summarize(f *Fundamentals, bars []domain.Bar, now time.Time) {
	cutoff := now.AddDate(-1, 0, 0)
	var (
		n      int
		volume float64
	)
	for _, b := range bars {
		if b.Missing() || b.Timestamp.Before(cutoff) {
			continue
		}
		if n == 0 || b.High > f.High52Week {
			f.High52Week = b.High
		}
		if n == 0 || b.Low < f.Low52Week {
			f.Low52Week = b.Low
		}
		volume += float64(b.Volume)
		f.LastClose = b.Close
		n++
	}
	if n > 0 {
		f.AvgVolume = volume / float64(n)
	}
}

// LastPrice returns the most recent usable daily close of symbol. It adapts
// a provider into the quote source of the simulator broker.
func LastPrice(ctx context.Context, p Provider, symbol string) (float64, error) {
	bars, err := p.GetBars(ctx, symbol, "1d", "1mo")
	if err != nil {
		return 0, err
	}
	for i := len(bars) - 1; i >= 0; i-- {
		if b := bars[i]; !b.Missing() && b.Close > 0 {
			return b.Close, nil
		}
	}
	return 0, domain.DataUnavailable("marketdata.LastPrice", symbol, errors.New("no recent close"))
}
