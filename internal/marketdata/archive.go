package marketdata

import (
	"context"
	"fmt"
	"time"

	"montewalk/internal/domain"
	"montewalk/internal/store"
	"montewalk/internal/util"
)

// StoreProvider serves daily bars from the local Parquet archive.
type StoreProvider struct {
	bars store.BarStore
	now  func() time.Time
}

var _ Provider = (*StoreProvider)(nil)

// NewStoreProvider wraps a bar store.
func NewStoreProvider(bars store.BarStore) *StoreProvider {
	return &StoreProvider{bars: bars, now: time.Now}
}

// Name returns "archive".
func (p *StoreProvider) Name() string { return "archive" }

// GetBars implements Provider. Only daily bars are archived.
func (p *StoreProvider) GetBars(ctx context.Context, symbol string, interval util.Interval, period string) ([]domain.Bar, error) {
	if interval != "1d" {
		return nil, fmt.Errorf("%w: archive holds daily bars only, not %s", ErrUnsupported, interval)
	}
	now := p.now()
	start, err := util.PeriodStart(period, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	symbol = NormalizeSymbol(symbol)
	return p.bars.ReadBars(ctx, symbol, MarketOf(symbol), start, now)
}

// GetFundamentals implements Provider with price statistics from the last
// year of archived bars.
func (p *StoreProvider) GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	symbol = NormalizeSymbol(symbol)
	now := p.now()
	bars, err := p.bars.ReadBars(ctx, symbol, MarketOf(symbol), now.AddDate(-1, 0, 0), now)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no archived bars for %s", symbol)
	}
	f := &Fundamentals{Symbol: symbol, Source: p.Name()}
	Summarize(f, bars, now)
	return f, nil
}
