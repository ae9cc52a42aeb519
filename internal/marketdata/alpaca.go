package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"montewalk/internal/domain"
	"montewalk/internal/util"
)

// barClient is the subset of the Alpaca market-data client used here.
type barClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
}

// assetClient is the subset of the Alpaca trading client used here.
type assetClient interface {
	GetAsset(symbol string) (*alpaca.Asset, error)
}

// AlpacaOptions configure NewAlpacaProvider.
type AlpacaOptions struct {
	APIKey          string
	APISecret       string
	BaseURL         string
	DataURL         string
	Feed            string
	RateLimitPerMin int
	MaxAttempts     int
	RetryDelay      time.Duration
}

// AlpacaProvider fetches bars from the Alpaca market-data API and asset
// reference data from the trading API. Calls are rate limited, retried with
// backoff and guarded by a circuit breaker so a failing upstream is skipped
// quickly by the chain.
type AlpacaProvider struct {
	data        barClient
	assets      assetClient
	feed        string
	limiter     *util.Limiter
	breaker     *gobreaker.CircuitBreaker
	maxAttempts int
	retryDelay  time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

var _ Provider = (*AlpacaProvider)(nil)

// NewAlpacaProvider creates a provider from credentials.
func NewAlpacaProvider(opts AlpacaOptions, logger zerolog.Logger) *AlpacaProvider {
	dataOpts := marketdata.ClientOpts{APIKey: opts.APIKey, APISecret: opts.APISecret}
	if opts.DataURL != "" {
		dataOpts.BaseURL = opts.DataURL
	}
	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
		BaseURL:   opts.BaseURL,
	})
	return newAlpacaProvider(marketdata.NewClient(dataOpts), trading, opts, logger)
}

func newAlpacaProvider(data barClient, assets assetClient, opts AlpacaOptions, logger zerolog.Logger) *AlpacaProvider {
	log := logger.With().Str("component", "alpaca-data").Logger()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Feed == "" {
		opts.Feed = "iex"
	}
	st := gobreaker.Settings{
		Name:     "alpaca-data",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// Client errors do not count against upstream health.
			return err == nil || errors.Is(err, ErrUnsupported) || isClientError(err)
		},
	}
	return &AlpacaProvider{
		data:        data,
		assets:      assets,
		feed:        opts.Feed,
		limiter:     util.NewLimiter(opts.RateLimitPerMin, 5),
		breaker:     gobreaker.NewCircuitBreaker(st),
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		now:         time.Now,
		log:         log,
	}
}

// Name returns "alpaca".
func (p *AlpacaProvider) Name() string { return "alpaca" }

// isClientError reports a 4xx API response, which retrying cannot fix.
func isClientError(err error) bool {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

func permanent(err error) bool {
	return errors.Is(err, ErrUnsupported) || errors.Is(err, gobreaker.ErrOpenState) || isClientError(err)
}

// call runs fn under the limiter, the breaker and the retry policy.
func (p *AlpacaProvider) call(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, p.maxAttempts, p.retryDelay, func() error {
		if err := p.limiter.Wait(ctx, p.Name()); err != nil {
			return err
		}
		_, err := p.breaker.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		return err
	}, permanent)
}

// timeFrame maps an interval onto an Alpaca bar timeframe.
func timeFrame(iv util.Interval) (marketdata.TimeFrame, error) {
	switch iv {
	case "1m":
		return marketdata.OneMin, nil
	case "2m", "5m", "15m", "30m":
		d := iv.Duration()
		return marketdata.NewTimeFrame(int(d/time.Minute), marketdata.Min), nil
	case "60m", "1h":
		return marketdata.OneHour, nil
	case "1d":
		return marketdata.OneDay, nil
	case "1wk":
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	case "1mo":
		return marketdata.NewTimeFrame(1, marketdata.Month), nil
	case "3mo":
		return marketdata.NewTimeFrame(3, marketdata.Month), nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("%w: interval %s", ErrUnsupported, iv)
}

// GetBars implements Provider.
func (p *AlpacaProvider) GetBars(ctx context.Context, symbol string, interval util.Interval, period string) ([]domain.Bar, error) {
	tf, err := timeFrame(interval)
	if err != nil {
		return nil, err
	}
	now := p.now()
	start, err := util.PeriodStart(period, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	symbol = NormalizeSymbol(symbol)

	var bars []domain.Bar
	err = p.call(ctx, func() error {
		var ferr error
		if MarketOf(symbol) == domain.MarketCrypto {
			bars, ferr = p.cryptoBars(symbol, tf, start, now)
		} else {
			bars, ferr = p.stockBars(symbol, tf, start, now)
		}
		return ferr
	})
	if err != nil {
		return nil, err
	}
	p.log.Debug().Str("symbol", symbol).Str("interval", string(interval)).Int("bars", len(bars)).Msg("fetched bars")
	return bars, nil
}

func (p *AlpacaProvider) stockBars(symbol string, tf marketdata.TimeFrame, start, end time.Time) ([]domain.Bar, error) {
	raw, err := p.data.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
		Feed:      marketdata.Feed(p.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}
	bars := make([]domain.Bar, len(raw))
	for i, ab := range raw {
		bars[i] = domain.Bar{
			Symbol:     symbol,
			Timestamp:  ab.Timestamp,
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		}
	}
	return bars, nil
}

func (p *AlpacaProvider) cryptoBars(symbol string, tf marketdata.TimeFrame, start, end time.Time) ([]domain.Bar, error) {
	raw, err := p.data.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCryptoBars: %w", err)
	}
	bars := make([]domain.Bar, len(raw))
	for i, cb := range raw {
		bars[i] = domain.Bar{
			Symbol:     symbol,
			Timestamp:  cb.Timestamp,
			Open:       cb.Open,
			High:       cb.High,
			Low:        cb.Low,
			Close:      cb.Close,
			Volume:     int64(cb.Volume),
			TradeCount: int64(cb.TradeCount),
			VWAP:       cb.VWAP,
		}
	}
	return bars, nil
}

// GetFundamentals implements Provider with the Alpaca asset record.
func (p *AlpacaProvider) GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	symbol = NormalizeSymbol(symbol)
	var asset *alpaca.Asset
	err := p.call(ctx, func() error {
		var ferr error
		asset, ferr = p.assets.GetAsset(symbol)
		if ferr != nil {
			return fmt.Errorf("GetAsset: %w", ferr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Fundamentals{
		Symbol:       strings.ToUpper(asset.Symbol),
		Name:         asset.Name,
		Exchange:     asset.Exchange,
		AssetClass:   string(asset.Class),
		Status:       string(asset.Status),
		Tradable:     asset.Tradable,
		Shortable:    asset.Shortable,
		Marginable:   asset.Marginable,
		Fractionable: asset.Fractionable,
		EasyToBorrow: asset.EasyToBorrow,
		Source:       p.Name(),
	}, nil
}
