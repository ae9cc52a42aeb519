package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"montewalk/internal/cache"
	"montewalk/internal/domain"
	"montewalk/internal/util"
)

// CachedProvider memoizes another provider's answers in a Cache. Cache
// failures are logged and fall through to the wrapped provider.
type CachedProvider struct {
	next  Provider
	cache cache.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps next with c.
func NewCachedProvider(next Provider, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		next:  next,
		cache: c,
		ttl:   ttl,
		log:   logger.With().Str("component", "marketdata-cache").Logger(),
	}
}

// Name returns the wrapped provider's name.
func (p *CachedProvider) Name() string { return p.next.Name() }

func barsKey(symbol string, interval util.Interval, period string) string {
	return fmt.Sprintf("bars:%s:%s:%s", symbol, interval, period)
}

func fundamentalsKey(symbol string) string { return "fundamentals:" + symbol }

// lookup decodes key into dest, reporting whether it was a hit.
func (p *CachedProvider) lookup(ctx context.Context, key string, dest any) bool {
	data, err := p.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			p.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return false
	}
	return true
}

func (p *CachedProvider) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err == nil {
		err = p.cache.Set(ctx, key, data, p.ttl)
	}
	if err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// GetBars implements Provider.
func (p *CachedProvider) GetBars(ctx context.Context, symbol string, interval util.Interval, period string) ([]domain.Bar, error) {
	symbol = NormalizeSymbol(symbol)
	key := barsKey(symbol, interval, period)
	var bars []domain.Bar
	if p.lookup(ctx, key, &bars) && len(bars) > 0 {
		return bars, nil
	}
	bars, err := p.next.GetBars(ctx, symbol, interval, period)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 {
		p.store(ctx, key, bars)
	}
	return bars, nil
}

// GetFundamentals implements Provider.
func (p *CachedProvider) GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	symbol = NormalizeSymbol(symbol)
	key := fundamentalsKey(symbol)
	var f Fundamentals
	if p.lookup(ctx, key, &f) {
		return &f, nil
	}
	got, err := p.next.GetFundamentals(ctx, symbol)
	if err != nil {
		return nil, err
	}
	p.store(ctx, key, got)
	return got, nil
}
