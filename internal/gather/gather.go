// Package gather backfills the local bar archive from a market data provider.
package gather

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"montewalk/internal/domain"
	"montewalk/internal/marketdata"
	"montewalk/internal/store"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass.
	Run(ctx context.Context) error
}

var _ Gatherer = (*BarGatherer)(nil)

// Options configures a BarGatherer.
type Options struct {
	Symbols []string
	// Period is the lookback handed to the provider, e.g. "5y".
	Period  string
	Workers int
	// StateDir holds the progress files. Empty disables progress tracking.
	StateDir string
}

// Summary reports the outcome of one pass.
type Summary struct {
	Fetched int               `json:"fetched"`
	Bars    int64             `json:"bars"`
	Empty   []string          `json:"empty,omitempty"`
	Skipped []string          `json:"skipped,omitempty"`
	Failed  map[string]string `json:"failed,omitempty"`
	Elapsed time.Duration     `json:"elapsed"`
}

// BarGatherer fetches daily bars for a symbol list and writes them to a
// BarStore with a bounded worker pool. Symbols that returned no data are
// remembered for the rest of the day and skipped on reruns.
type BarGatherer struct {
	provider marketdata.Provider
	store    store.BarStore
	opts     Options
	now      func() time.Time
	log      zerolog.Logger
}

// NewBarGatherer creates a BarGatherer.
func NewBarGatherer(p marketdata.Provider, s store.BarStore, opts Options, logger zerolog.Logger) *BarGatherer {
	if opts.Period == "" {
		opts.Period = "5y"
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &BarGatherer{
		provider: p,
		store:    s,
		opts:     opts,
		now:      time.Now,
		log:      logger.With().Str("component", "gather").Str("provider", p.Name()).Logger(),
	}
}

// Name returns the gatherer identifier.
func (g *BarGatherer) Name() string { return "daily-bars" }

// Run gathers once and fails when any symbol failed.
func (g *BarGatherer) Run(ctx context.Context) error {
	sum, err := g.Gather(ctx)
	if err != nil {
		return err
	}
	if len(sum.Failed) > 0 {
		return fmt.Errorf("gather: %d of %d symbols failed", len(sum.Failed), len(g.opts.Symbols))
	}
	return nil
}

// Gather fetches every configured symbol. Per-symbol failures are reported
// in the Summary; only cancellation and progress-file errors abort the pass.
func (g *BarGatherer) Gather(ctx context.Context) (*Summary, error) {
	start := g.now()
	today := start.UTC().Format(time.DateOnly)
	sum := &Summary{Failed: make(map[string]string)}

	var tracker *progressTracker
	if g.opts.StateDir != "" {
		var err error
		tracker, err = newProgressTracker(g.opts.StateDir)
		if err != nil {
			return nil, err
		}
		if last := tracker.LastCompleted(); last != "" && last != today {
			if err := tracker.Reset(); err != nil {
				return nil, err
			}
		}
	}

	var remaining []string
	seen := make(map[string]struct{})
	for _, sym := range g.opts.Symbols {
		sym = marketdata.NormalizeSymbol(sym)
		if _, dup := seen[sym]; dup || sym == "" {
			continue
		}
		seen[sym] = struct{}{}
		if tracker != nil && tracker.IsTriedEmpty(sym) {
			sum.Skipped = append(sum.Skipped, sym)
			continue
		}
		remaining = append(remaining, sym)
	}
	g.log.Info().Int("symbols", len(remaining)).Int("skipped", len(sum.Skipped)).Str("period", g.opts.Period).Msg("gather starting")

	symCh := make(chan string, len(remaining))
	for _, sym := range remaining {
		symCh <- sym
	}
	close(symCh)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		fetched atomic.Int64
		bars    atomic.Int64
	)
	workers := min(g.opts.Workers, len(remaining))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symCh {
				if ctx.Err() != nil {
					return
				}
				n, err := g.fetchOne(ctx, sym)
				mu.Lock()
				switch {
				case err != nil:
					sum.Failed[sym] = err.Error()
					g.log.Warn().Err(err).Str("symbol", sym).Msg("gather failed")
				case n == 0:
					sum.Empty = append(sum.Empty, sym)
				default:
					fetched.Add(1)
					bars.Add(int64(n))
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.Sort(sum.Empty)
	if tracker != nil {
		if err := tracker.MarkEmpty(sum.Empty); err != nil {
			return nil, err
		}
		if len(sum.Failed) == 0 {
			if err := tracker.MarkCompleted(today); err != nil {
				return nil, err
			}
		}
	}

	sum.Fetched = int(fetched.Load())
	sum.Bars = bars.Load()
	sum.Elapsed = g.now().Sub(start)
	g.log.Info().
		Int("fetched", sum.Fetched).
		Int64("bars", sum.Bars).
		Int("empty", len(sum.Empty)).
		Int("failed", len(sum.Failed)).
		Dur("elapsed", sum.Elapsed).
		Msg("gather finished")
	return sum, nil
}

func (g *BarGatherer) fetchOne(ctx context.Context, symbol string) (int, error) {
	bars, err := g.provider.GetBars(ctx, symbol, "1d", g.opts.Period)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			return 0, nil
		}
		return 0, err
	}
	clean := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Missing() {
			continue
		}
		b.Symbol = symbol
		clean = append(clean, b)
	}
	if len(clean) == 0 {
		return 0, nil
	}
	if err := g.store.WriteBars(ctx, marketdata.MarketOf(symbol), clean); err != nil {
		return 0, fmt.Errorf("write bars: %w", err)
	}
	return len(clean), nil
}
