// Package app wires configuration into the stores, providers, broker and
// tool service shared by the montewalk binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"montewalk/internal/broker"
	"montewalk/internal/cache"
	"montewalk/internal/config"
	"montewalk/internal/engine"
	"montewalk/internal/marketdata"
	"montewalk/internal/metrics"
	"montewalk/internal/store"
	"montewalk/internal/tools"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Bars     *store.ParquetStore
	DB       *store.SQLiteStore
	Cache    cache.Cache
	Provider marketdata.Provider
	// Upstream is the remote provider used to backfill the archive, nil
	// when no remote source is configured.
	Upstream marketdata.Provider
	Broker   broker.Broker
	Engine   *engine.Engine
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder
	Tools    *tools.Service
}

// Build opens the stores and constructs every component from cfg.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite dir: %w", err)
		}
	}
	a.Bars = store.NewParquetStore(cfg.Storage.DataDir)
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	a.DB = db

	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Cache = rc
	} else {
		a.Cache = cache.NewMemory()
	}

	var providers []marketdata.Provider
	if cfg.Alpaca.Enabled() {
		a.Upstream = marketdata.NewAlpacaProvider(marketdata.AlpacaOptions{
			APIKey:          cfg.Alpaca.APIKey,
			APISecret:       cfg.Alpaca.APISecret,
			BaseURL:         cfg.Alpaca.BaseURL,
			DataURL:         cfg.Alpaca.DataURL,
			Feed:            cfg.Alpaca.Feed,
			RateLimitPerMin: cfg.Alpaca.RateLimitPerMin,
		}, logger)
		providers = append(providers, a.Upstream)
	} else {
		logger.Warn().Msg("alpaca credentials not set, serving bars from the local archive only")
	}
	providers = append(providers, marketdata.NewStoreProvider(a.Bars))
	ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
	a.Provider = marketdata.NewCachedProvider(marketdata.NewChain(logger, providers...), a.Cache, ttl, logger)

	prices := broker.PriceFunc(func(ctx context.Context, symbol string) (float64, error) {
		return marketdata.LastPrice(ctx, a.Provider, symbol)
	})
	if cfg.Alpaca.Enabled() && cfg.Trading.PaperMode {
		a.Broker = broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	} else {
		var simOpts []broker.SimulatorOption
		if cfg.Backtest.AllowShort {
			simOpts = append(simOpts, broker.WithShorting())
		}
		a.Broker = broker.NewSimulatorBroker(prices, cfg.Trading.StartingCash, simOpts...)
	}
	a.Engine = engine.NewEngine(a.Broker, prices, a.DB, a.DB,
		engine.NewRiskManager(cfg.Trading.MaxPositionPct, cfg.Trading.MaxDailyLossPct), logger)

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	a.Tools = tools.New(tools.Deps{
		Provider:  a.Provider,
		Engine:    a.Engine,
		Watchlist: a.DB,
		Signals:   a.DB,
		Runs:      a.DB,
		Metrics:   a.Metrics,
		Config:    cfg,
	}, logger)

	logger.Info().
		Str("broker", a.Broker.Name()).
		Str("provider", a.Provider.Name()).
		Bool("redis", cfg.Redis.Addr != "").
		Msg("components ready")
	return a, nil
}

// Close releases the cache and database.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
