package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"weekgrid/internal/bucket"
	"weekgrid/internal/cache"
	"weekgrid/internal/config"
	"weekgrid/internal/logging"
	"weekgrid/internal/market"
	"weekgrid/internal/provider"
	"weekgrid/internal/ratelimit"
	"weekgrid/internal/store"
	"weekgrid/internal/symbols"
)

// app holds the wired components shared by all commands
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	cache    cache.Cache
	universe *symbols.Universe
	markets  *market.Service
	updater  *market.Updater
	closers  []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}

	if cfg.Database.DSN != "" {
		st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
		if err != nil {
			return nil, err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
	} else {
		logger.Warn("No database configured, serving straight from providers")
	}

	a.cache, err = newCache(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if r, ok := a.cache.(*cache.Redis); ok {
		a.closers = append(a.closers, r.Close)
	}

	bins, err := bucket.NewBins(cfg.Buckets.Boundaries)
	if err != nil {
		a.Close()
		return nil, err
	}

	sources, invalidators := a.createSources()
	var sent provider.SentimentProvider
	if cfg.Sentiment.Enabled {
		sent = provider.NewFearGreedProvider()
	}

	a.universe = symbols.NewUniverse(cfg.Tickers)
	opts := market.Options{
		Bins:             bins,
		BreachThreshold:  cfg.Grid.BreachThreshold,
		RequireSentiment: cfg.Sentiment.Require,
		SentimentLimit:   cfg.Sentiment.Limit,
		HistoryStart:     cfg.HistoryStart(),
		Workers:          cfg.Refresh.Workers,
	}

	// a typed nil store must not reach the interfaces
	var reader market.PriceReader
	var writer market.PriceWriter
	if a.store != nil {
		reader, writer = a.store, a.store
	}
	a.markets = market.NewService(a.universe, reader, sources, sent, a.cache, opts, logger)
	invalidators = append(invalidators, a.markets)
	a.updater = market.NewUpdater(writer, sources, cfg.HistoryStart(), cfg.Refresh.Workers, logger, invalidators...)
	return a, nil
}

func newCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		r := cfg.Cache.Redis
		c, err := cache.NewRedis(ctx, r.Addr, r.Password, r.DB, r.Namespace, cfg.Cache.TTL, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return c, nil
	case "none":
		return cache.Nop{}, nil
	default:
		return cache.NewMemory(cfg.Cache.TTL, cfg.Cache.MaxEntries), nil
	}
}

// rawProviders builds the unwrapped providers: a Finnhub, Alpha Vantage, Yahoo chain for
// equities and CoinAPI for crypto. Missing keys leave providers out.
func rawProviders(cfg *config.Config) (equities []provider.PriceProvider, crypto provider.PriceProvider) {
	if cfg.API.Finnhub.Key != "" {
		equities = append(equities, provider.NewFinnhubProvider(cfg.API.Finnhub.Key, cfg.API.Finnhub.RateLimit))
	}
	if cfg.API.AlphaVantage.Key != "" {
		equities = append(equities, provider.NewAlphaVantageProvider(cfg.API.AlphaVantage.Key, cfg.API.AlphaVantage.RateLimit))
	}
	if cfg.API.Yahoo.Enabled {
		equities = append(equities, provider.NewYahooProvider())
	}
	if cfg.API.CoinAPI.Key != "" {
		crypto = provider.NewCoinAPIProvider(cfg.API.CoinAPI.Key, cfg.API.CoinAPI.RateLimit)
	}
	return equities, crypto
}

// createSources wraps the providers with retries. Without a store they are also cached,
// and the caching layers are returned for invalidation.
func (a *app) createSources() (market.Sources, []market.Invalidator) {
	cfg := a.cfg
	backoff := ratelimit.Backoff{Attempts: cfg.Refresh.Attempts, Base: cfg.Refresh.Backoff}
	equities, crypto := rawProviders(cfg)

	var sources market.Sources
	var invalidators []market.Invalidator
	wrap := func(p provider.PriceProvider) provider.PriceProvider {
		p = provider.NewRetryingProvider(p, backoff, a.logger)
		if a.store == nil {
			cp := provider.NewCachingProvider(p, a.cache, a.logger)
			invalidators = append(invalidators, cp)
			return cp
		}
		return p
	}

	if len(equities) > 0 {
		fb := provider.NewFallbackProvider(equities...)
		sources.Equity = wrap(fb)
		names := make([]string, 0, len(equities))
		for _, p := range fb.Providers() {
			names = append(names, p.Name())
		}
		a.logger.Debug("Equity providers", zap.Strings("chain", names))
	} else {
		a.logger.Warn("No equity provider configured. Set FINNHUB_API_KEY, ALPHAVANTAGE_API_KEY or enable yahoo")
	}

	if crypto != nil {
		sources.Crypto = wrap(crypto)
	} else {
		a.logger.Warn("No crypto provider configured. Set COINAPI_KEY")
	}
	return sources, invalidators
}

// Close releases the store and cache connections
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("Close failed", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// refreshContext bounds a refresh run by the configured timeout
func (a *app) refreshContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := a.cfg.Refresh.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return context.WithTimeout(parent, timeout)
}
