package provider

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"weekgrid/internal/cache"
	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

// CachingProvider wraps a PriceProvider with a shared cache for GetDailyCandles.
// Entries are scoped by symbol so a refresh can drop them.
type CachingProvider struct {
	inner  PriceProvider
	cache  cache.Cache
	logger *zap.Logger
}

// NewCachingProvider creates a caching wrapper
func NewCachingProvider(inner PriceProvider, c cache.Cache, logger *zap.Logger) *CachingProvider {
	return &CachingProvider{inner: inner, cache: c, logger: logger}
}

func (p *CachingProvider) Name() string      { return p.inner.Name() }
func (p *CachingProvider) IsAvailable() bool { return p.inner.IsAvailable() }
func (p *CachingProvider) RateLimit() int    { return p.inner.RateLimit() }

func (p *CachingProvider) GetDailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	key := cache.Key(symbol, "candles", p.inner.Name(), start.Format(series.DateLayout), end.Format(series.DateLayout))

	if b, ok, err := p.cache.Get(ctx, key); err != nil {
		p.logger.Warn("Cache read failed", zap.String("symbol", symbol), zap.Error(err))
	} else if ok {
		var candles []model.Candle
		if err := json.Unmarshal(b, &candles); err == nil {
			return candles, nil
		}
	}

	candles, err := p.inner.GetDailyCandles(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(candles); err == nil {
		if err := p.cache.Set(ctx, key, b); err != nil {
			p.logger.Warn("Cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return candles, nil
}

// Invalidate drops every cached range of symbol
func (p *CachingProvider) Invalidate(ctx context.Context, symbol string) error {
	_, err := p.cache.InvalidatePrefix(ctx, cache.Prefix(symbol))
	return err
}
