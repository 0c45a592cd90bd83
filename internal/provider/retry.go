package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"weekgrid/internal/ratelimit"
	"weekgrid/pkg/model"
)

// RetryingProvider retries retryable failures of the wrapped provider
type RetryingProvider struct {
	inner   PriceProvider
	backoff ratelimit.Backoff
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

// NewRetryingProvider wraps inner with the given backoff schedule
func NewRetryingProvider(inner PriceProvider, backoff ratelimit.Backoff, logger *zap.Logger) *RetryingProvider {
	if backoff.Attempts < 1 {
		backoff.Attempts = 1
	}
	return &RetryingProvider{inner: inner, backoff: backoff, logger: logger, sleep: ratelimit.Sleep}
}

func (p *RetryingProvider) Name() string      { return p.inner.Name() }
func (p *RetryingProvider) IsAvailable() bool { return p.inner.IsAvailable() }
func (p *RetryingProvider) RateLimit() int    { return p.inner.RateLimit() }

func (p *RetryingProvider) GetDailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	var lastErr error
	for attempt := 1; attempt <= p.backoff.Attempts; attempt++ {
		candles, err := p.inner.GetDailyCandles(ctx, symbol, start, end)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == p.backoff.Attempts {
			break
		}

		wait := p.backoff.Delay(attempt, errors.Is(err, ErrRateLimited))
		p.logger.Warn("Fetch failed, retrying",
			zap.String("provider", p.inner.Name()),
			zap.String("symbol", symbol),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		if err := p.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}
