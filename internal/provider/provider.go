package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	_ "time/tzdata"

	"weekgrid/internal/ratelimit"
	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

var (
	// ErrRateLimited marks an upstream 429 or quota message
	ErrRateLimited = errors.New("rate limited")
	// ErrNoData means the upstream answered but had no bars for the range
	ErrNoData = errors.New("no data available")
)

// eastern is the exchange time zone that defines a trading day
var eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// PriceProvider defines the interface for daily price sources
type PriceProvider interface {
	// Name returns the provider name
	Name() string

	// GetDailyCandles fetches daily bars with start <= day <= end, ascending.
	// Candle times are calendar days at UTC midnight.
	GetDailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error)

	// IsAvailable checks if the provider is configured (has valid API key)
	IsAvailable() bool

	// RateLimit returns the rate limit per minute
	RateLimit() int
}

// SentimentProvider supplies the daily Fear & Greed series
type SentimentProvider interface {
	Name() string
	GetSentiment(ctx context.Context, limit int) ([]model.SentimentPoint, error)
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a ProviderError marked retryable
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// FallbackProvider tries multiple providers in order
type FallbackProvider struct {
	providers []PriceProvider
}

// NewFallbackProvider keeps only the available providers
func NewFallbackProvider(providers ...PriceProvider) *FallbackProvider {
	available := make([]PriceProvider, 0, len(providers))
	for _, p := range providers {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return &FallbackProvider{providers: available}
}

// Name returns the combined provider name
func (f *FallbackProvider) Name() string {
	return "fallback"
}

// GetDailyCandles tries each provider in order until one succeeds
func (f *FallbackProvider) GetDailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	if len(f.providers) == 0 {
		return nil, &ProviderError{Provider: f.Name(), Err: errors.New("no provider configured"), Retryable: false}
	}
	var lastErr error
	for _, p := range f.providers {
		data, err := p.GetDailyCandles(ctx, symbol, start, end)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, lastErr
}

// IsAvailable returns true if any provider is available
func (f *FallbackProvider) IsAvailable() bool {
	return len(f.providers) > 0
}

// RateLimit returns the highest rate limit among providers
func (f *FallbackProvider) RateLimit() int {
	maxRate := 0
	for _, p := range f.providers {
		if p.RateLimit() > maxRate {
			maxRate = p.RateLimit()
		}
	}
	return maxRate
}

// Providers returns the list of underlying providers
func (f *FallbackProvider) Providers() []PriceProvider {
	return f.providers
}

// getJSON performs a rate-limited GET and decodes the body into out.
// Transport failures, 429 and 5xx are retryable.
func getJSON(ctx context.Context, name string, client *http.Client, limiter *ratelimit.Limiter, url string, header http.Header, out any) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return &ProviderError{Provider: name, Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		limiter.Penalize()
		return &ProviderError{Provider: name, Err: ErrRateLimited, Retryable: true}
	case resp.StatusCode >= 500:
		return &ProviderError{Provider: name, Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: true}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ProviderError{Provider: name, Err: fmt.Errorf("status %d: %s", resp.StatusCode, body), Retryable: false}
	}

	limiter.Reset()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: name, Err: fmt.Errorf("decoding response: %w", err), Retryable: false}
	}
	return nil
}

// marketDay returns the exchange calendar day of t
func marketDay(t time.Time) time.Time {
	return series.Day(t.In(eastern))
}

// inRange reports whether day lies within [start, end] by calendar date
func inRange(day, start, end time.Time) bool {
	return !day.Before(series.Day(start)) && !day.After(series.Day(end))
}
