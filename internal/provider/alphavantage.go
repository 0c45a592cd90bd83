package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"weekgrid/internal/ratelimit"
	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// AlphaVantageProvider implements PriceProvider for the Alpha Vantage API
type AlphaVantageProvider struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
}

// NewAlphaVantageProvider creates a new Alpha Vantage provider
func NewAlphaVantageProvider(apiKey string, rateLimitPerMin int) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		apiKey:    apiKey,
		baseURL:   alphaVantageBaseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   ratelimit.NewLimiter("alphavantage", rateLimitPerMin),
		rateLimit: rateLimitPerMin,
	}
}

// Name returns the provider name
func (p *AlphaVantageProvider) Name() string {
	return "alphavantage"
}

// IsAvailable checks if the provider has an API key
func (p *AlphaVantageProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// RateLimit returns the rate limit per minute
func (p *AlphaVantageProvider) RateLimit() int {
	return p.rateLimit
}

type alphaVantageDaily struct {
	MetaData    map[string]string            `json:"Meta Data"`
	TimeSeries  map[string]map[string]string `json:"Time Series (Daily)"`
	Note        string                       `json:"Note"` // Rate limit message
	Information string                       `json:"Information"`
	Error       string                       `json:"Error Message"`
}

// GetDailyCandles fetches the full daily series and keeps the requested range
func (p *AlphaVantageProvider) GetDailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	url := fmt.Sprintf("%s?function=TIME_SERIES_DAILY&symbol=%s&outputsize=full&apikey=%s",
		p.baseURL, symbol, p.apiKey)

	var data alphaVantageDaily
	if err := getJSON(ctx, p.Name(), p.client, p.limiter, url, nil, &data); err != nil {
		return nil, err
	}

	if data.Note != "" || data.Information != "" {
		p.limiter.Penalize()
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%w: %s%s", ErrRateLimited, data.Note, data.Information), Retryable: true}
	}
	if data.Error != "" {
		return nil, &ProviderError{Provider: p.Name(), Err: errors.New(data.Error), Retryable: false}
	}
	if len(data.TimeSeries) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData, Retryable: false}
	}

	candles := make([]model.Candle, 0, len(data.TimeSeries))
	for dateStr, values := range data.TimeSeries {
		day, err := time.Parse(series.DateLayout, dateStr)
		if err != nil {
			continue
		}
		if !inRange(day, start, end) {
			continue
		}

		open, err1 := strconv.ParseFloat(values["1. open"], 64)
		high, err2 := strconv.ParseFloat(values["2. high"], 64)
		low, err3 := strconv.ParseFloat(values["3. low"], 64)
		closePrice, err4 := strconv.ParseFloat(values["4. close"], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		volume, _ := strconv.ParseInt(values["5. volume"], 10, 64)

		candles = append(candles, model.Candle{
			Time:   day,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})
	return candles, nil
}
