package provider

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"weekgrid/internal/ratelimit"
	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

const coinAPIBaseURL = "https://rest.coinapi.io/v1"

// CoinAPIProvider implements PriceProvider for crypto via CoinAPI exchange-rate history.
// Half-hour bars are folded into days aligned with US market hours.
type CoinAPIProvider struct {
	apiKey    string
	baseURL   string
	quote     string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
}

// NewCoinAPIProvider creates a CoinAPI provider quoting in USD
func NewCoinAPIProvider(apiKey string, rateLimitPerMin int) *CoinAPIProvider {
	return &CoinAPIProvider{
		apiKey:    apiKey,
		baseURL:   coinAPIBaseURL,
		quote:     "USD",
		client:    &http.Client{Timeout: 60 * time.Second},
		limiter:   ratelimit.NewLimiter("coinapi", rateLimitPerMin),
		rateLimit: rateLimitPerMin,
	}
}

func (p *CoinAPIProvider) Name() string      { return "coinapi" }
func (p *CoinAPIProvider) IsAvailable() bool { return p.apiKey != "" }
func (p *CoinAPIProvider) RateLimit() int    { return p.rateLimit }

// CoinAPIBar is one 30-minute exchange-rate bar
type CoinAPIBar struct {
	PeriodStart time.Time `json:"time_period_start"`
	PeriodEnd   time.Time `json:"time_period_end"`
	RateOpen    float64   `json:"rate_open"`
	RateHigh    float64   `json:"rate_high"`
	RateLow     float64   `json:"rate_low"`
	RateClose   float64   `json:"rate_close"`
}

// GetDailyCandles fetches half-hour bars for the range and folds them into days
func (p *CoinAPIProvider) GetDailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, eastern)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, eastern).AddDate(0, 0, 1)

	q := url.Values{}
	q.Set("period_id", "30MIN")
	q.Set("time_start", from.UTC().Format(time.RFC3339))
	q.Set("time_end", to.UTC().Format(time.RFC3339))
	q.Set("limit", "100000")
	u := fmt.Sprintf("%s/exchangerate/%s/%s/history?%s", p.baseURL, strings.ToUpper(symbol), p.quote, q.Encode())

	header := http.Header{"X-Coinapi-Key": {p.apiKey}}

	var bars []CoinAPIBar
	if err := getJSON(ctx, p.Name(), p.client, p.limiter, u, header, &bars); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData, Retryable: false}
	}

	days := DailyFromHalfHour(bars)
	out := days[:0]
	for _, c := range days {
		if inRange(c.Time, start, end) {
			out = append(out, c)
		}
	}
	return out, nil
}

// DailyFromHalfHour groups bars by US Eastern date and derives one candle per date.
// Open is the opening rate of the bar spanning 09:30 ET, else the closing rate of
// the last bar starting before it. Close is the closing rate of the bar ending at or
// spanning 16:00 ET, else the opening rate of the first bar ending after it.
// High and low cover every bar of the date. Dates without an open are dropped.
func DailyFromHalfHour(bars []CoinAPIBar) []model.Candle {
	sorted := make([]CoinAPIBar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PeriodStart.Before(sorted[j].PeriodStart)
	})

	byDay := make(map[string][]CoinAPIBar)
	var keys []string
	for _, b := range sorted {
		k := b.PeriodStart.In(eastern).Format(series.DateLayout)
		if _, ok := byDay[k]; !ok {
			keys = append(keys, k)
		}
		byDay[k] = append(byDay[k], b)
	}
	sort.Strings(keys)

	candles := make([]model.Candle, 0, len(keys))
	for _, k := range keys {
		group := byDay[k]
		day, _ := time.Parse(series.DateLayout, k)
		marketOpen := time.Date(day.Year(), day.Month(), day.Day(), 9, 30, 0, 0, eastern)
		marketClose := time.Date(day.Year(), day.Month(), day.Day(), 16, 0, 0, 0, eastern)

		open, ok := openRate(group, marketOpen)
		if !ok {
			continue
		}
		closeRate, ok := closeRate(group, marketClose)
		if !ok {
			// day still in progress; the latest rate stands in for the close
			closeRate = group[len(group)-1].RateClose
		}

		high := math.Inf(-1)
		low := math.Inf(1)
		for _, b := range group {
			high = math.Max(high, b.RateHigh)
			low = math.Min(low, b.RateLow)
		}

		candles = append(candles, model.Candle{
			Time:  day,
			Open:  open,
			High:  high,
			Low:   low,
			Close: closeRate,
		})
	}
	return candles
}

func openRate(group []CoinAPIBar, at time.Time) (float64, bool) {
	for _, b := range group {
		if !b.PeriodStart.After(at) && b.PeriodEnd.After(at) {
			return b.RateOpen, true
		}
	}
	for i := len(group) - 1; i >= 0; i-- {
		if !group[i].PeriodStart.After(at) {
			return group[i].RateClose, true
		}
	}
	return 0, false
}

func closeRate(group []CoinAPIBar, at time.Time) (float64, bool) {
	for _, b := range group {
		if b.PeriodStart.Before(at) && !b.PeriodEnd.Before(at) {
			return b.RateClose, true
		}
	}
	for _, b := range group {
		if !b.PeriodEnd.Before(at) {
			return b.RateOpen, true
		}
	}
	return 0, false
}
