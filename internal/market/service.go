// Package market loads ticker series and serves the weekly and bucket views built from them.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"weekgrid/internal/bucket"
	"weekgrid/internal/cache"
	"weekgrid/internal/provider"
	"weekgrid/internal/series"
	"weekgrid/internal/symbols"
	"weekgrid/internal/weekly"
	"weekgrid/pkg/model"
)

var (
	// ErrUnknownTicker is returned for symbols outside the universe
	ErrUnknownTicker = errors.New("unknown ticker")
	// ErrNoData is returned when a ticker has no stored or fetchable prices
	ErrNoData = errors.New("no data")
	// ErrInvalidArgument marks malformed query input
	ErrInvalidArgument = errors.New("invalid argument")
)

const sentimentScope = "FNG"

// PriceReader loads stored daily bars
type PriceReader interface {
	LoadDaily(ctx context.Context, ticker string, from, to time.Time) ([]model.Candle, error)
}

// Sources picks the price provider per asset class
type Sources struct {
	Crypto provider.PriceProvider
	Equity provider.PriceProvider
}

// For returns the provider serving t, or nil
func (s Sources) For(t model.Ticker) provider.PriceProvider {
	if t.Crypto {
		return s.Crypto
	}
	return s.Equity
}

// Options tunes the service
type Options struct {
	Bins             *bucket.Bins
	BreachThreshold  float64
	RequireSentiment bool
	SentimentLimit   int
	HistoryStart     time.Time
	Workers          int
}

// Service builds dashboard aggregates per ticker.
// Records come from the store when one is configured, otherwise straight from the providers.
type Service struct {
	universe  *symbols.Universe
	store     PriceReader
	sources   Sources
	sentiment provider.SentimentProvider
	cache     cache.Cache
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a service. store and sentiment may be nil.
func NewService(u *symbols.Universe, store PriceReader, sources Sources, sent provider.SentimentProvider, c cache.Cache, opts Options, logger *zap.Logger) *Service {
	if opts.Bins == nil {
		opts.Bins = bucket.Default()
	}
	if opts.BreachThreshold <= 0 {
		opts.BreachThreshold = weekly.DefaultBreachThreshold
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.HistoryStart.IsZero() {
		opts.HistoryStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{
		universe:  u,
		store:     store,
		sources:   sources,
		sentiment: sent,
		cache:     c,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Bins returns the configured bucket partition
func (s *Service) Bins() *bucket.Bins { return s.opts.Bins }

// BreachThreshold returns the grid breach threshold
func (s *Service) BreachThreshold() float64 { return s.opts.BreachThreshold }

// Tickers returns the universe
func (s *Service) Tickers() []model.Ticker { return s.universe.All() }

// Ticker resolves a symbol
func (s *Service) Ticker(symbol string) (model.Ticker, error) {
	t, ok := s.universe.Lookup(symbol)
	if !ok {
		return model.Ticker{}, fmt.Errorf("%w: %s", ErrUnknownTicker, symbol)
	}
	return t, nil
}

// Records returns the validated daily series of symbol with sentiment attached
func (s *Service) Records(ctx context.Context, symbol string) ([]model.DailyRecord, error) {
	t, err := s.Ticker(symbol)
	if err != nil {
		return nil, err
	}

	key := cache.Key(t.Symbol, "records")
	if b, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("Cache read failed", zap.String("ticker", t.Symbol), zap.Error(err))
	} else if ok {
		var records []model.DailyRecord
		if err := json.Unmarshal(b, &records); err == nil {
			return records, nil
		}
	}

	candles, err := s.loadCandles(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, t.Symbol)
	}

	records := series.FromCandles(candles)
	partial := false
	if s.sentiment != nil {
		points, err := s.Sentiment(ctx)
		switch {
		case err == nil:
			records = series.MergeSentiment(records, points, s.opts.RequireSentiment)
		case s.opts.RequireSentiment:
			return nil, fmt.Errorf("loading sentiment: %w", err)
		default:
			s.logger.Warn("Sentiment unavailable, continuing without", zap.Error(err))
			partial = true
		}
	}

	if err := series.Validate(records); err != nil {
		s.logger.Error("Rejected daily series", zap.String("ticker", t.Symbol), zap.Error(err))
		return nil, err
	}

	// records missing sentiment are not cached
	if partial {
		return records, nil
	}
	if b, err := json.Marshal(records); err == nil {
		if err := s.cache.Set(ctx, key, b); err != nil {
			s.logger.Warn("Cache write failed", zap.String("ticker", t.Symbol), zap.Error(err))
		}
	}
	return records, nil
}

func (s *Service) loadCandles(ctx context.Context, t model.Ticker) ([]model.Candle, error) {
	if s.store != nil {
		candles, err := s.store.LoadDaily(ctx, t.Symbol, time.Time{}, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", t.Symbol, err)
		}
		return candles, nil
	}

	p := s.sources.For(t)
	if p == nil || !p.IsAvailable() {
		return nil, fmt.Errorf("%w for %s: no store and no provider configured", ErrNoData, t.Symbol)
	}
	candles, err := p.GetDailyCandles(ctx, t.Symbol, s.opts.HistoryStart, series.Day(s.now()))
	if errors.Is(err, provider.ErrNoData) {
		return nil, fmt.Errorf("%w for %s", ErrNoData, t.Symbol)
	}
	return candles, err
}

// Sentiment returns the Fear & Greed series, cached under its own scope
func (s *Service) Sentiment(ctx context.Context) ([]model.SentimentPoint, error) {
	if s.sentiment == nil {
		return nil, nil
	}
	key := cache.Key(sentimentScope, "points", strconv.Itoa(s.opts.SentimentLimit))
	if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var points []model.SentimentPoint
		if err := json.Unmarshal(b, &points); err == nil {
			return points, nil
		}
	}

	points, err := s.sentiment.GetSentiment(ctx, s.opts.SentimentLimit)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(points); err == nil {
		_ = s.cache.Set(ctx, key, b)
	}
	return points, nil
}

// Weekly aggregates symbol into ISO weeks, keeping the listed ISO years
func (s *Service) Weekly(ctx context.Context, symbol string, years []int) ([]model.WeeklySummary, error) {
	records, err := s.Records(ctx, symbol)
	if err != nil {
		return nil, err
	}
	weeks, err := weekly.Aggregate(records)
	if err != nil {
		return nil, err
	}
	return weekly.FilterYears(weeks, years), nil
}

// Buckets builds the year x bucket table at the given granularity.
// Daily rows use calendar years, weekly rows use ISO years.
func (s *Service) Buckets(ctx context.Context, symbol string, g model.Granularity, years []int) ([]model.BucketRow, error) {
	switch g {
	case model.Daily:
		records, err := s.Records(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return bucket.Daily(series.FilterYears(records, years), s.opts.Bins)
	case model.Weekly:
		weeks, err := s.Weekly(ctx, symbol, years)
		if err != nil {
			return nil, err
		}
		return bucket.Weekly(weeks, s.opts.Bins)
	default:
		return nil, fmt.Errorf("%w: granularity %q", ErrInvalidArgument, g)
	}
}

// Detail lists the members of one bucket cell
type Detail struct {
	Ticker      string                `json:"ticker"`
	Granularity model.Granularity     `json:"granularity"`
	Bucket      string                `json:"bucket"`
	Year        string                `json:"year"`
	Lower       float64               `json:"lower"`
	Upper       float64               `json:"upper"`
	Days        []model.DailyRecord   `json:"days,omitempty"`
	Weeks       []model.WeeklySummary `json:"weeks,omitempty"`
	Count       int                   `json:"count"`
}

// Details drills into one bucket, for one year or model.TotalYear
func (s *Service) Details(ctx context.Context, symbol string, g model.Granularity, label, year string) (*Detail, error) {
	y, err := ParseYear(year)
	if err != nil {
		return nil, err
	}
	idx, err := s.opts.Bins.Lookup(label)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	lower, upper := s.opts.Bins.Interval(idx)

	d := &Detail{Ticker: strings.ToUpper(symbol), Granularity: g, Bucket: label, Year: year, Lower: lower, Upper: upper}
	if y == 0 {
		d.Year = model.TotalYear
	}

	switch g {
	case model.Daily:
		records, err := s.Records(ctx, symbol)
		if err != nil {
			return nil, err
		}
		d.Days, err = bucket.Members(records, bucket.DailySelector, s.opts.Bins, label, y)
		if err != nil {
			return nil, err
		}
		d.Count = len(d.Days)
	case model.Weekly:
		weeks, err := s.Weekly(ctx, symbol, nil)
		if err != nil {
			return nil, err
		}
		d.Weeks, err = bucket.Members(weeks, bucket.WeeklySelector, s.opts.Bins, label, y)
		if err != nil {
			return nil, err
		}
		d.Count = len(d.Weeks)
	default:
		return nil, fmt.Errorf("%w: granularity %q", ErrInvalidArgument, g)
	}
	return d, nil
}

// Grid returns the calendar grid of one ISO year; year 0 picks the latest
func (s *Service) Grid(ctx context.Context, symbol string, year int) ([]model.GridWeek, error) {
	weeks, err := s.Weekly(ctx, symbol, nil)
	if err != nil {
		return nil, err
	}
	if year == 0 && len(weeks) > 0 {
		year = weeks[len(weeks)-1].ISOYear
	}
	return weekly.Grid(weeks, year, s.opts.BreachThreshold), nil
}

// Overview summarizes tickers in parallel. Failures are reported per ticker.
func (s *Service) Overview(ctx context.Context, tickers []model.Ticker) []model.TickerOverview {
	if len(tickers) == 0 {
		tickers = s.universe.All()
	}

	out := make([]model.TickerOverview, len(tickers))
	jobs := make(chan int, len(tickers))
	for i := range tickers {
		jobs <- i
	}
	close(jobs)

	var done int64
	var wg sync.WaitGroup
	for w := 0; w < s.opts.Workers && w < len(tickers); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = s.overview(ctx, tickers[i])
				n := atomic.AddInt64(&done, 1)
				s.logger.Debug("Overview progress", zap.Int64("done", n), zap.Int("total", len(tickers)))
			}
		}()
	}
	wg.Wait()
	return out
}

func (s *Service) overview(ctx context.Context, t model.Ticker) model.TickerOverview {
	ov := model.TickerOverview{Ticker: t}
	if ctx.Err() != nil {
		ov.Error = ctx.Err().Error()
		return ov
	}

	records, err := s.Records(ctx, t.Symbol)
	if err != nil {
		ov.Error = err.Error()
		return ov
	}
	weeks, err := weekly.Aggregate(records)
	if err != nil {
		ov.Error = err.Error()
		return ov
	}

	ov.Days = len(records)
	ov.Weeks = len(weeks)
	ov.FirstDate = records[0].Date
	ov.LatestDate = records[len(records)-1].Date
	ov.LatestClose = records[len(records)-1].Close
	if len(weeks) > 0 {
		last := weeks[len(weeks)-1]
		ov.LastWeek = &model.GridWeek{WeeklySummary: last, Breach: weekly.Breach(last.MaxExcursion, s.opts.BreachThreshold)}
	}
	return ov
}

// Invalidate drops cached data of symbol
func (s *Service) Invalidate(ctx context.Context, symbol string) error {
	n, err := s.cache.InvalidatePrefix(ctx, cache.Prefix(symbol))
	if err != nil {
		return err
	}
	s.logger.Debug("Cache invalidated", zap.String("ticker", symbol), zap.Int("entries", n))
	return nil
}

// InvalidateAll drops every cached entry, sentiment included
func (s *Service) InvalidateAll(ctx context.Context) error {
	return s.cache.Flush(ctx)
}

// ParseYear reads a year filter; "" and model.TotalYear mean all years
func ParseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, model.TotalYear) {
		return 0, nil
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1900 || y > 9999 {
		return 0, fmt.Errorf("%w: year %q", ErrInvalidArgument, s)
	}
	return y, nil
}

// ParseYears reads "2023,2024" style lists
func ParseYears(s string) ([]int, error) {
	var years []int
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		y, err := ParseYear(part)
		if err != nil {
			return nil, err
		}
		if y != 0 {
			years = append(years, y)
		}
	}
	return years, nil
}

// ParseGranularity reads "daily" or "weekly"; empty means weekly
func ParseGranularity(s string) (model.Granularity, error) {
	switch model.Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case "", model.Weekly:
		return model.Weekly, nil
	case model.Daily:
		return model.Daily, nil
	}
	return "", fmt.Errorf("%w: granularity %q", ErrInvalidArgument, s)
}
