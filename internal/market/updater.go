package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"weekgrid/internal/provider"
	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

// Refresh statuses
const (
	StatusSuccess  = "success"
	StatusUpToDate = "up_to_date"
	StatusNoData   = "no_data"
	StatusFailed   = "failed"
)

// PriceWriter persists fetched bars and refresh runs
type PriceWriter interface {
	LatestDate(ctx context.Context, ticker string) (time.Time, bool, error)
	UpsertDaily(ctx context.Context, ticker string, candles []model.Candle) (inserted, updated int, err error)
	RecordRefresh(ctx context.Context, r model.RefreshResult) error
	RecentRefreshes(ctx context.Context, limit int) ([]model.RefreshResult, error)
}

// Invalidator drops cached aggregates of a ticker
type Invalidator interface {
	Invalidate(ctx context.Context, symbol string) error
}

// Updater pulls new daily bars from the providers into the store
type Updater struct {
	store        PriceWriter
	sources      Sources
	invalidators []Invalidator
	historyStart time.Time
	workers      int
	logger       *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewUpdater creates an updater. A nil store turns refreshes into cache drops.
func NewUpdater(store PriceWriter, sources Sources, historyStart time.Time, workers int, logger *zap.Logger, invalidators ...Invalidator) *Updater {
	if workers < 1 {
		workers = 1
	}
	if historyStart.IsZero() {
		historyStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Updater{
		store:        store,
		sources:      sources,
		invalidators: invalidators,
		historyStart: series.Day(historyStart),
		workers:      workers,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Refresh fetches bars newer than the stored ones for t.
// Crypto resumes the day after the latest stored bar. Equities refetch the latest day, which may have been partial.
func (u *Updater) Refresh(ctx context.Context, t model.Ticker) (model.RefreshResult, error) {
	res := model.RefreshResult{RunID: u.newID(), Ticker: t.Symbol, StartedAt: u.now().UTC()}
	err := u.refresh(ctx, t, &res)
	res.FinishedAt = u.now().UTC()
	if err != nil {
		res.Status = StatusFailed
		res.Message = fmt.Sprintf("%s: %v", t.Symbol, err)
		u.logger.Error("Refresh failed", zap.String("ticker", t.Symbol), zap.Error(err))
	} else {
		u.logger.Info("Refresh finished",
			zap.String("ticker", t.Symbol),
			zap.String("status", res.Status),
			zap.Int("inserted", res.Inserted),
			zap.Int("updated", res.Updated))
	}

	if u.store != nil {
		if rerr := u.store.RecordRefresh(context.WithoutCancel(ctx), res); rerr != nil {
			u.logger.Warn("Failed to record refresh run", zap.String("ticker", t.Symbol), zap.Error(rerr))
		}
	}
	if res.Status == StatusSuccess || u.store == nil {
		for _, inv := range u.invalidators {
			if ierr := inv.Invalidate(ctx, t.Symbol); ierr != nil {
				u.logger.Warn("Cache invalidation failed", zap.String("ticker", t.Symbol), zap.Error(ierr))
			}
		}
	}
	return res, err
}

func (u *Updater) refresh(ctx context.Context, t model.Ticker, res *model.RefreshResult) error {
	if u.store == nil {
		res.Status = StatusSuccess
		res.Message = fmt.Sprintf("%s: no store configured, cached data dropped", t.Symbol)
		return nil
	}

	p := u.sources.For(t)
	if p == nil || !p.IsAvailable() {
		return errors.New("no provider configured")
	}

	latest, ok, err := u.store.LatestDate(ctx, t.Symbol)
	if err != nil {
		return fmt.Errorf("reading latest date: %w", err)
	}
	start := u.historyStart
	if ok {
		start = latest
		if t.Crypto {
			start = latest.AddDate(0, 0, 1)
		}
	}
	end := series.Day(u.now())
	if ok {
		res.LatestDate = latest.Format(series.DateLayout)
	}

	if start.After(end) {
		res.Status = StatusUpToDate
		res.Message = fmt.Sprintf("%s: already up to date", t.Symbol)
		return nil
	}

	u.logger.Debug("Fetching bars",
		zap.String("ticker", t.Symbol),
		zap.String("provider", p.Name()),
		zap.String("start", start.Format(series.DateLayout)),
		zap.String("end", end.Format(series.DateLayout)))

	candles, err := p.GetDailyCandles(ctx, t.Symbol, start, end)
	if errors.Is(err, provider.ErrNoData) || (err == nil && len(candles) == 0) {
		res.Status = StatusNoData
		res.Message = fmt.Sprintf("%s: no new data from %s", t.Symbol, p.Name())
		return nil
	}
	if err != nil {
		return err
	}

	if err := series.Validate(series.FromCandles(candles)); err != nil {
		return err
	}

	inserted, updated, err := u.store.UpsertDaily(ctx, t.Symbol, candles)
	if err != nil {
		return fmt.Errorf("storing bars: %w", err)
	}

	newest := candles[0].Time
	for _, c := range candles[1:] {
		if c.Time.After(newest) {
			newest = c.Time
		}
	}
	res.Status = StatusSuccess
	res.Inserted = inserted
	res.Updated = updated
	res.LatestDate = newest.Format(series.DateLayout)
	res.Message = fmt.Sprintf("%s: Inserted %d, Updated %d records. Latest: %s", t.Symbol, inserted, updated, res.LatestDate)
	return nil
}

// RefreshAll refreshes tickers with a bounded worker pool.
// progress, when set, is called once per finished ticker. Results keep the input order.
func (u *Updater) RefreshAll(ctx context.Context, tickers []model.Ticker, progress func(done, total int, r model.RefreshResult)) []model.RefreshResult {
	results := make([]model.RefreshResult, len(tickers))
	jobs := make(chan int, len(tickers))
	for i := range tickers {
		jobs <- i
	}
	close(jobs)

	var (
		done int64
		mu   sync.Mutex
		wg   sync.WaitGroup
	)
	for w := 0; w < u.workers && w < len(tickers); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					now := u.now().UTC()
					results[i] = model.RefreshResult{
						RunID: u.newID(), Ticker: tickers[i].Symbol, Status: StatusFailed,
						Message: ctx.Err().Error(), StartedAt: now, FinishedAt: now,
					}
				} else {
					results[i], _ = u.Refresh(ctx, tickers[i])
				}
				n := atomic.AddInt64(&done, 1)
				if progress != nil {
					mu.Lock()
					progress(int(n), len(tickers), results[i])
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return results
}

// History returns recent refresh runs, newest first
func (u *Updater) History(ctx context.Context, limit int) ([]model.RefreshResult, error) {
	if u.store == nil {
		return nil, nil
	}
	return u.store.RecentRefreshes(ctx, limit)
}
