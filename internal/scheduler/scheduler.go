// Package scheduler runs the periodic data refresh.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"weekgrid/pkg/model"
)

// Refresher updates stored bars for a set of tickers
type Refresher interface {
	RefreshAll(ctx context.Context, tickers []model.Ticker, progress func(done, total int, r model.RefreshResult)) []model.RefreshResult
}

// Scheduler triggers refreshes on a cron schedule
type Scheduler struct {
	cron    *cron.Cron
	updater Refresher
	tickers []model.Ticker
	session Session
	logger  *zap.Logger
	ctx     context.Context

	running atomic.Bool
	entry   cron.EntryID
	now     func() time.Time
}

// New creates a scheduler. Jobs run with ctx and stop when it is cancelled.
// Cron expressions are read in the exchange time zone, not the host's.
func New(ctx context.Context, updater Refresher, tickers []model.Ticker, logger *zap.Logger) *Scheduler {
	session := DefaultSession()
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(session.Location)),
		updater: updater,
		tickers: tickers,
		session: session,
		logger:  logger,
		ctx:     ctx,
		now:     time.Now,
	}
}

// RegisterRefresh schedules the refresh job. The cron expression has six fields, seconds first.
func (s *Scheduler) RegisterRefresh(spec string) error {
	id, err := s.cron.AddFunc(spec, s.refreshTask)
	if err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	s.entry = id
	return nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	if next := s.Next(); !next.IsZero() {
		s.logger.Info("Scheduler started",
			zap.Time("next_run", next),
			zap.String("in", FormatDuration(next.Sub(s.now()))))
		return
	}
	s.logger.Info("Scheduler started")
}

// Stop stops the scheduler and waits for a running job
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Next returns the next scheduled run, zero when nothing is registered
func (s *Scheduler) Next() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// RunNow refreshes every ticker immediately. It returns nil when a run is already in progress.
func (s *Scheduler) RunNow() []model.RefreshResult {
	return s.run(s.tickers)
}

func (s *Scheduler) refreshTask() {
	st := s.session.Status(s.now())
	tickers := Due(s.tickers, st)
	if len(tickers) < len(s.tickers) {
		s.logger.Info("Skipping equities, no session today", zap.String("state", st.State))
	}
	s.run(tickers)
}

func (s *Scheduler) run(tickers []model.Ticker) []model.RefreshResult {
	if len(tickers) == 0 {
		return nil
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Refresh already running, skipping")
		return nil
	}
	defer s.running.Store(false)

	start := s.now()
	s.logger.Info("Running scheduled refresh", zap.Int("tickers", len(tickers)))
	results := s.updater.RefreshAll(s.ctx, tickers, nil)

	counts := make(map[string]int)
	for _, r := range results {
		counts[r.Status]++
	}
	s.logger.Info("Scheduled refresh finished",
		zap.Duration("elapsed", s.now().Sub(start)),
		zap.Any("statuses", counts))
	return results
}

// Due returns the tickers worth refreshing in state st.
// Crypto trades every day. Equities print no bar on weekends or holidays.
func Due(tickers []model.Ticker, st Status) []model.Ticker {
	if st.TradingDay() {
		return tickers
	}
	out := make([]model.Ticker, 0, len(tickers))
	for _, t := range tickers {
		if t.Crypto {
			out = append(out, t)
		}
	}
	return out
}
