package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"weekgrid/pkg/model"
)

type fakeRefresher struct {
	mu      sync.Mutex
	calls   [][]string
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRefresher) RefreshAll(_ context.Context, tickers []model.Ticker, _ func(int, int, model.RefreshResult)) []model.RefreshResult {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	syms := make([]string, len(tickers))
	out := make([]model.RefreshResult, len(tickers))
	for i, t := range tickers {
		syms[i] = t.Symbol
		out[i] = model.RefreshResult{Ticker: t.Symbol, Status: "success"}
	}
	f.calls = append(f.calls, syms)
	return out
}

var universe = []model.Ticker{
	{Symbol: "BTC", Crypto: true},
	{Symbol: "TSLA"},
}

func TestSessionStatus(t *testing.T) {
	s := DefaultSession()
	et := s.Location
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2024, 1, 10, 9, 29, 0, 0, et), StatePreMarket},
		{time.Date(2024, 1, 10, 9, 30, 0, 0, et), StateOpen},
		{time.Date(2024, 1, 10, 15, 59, 0, 0, et), StateOpen},
		{time.Date(2024, 1, 10, 16, 0, 0, 0, et), StateAfterHours},
		{time.Date(2024, 1, 13, 12, 0, 0, 0, et), StateWeekend},
		{time.Date(2024, 1, 15, 12, 0, 0, 0, et), StateHoliday},
		// 02:00 UTC on Thursday is still Wednesday evening in New York
		{time.Date(2024, 1, 11, 2, 0, 0, 0, time.UTC), StateAfterHours},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Status(tt.at).State, tt.at.String())
	}
	assert.True(t, s.Status(time.Date(2024, 1, 10, 10, 0, 0, 0, et)).Open())
}

func TestDue(t *testing.T) {
	weekday := Status{State: StateAfterHours}
	assert.Len(t, Due(universe, weekday), 2)

	weekend := Status{State: StateWeekend}
	due := Due(universe, weekend)
	require.Len(t, due, 1)
	assert.Equal(t, "BTC", due[0].Symbol)

	assert.Len(t, Due(universe, Status{State: StateHoliday}), 1)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(-time.Second))
	assert.Equal(t, "45m", FormatDuration(45*time.Minute))
	assert.Equal(t, "2h 5m", FormatDuration(2*time.Hour+5*time.Minute))
}

func TestRefreshTask_SkipsEquitiesOnWeekend(t *testing.T) {
	f := &fakeRefresher{}
	s := New(context.Background(), f, universe, zap.NewNop())
	s.now = func() time.Time { return time.Date(2024, 1, 13, 22, 30, 0, 0, time.UTC) }

	s.refreshTask()
	s.now = func() time.Time { return time.Date(2024, 1, 16, 22, 30, 0, 0, time.UTC) }
	s.refreshTask()

	require.Len(t, f.calls, 2)
	assert.Equal(t, []string{"BTC"}, f.calls[0])
	assert.Equal(t, []string{"BTC", "TSLA"}, f.calls[1])
}

func TestRunNow_NoOverlap(t *testing.T) {
	f := &fakeRefresher{block: make(chan struct{}), started: make(chan struct{})}
	s := New(context.Background(), f, universe, zap.NewNop())

	done := make(chan []model.RefreshResult)
	go func() { done <- s.RunNow() }()
	<-f.started

	assert.Nil(t, s.RunNow())
	close(f.block)
	assert.Len(t, <-done, 2)
}

func TestRegisterRefresh(t *testing.T) {
	s := New(context.Background(), &fakeRefresher{}, universe, zap.NewNop())
	assert.True(t, s.Next().IsZero())

	require.Error(t, s.RegisterRefresh("not a schedule"))
	require.NoError(t, s.RegisterRefresh("0 30 17 * * *"))

	s.Start()
	defer s.Stop()
	next := s.Next()
	require.False(t, next.IsZero())
	assert.Equal(t, 17, next.Hour())
	assert.Equal(t, 30, next.Minute())
}

func TestRegisterRefresh_UsesExchangeTimeZone(t *testing.T) {
	local := time.Local
	time.Local = time.UTC
	defer func() { time.Local = local }()

	s := New(context.Background(), &fakeRefresher{}, universe, zap.NewNop())
	require.NoError(t, s.RegisterRefresh("0 30 17 * * *"))
	s.Start()
	defer s.Stop()

	next := s.Next().In(DefaultSession().Location)
	require.False(t, next.IsZero())
	assert.Equal(t, 17, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.NotEqual(t, 17, next.UTC().Hour())
}
