package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"weekgrid/internal/provider"
	"weekgrid/pkg/model"
)

type recordingInvalidator struct {
	mu      sync.Mutex
	symbols []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols = append(r.symbols, symbol)
	return nil
}

func newTestUpdater(store PriceWriter, sources Sources, today time.Time, inv ...Invalidator) *Updater {
	u := NewUpdater(store, sources, day(2024, 1, 1), 2, zap.NewNop(), inv...)
	u.now = func() time.Time { return today.Add(20 * time.Hour) }
	n := 0
	var mu sync.Mutex
	u.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("run-%d", n)
	}
	return u
}

var (
	tsla = model.Ticker{Symbol: "TSLA", Name: "Tesla"}
	btc  = model.Ticker{Symbol: "BTC", Name: "Bitcoin", Crypto: true}
)

func TestRefresh_EmptyStoreStartsAtHistory(t *testing.T) {
	store := newFakeStore()
	equity := &fakeProvider{name: "fake", candles: fixtureCandles()}
	inv := &recordingInvalidator{}
	u := newTestUpdater(store, Sources{Equity: equity}, day(2024, 1, 17), inv)

	res, err := u.Refresh(context.Background(), tsla)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 5, res.Inserted)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, "2024-01-17", res.LatestDate)
	assert.Equal(t, "TSLA: Inserted 5, Updated 0 records. Latest: 2024-01-17", res.Message)
	assert.Equal(t, "run-1", res.RunID)

	require.Len(t, equity.calls, 1)
	assert.Equal(t, day(2024, 1, 1), equity.calls[0][0])
	assert.Equal(t, day(2024, 1, 17), equity.calls[0][1])

	require.Len(t, store.runs, 1)
	assert.Equal(t, res, store.runs[0])
	assert.Equal(t, []string{"TSLA"}, inv.symbols)
}

func TestRefresh_EquityRefetchesLatestDay(t *testing.T) {
	store := newFakeStore()
	store.bars["TSLA"] = fixtureCandles()[:4]
	equity := &fakeProvider{name: "fake", candles: fixtureCandles()}
	u := newTestUpdater(store, Sources{Equity: equity}, day(2024, 1, 17))

	res, err := u.Refresh(context.Background(), tsla)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 16), equity.calls[0][0])
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, "2024-01-17", res.LatestDate)
}

func TestRefresh_CryptoResumesNextDay(t *testing.T) {
	store := newFakeStore()
	store.bars["BTC"] = fixtureCandles()
	crypto := &fakeProvider{name: "coinapi", candles: append(fixtureCandles(),
		model.Candle{Time: day(2024, 1, 18), Open: 95, High: 99, Low: 94, Close: 98})}
	u := newTestUpdater(store, Sources{Crypto: crypto}, day(2024, 1, 18))

	res, err := u.Refresh(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 18), crypto.calls[0][0])
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Updated)

	again, err := u.Refresh(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, again.Status)
	assert.Equal(t, "2024-01-18", again.LatestDate)
	assert.Len(t, crypto.calls, 1)
}

func TestRefresh_NoDataAndFailures(t *testing.T) {
	store := newFakeStore()
	inv := &recordingInvalidator{}
	empty := &fakeProvider{name: "empty"}
	u := newTestUpdater(store, Sources{Equity: empty}, day(2024, 1, 17), inv)

	res, err := u.Refresh(context.Background(), tsla)
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, res.Status)

	empty.err = &provider.ProviderError{Provider: "empty", Err: provider.ErrNoData}
	res, err = u.Refresh(context.Background(), tsla)
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, res.Status)

	empty.err = errors.New("boom")
	res, err = u.Refresh(context.Background(), tsla)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Message, "boom")

	res, err = u.Refresh(context.Background(), btc)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)

	assert.Len(t, store.runs, 4)
	assert.Empty(t, inv.symbols)
}

func TestRefresh_RejectsBadBars(t *testing.T) {
	store := newFakeStore()
	bad := &fakeProvider{name: "bad", candles: []model.Candle{
		{Time: day(2024, 1, 8), Open: 100, High: 101, Low: -1, Close: 100},
	}}
	u := newTestUpdater(store, Sources{Equity: bad}, day(2024, 1, 17))

	res, err := u.Refresh(context.Background(), tsla)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Message, "low_price")
	assert.Empty(t, store.bars["TSLA"])
}

func TestRefresh_WithoutStoreDropsCache(t *testing.T) {
	inv := &recordingInvalidator{}
	u := newTestUpdater(nil, Sources{}, day(2024, 1, 17), inv)

	res, err := u.Refresh(context.Background(), tsla)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []string{"TSLA"}, inv.symbols)

	history, err := u.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRefreshAll(t *testing.T) {
	store := newFakeStore()
	equity := &fakeProvider{name: "fake", candles: fixtureCandles()}
	u := newTestUpdater(store, Sources{Equity: equity}, day(2024, 1, 17))

	tickers := []model.Ticker{tsla, {Symbol: "MSTR"}, {Symbol: "HOOD"}, btc}
	var calls []int
	results := u.RefreshAll(context.Background(), tickers, func(done, total int, r model.RefreshResult) {
		assert.Equal(t, 4, total)
		calls = append(calls, done)
	})

	require.Len(t, results, 4)
	for i, r := range results[:3] {
		assert.Equal(t, tickers[i].Symbol, r.Ticker)
		assert.Equal(t, StatusSuccess, r.Status)
	}
	assert.Equal(t, StatusFailed, results[3].Status)
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, calls)

	history, err := u.History(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRefreshAll_Cancelled(t *testing.T) {
	store := newFakeStore()
	equity := &fakeProvider{name: "fake", candles: fixtureCandles()}
	u := newTestUpdater(store, Sources{Equity: equity}, day(2024, 1, 17))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := u.RefreshAll(ctx, []model.Ticker{tsla, {Symbol: "HOOD"}}, nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, StatusFailed, r.Status)
	}
	assert.Empty(t, equity.calls)
}
