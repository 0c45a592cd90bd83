package symbols

import (
	"sort"
	"strings"

	"weekgrid/pkg/model"
)

// Default returns the tracked tickers: one cryptocurrency and three equities
func Default() []model.Ticker {
	return []model.Ticker{
		{Symbol: "BTC", Name: "Bitcoin", Crypto: true},
		{Symbol: "MSTR", Name: "MicroStrategy Inc."},
		{Symbol: "TSLA", Name: "Tesla Inc."},
		{Symbol: "HOOD", Name: "Robinhood Markets Inc."},
	}
}

// Universe is the set of tickers the dashboard serves
type Universe struct {
	order   []string
	tickers map[string]model.Ticker
}

// NewUniverse indexes tickers by upper-case symbol, keeping their order
func NewUniverse(tickers []model.Ticker) *Universe {
	u := &Universe{tickers: make(map[string]model.Ticker, len(tickers))}
	for _, t := range tickers {
		t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
		if t.Name == "" {
			t.Name = t.Symbol
		}
		if _, dup := u.tickers[t.Symbol]; dup {
			continue
		}
		u.order = append(u.order, t.Symbol)
		u.tickers[t.Symbol] = t
	}
	return u
}

// Lookup finds a ticker by symbol, case-insensitively
func (u *Universe) Lookup(symbol string) (model.Ticker, bool) {
	t, ok := u.tickers[strings.ToUpper(strings.TrimSpace(symbol))]
	return t, ok
}

// All returns the tickers in configured order
func (u *Universe) All() []model.Ticker {
	out := make([]model.Ticker, len(u.order))
	for i, s := range u.order {
		out[i] = u.tickers[s]
	}
	return out
}

// Symbols returns the sorted symbols
func (u *Universe) Symbols() []string {
	out := append([]string(nil), u.order...)
	sort.Strings(out)
	return out
}
