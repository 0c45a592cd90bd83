package symbols

import (
	"fmt"
	"strings"

	"weekgrid/pkg/model"
)

// Resolve turns user input such as "btc,TSLA" into known tickers.
// An empty input selects the whole universe.
func (u *Universe) Resolve(input []string) ([]model.Ticker, error) {
	var syms []string
	for _, s := range input {
		for _, part := range strings.Split(s, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				syms = append(syms, part)
			}
		}
	}
	if len(syms) == 0 {
		return u.All(), nil
	}

	out := make([]model.Ticker, 0, len(syms))
	seen := make(map[string]bool, len(syms))
	for _, sym := range syms {
		if !isValidSymbol(sym) {
			return nil, fmt.Errorf("invalid symbol %q", sym)
		}
		t, ok := u.Lookup(sym)
		if !ok {
			return nil, fmt.Errorf("unknown ticker %s (known: %s)", sym, strings.Join(u.Symbols(), ", "))
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, t)
	}
	return out, nil
}

// isValidSymbol checks if a symbol is a standard ticker
func isValidSymbol(symbol string) bool {
	if len(symbol) == 0 || len(symbol) > 5 {
		return false
	}
	for _, c := range symbol {
		if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
			return false
		}
	}
	return true
}
