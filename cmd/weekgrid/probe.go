package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"weekgrid/internal/provider"
	"weekgrid/internal/series"
	"weekgrid/internal/weekly"
	"weekgrid/pkg/model"
)

var probeDays int

// runProbe asks every configured provider for recent bars of each ticker
func runProbe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tickers, err := a.universe.Resolve(args)
	if err != nil {
		return err
	}
	equities, crypto := rawProviders(a.cfg)
	end := series.Day(time.Now())
	start := end.AddDate(0, 0, -probeDays)

	fmt.Printf("=== Provider probe %s to %s ===\n", start.Format(series.DateLayout), end.Format(series.DateLayout))
	for _, t := range tickers {
		fmt.Printf("\n[%s] %s\n", t.Symbol, t.Name)
		candidates := equities
		if t.Crypto {
			candidates = nil
			if crypto != nil {
				candidates = []provider.PriceProvider{crypto}
			}
		}
		if len(candidates) == 0 {
			fmt.Println("    no provider configured")
			continue
		}
		for _, p := range candidates {
			probeOne(ctx, p, t, start, end)
		}
	}
	fmt.Println("\n=== Probe complete ===")
	return nil
}

func probeOne(ctx context.Context, p provider.PriceProvider, t model.Ticker, start, end time.Time) {
	began := time.Now()
	candles, err := p.GetDailyCandles(ctx, t.Symbol, start, end)
	elapsed := time.Since(began)
	if err != nil {
		fmt.Printf("    %-12s ERROR: %v (%.1fs)\n", p.Name(), err, elapsed.Seconds())
		return
	}
	if len(candles) == 0 {
		fmt.Printf("    %-12s no bars (%.1fs)\n", p.Name(), elapsed.Seconds())
		return
	}

	last := candles[len(candles)-1]
	records := series.FromCandles(candles)
	quality := "ok"
	if err := series.Validate(records); err != nil {
		quality = err.Error()
	}
	weeks, _ := weekly.Aggregate(records)
	fmt.Printf("    %-12s %d bars, %d weeks in %.1fs, last %s O=%.2f H=%.2f L=%.2f C=%.2f, quality %s\n",
		p.Name(), len(candles), len(weeks), elapsed.Seconds(),
		last.Time.Format(series.DateLayout), last.Open, last.High, last.Low, last.Close, quality)
}
