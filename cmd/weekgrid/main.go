package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"weekgrid/internal/market"
	"weekgrid/internal/scheduler"
	"weekgrid/internal/web"
	"weekgrid/pkg/model"
)

var (
	cfgFile  string
	format   string
	verbose  bool
	years    string
	mode     string
	bucketID string
	year     string
	limit    int
	fngLimit int
	runNow   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "weekgrid",
		Short: "Weekly aggregation and change-bucket analysis for price and sentiment series",
		Long: `Weekgrid groups daily bars into ISO weeks, buckets daily and weekly changes
into fixed ranges, and serves the results over HTTP.

Examples:
  weekgrid refresh
  weekgrid buckets TSLA --mode daily --years 2023,2024
  weekgrid details BTC --bucket "(-0.05, 0.0]" --year 2024
  weekgrid serve`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "output format: table, json")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the refresh scheduler",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().BoolVar(&runNow, "refresh-on-start", false, "refresh all tickers before serving")

	weeklyCmd := &cobra.Command{
		Use:   "weekly TICKER",
		Short: "Show ISO-week summaries",
		Args:  cobra.ExactArgs(1),
		RunE:  runWeekly,
	}
	weeklyCmd.Flags().StringVar(&years, "years", "", "comma-separated ISO years")

	bucketsCmd := &cobra.Command{
		Use:   "buckets TICKER",
		Short: "Show the year x bucket distribution",
		Args:  cobra.ExactArgs(1),
		RunE:  runBuckets,
	}
	bucketsCmd.Flags().StringVar(&years, "years", "", "comma-separated years")
	bucketsCmd.Flags().StringVar(&mode, "mode", "weekly", "granularity: daily, weekly")

	detailsCmd := &cobra.Command{
		Use:   "details TICKER",
		Short: "List the days or weeks inside one bucket",
		Args:  cobra.ExactArgs(1),
		RunE:  runDetails,
	}
	detailsCmd.Flags().StringVar(&bucketID, "bucket", "", `bucket label, e.g. "(0.0, 0.05]"`)
	detailsCmd.Flags().StringVar(&year, "year", "", "year, empty for all")
	detailsCmd.Flags().StringVar(&mode, "mode", "weekly", "granularity: daily, weekly")
	_ = detailsCmd.MarkFlagRequired("bucket")

	gridCmd := &cobra.Command{
		Use:   "grid TICKER",
		Short: "Show the weekly breach grid of one ISO year",
		Args:  cobra.ExactArgs(1),
		RunE:  runGrid,
	}
	gridCmd.Flags().StringVar(&year, "year", "", "ISO year, empty for the latest")

	refreshCmd := &cobra.Command{
		Use:   "refresh [TICKER...]",
		Short: "Fetch new daily bars into the store",
		RunE:  runRefresh,
	}

	overviewCmd := &cobra.Command{
		Use:   "overview",
		Short: "Summarize every ticker",
		Args:  cobra.NoArgs,
		RunE:  runOverview,
	}

	sentimentCmd := &cobra.Command{
		Use:   "sentiment",
		Short: "Show recent Fear & Greed readings and market regimes",
		Args:  cobra.NoArgs,
		RunE:  runSentiment,
	}
	sentimentCmd.Flags().IntVar(&fngLimit, "limit", 14, "number of recent readings")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent refresh runs",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "number of runs")

	probeCmd := &cobra.Command{
		Use:   "probe [TICKER...]",
		Short: "Fetch recent bars from every configured provider",
		RunE:  runProbe,
	}
	probeCmd.Flags().IntVar(&probeDays, "days", 30, "calendar days to fetch")

	rootCmd.AddCommand(serveCmd, weeklyCmd, bucketsCmd, detailsCmd, gridCmd, refreshCmd, overviewCmd, sentimentCmd, historyCmd, probeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var sched *scheduler.Scheduler
	if a.store != nil && a.cfg.Refresh.Schedule != "" {
		sched = scheduler.New(ctx, a.updater, a.markets.Tickers(), a.logger)
		if err := sched.RegisterRefresh(a.cfg.Refresh.Schedule); err != nil {
			return err
		}
		if runNow {
			sched.RunNow()
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := web.NewServer(a.cfg.Server, a.markets, a.updater, a.cfg.Refresh.Timeout, a.logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.logger.Error("Server failed", zap.Error(err))
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	a.logger.Info("Server exited properly")
	return nil
}

func runWeekly(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ys, err := market.ParseYears(years)
	if err != nil {
		return err
	}
	weeks, err := a.markets.Weekly(ctx, args[0], ys)
	if err != nil {
		return err
	}
	if format == "json" {
		return outputJSON(weeks)
	}
	return outputWeeks(weeks)
}

func runBuckets(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	g, err := market.ParseGranularity(mode)
	if err != nil {
		return err
	}
	ys, err := market.ParseYears(years)
	if err != nil {
		return err
	}
	rows, err := a.markets.Buckets(ctx, args[0], g, ys)
	if err != nil {
		return err
	}
	if format == "json" {
		return outputJSON(rows)
	}
	return outputBuckets(rows, a.markets.Bins().Labels())
}

func runDetails(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	g, err := market.ParseGranularity(mode)
	if err != nil {
		return err
	}
	d, err := a.markets.Details(ctx, args[0], g, bucketID, year)
	if err != nil {
		return err
	}
	if format == "json" {
		return outputJSON(d)
	}
	fmt.Printf("%s %s bucket %s, year %s: %d\n\n", d.Ticker, d.Granularity, d.Bucket, d.Year, d.Count)
	if g == model.Daily {
		return outputDays(d.Days)
	}
	return outputWeeks(d.Weeks)
}

func runGrid(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	y, err := market.ParseYear(year)
	if err != nil {
		return err
	}
	grid, err := a.markets.Grid(ctx, args[0], y)
	if err != nil {
		return err
	}
	if format == "json" {
		return outputJSON(grid)
	}
	return outputGrid(grid, a.markets.BreachThreshold())
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.store == nil {
		return fmt.Errorf("refresh needs a database; set database.dsn or DATABASE_URL")
	}

	tickers, err := a.universe.Resolve(args)
	if err != nil {
		return err
	}

	fmt.Printf("Refreshing %d tickers...\n\n", len(tickers))
	bar := progressbar.NewOptions(len(tickers),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Refreshing"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	rctx, cancel := a.refreshContext(ctx)
	defer cancel()
	start := time.Now()
	results := a.updater.RefreshAll(rctx, tickers, func(done, total int, r model.RefreshResult) {
		bar.Set(done)
	})
	bar.Finish()
	fmt.Println()

	if format == "json" {
		return outputJSON(results)
	}
	if err := outputRefreshes(results); err != nil {
		return err
	}
	fmt.Printf("\nRefreshed %d tickers in %s\n", len(results), time.Since(start).Round(time.Second))

	for _, r := range results {
		if r.Status == market.StatusFailed {
			return fmt.Errorf("%s refresh failed", r.Ticker)
		}
	}
	return nil
}

func runOverview(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := a.markets.Overview(ctx, nil)
	if format == "json" {
		return outputJSON(out)
	}
	return outputOverview(out, a.markets.BreachThreshold())
}

func runSentiment(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	points, err := a.markets.Sentiment(ctx)
	if err != nil {
		return err
	}
	if fngLimit > 0 && len(points) > fngLimit {
		points = points[len(points)-fngLimit:]
	}
	if format == "json" {
		return outputJSON(points)
	}
	return outputSentiment(points)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.updater.History(ctx, limit)
	if err != nil {
		return err
	}
	if format == "json" {
		return outputJSON(runs)
	}
	return outputRefreshes(runs)
}
