package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/guregu/null/v6"
	"github.com/olekukonko/tablewriter"

	"weekgrid/internal/bucket"
	"weekgrid/internal/sentiment"
	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

func outputJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func pct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v*100)
}

func score(v null.Float) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf("%.0f", v.Float64)
}

func outputWeeks(weeks []model.WeeklySummary) error {
	if len(weeks) == 0 {
		fmt.Println("No weeks found.")
		return nil
	}
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Week", "Start", "End", "Open", "Close", "Change", "High Exc", "Low Exc", "F&G Avg"}),
	)
	for _, w := range weeks {
		table.Append([]string{
			bucket.WeekID(w),
			w.WeekStart.Format(series.DateLayout),
			w.WeekEnd.Format(series.DateLayout),
			fmt.Sprintf("%.2f", w.OpenPrice),
			fmt.Sprintf("%.2f", w.ClosePrice),
			pct(w.WeeklyChange),
			pct(w.HighExcursion),
			pct(-w.LowExcursion),
			score(w.SentimentAvg),
		})
	}
	return table.Render()
}

func outputDays(days []model.DailyRecord) error {
	if len(days) == 0 {
		fmt.Println("No days found.")
		return nil
	}
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Date", "Open", "High", "Low", "Close", "Change", "F&G"}),
	)
	for _, d := range days {
		table.Append([]string{
			d.Date.Format(series.DateLayout),
			fmt.Sprintf("%.2f", d.Open),
			fmt.Sprintf("%.2f", d.High),
			fmt.Sprintf("%.2f", d.Low),
			fmt.Sprintf("%.2f", d.Close),
			pct(d.Change()),
			score(d.Sentiment),
		})
	}
	return table.Render()
}

// outputBuckets pivots the sparse rows into one line per bucket with a column per year
func outputBuckets(rows []model.BucketRow, labels []string) error {
	if len(rows) == 0 {
		fmt.Println("No data to bucket.")
		return nil
	}

	var years []string
	seen := make(map[string]bool)
	cells := make(map[string]model.BucketRow)
	for _, r := range rows {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
		cells[r.Year+"|"+r.Bucket] = r
	}

	header := append([]string{"Bucket"}, years...)
	table := tablewriter.NewTable(os.Stdout, tablewriter.WithHeader(header))
	for _, label := range labels {
		line := []string{label}
		for _, y := range years {
			r, ok := cells[y+"|"+label]
			if !ok {
				line = append(line, "-")
				continue
			}
			line = append(line, fmt.Sprintf("%d (%.1f%%)", r.Count, r.Percentage))
		}
		table.Append(line)
	}
	return table.Render()
}

func outputGrid(grid []model.GridWeek, threshold float64) error {
	if len(grid) == 0 {
		fmt.Println("No weeks in that year.")
		return nil
	}
	fmt.Printf("ISO %d, breach threshold %.0f%%\n\n", grid[0].ISOYear, threshold*100)

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Week", "Month", "Change", "Max Exc", "Status", "Mon", "Tue", "Wed", "Thu", "Fri"}),
	)
	for _, g := range grid {
		s := g.SentimentByWeekday
		table.Append([]string{
			fmt.Sprintf("W%02d", g.ISOWeek),
			fmt.Sprintf("%d", g.Month),
			pct(g.WeeklyChange),
			pct(g.MaxExcursion),
			string(g.Breach),
			score(s.Mon), score(s.Tue), score(s.Wed), score(s.Thu), score(s.Fri),
		})
	}
	return table.Render()
}

func outputOverview(out []model.TickerOverview, threshold float64) error {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Ticker", "Name", "Days", "Weeks", "Latest", "Close", "Last Week", "Status"}),
	)
	for _, o := range out {
		if o.Error != "" {
			table.Append([]string{o.Ticker.Symbol, o.Ticker.Name, "-", "-", "-", "-", "-", o.Error})
			continue
		}
		lastWeek, status := "-", "-"
		if o.LastWeek != nil {
			lastWeek = pct(o.LastWeek.WeeklyChange)
			status = string(o.LastWeek.Breach)
		}
		table.Append([]string{
			o.Ticker.Symbol,
			o.Ticker.Name,
			fmt.Sprintf("%d", o.Days),
			fmt.Sprintf("%d", o.Weeks),
			o.LatestDate.Format(series.DateLayout),
			fmt.Sprintf("%.2f", o.LatestClose),
			lastWeek,
			status,
		})
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Printf("\nBreach threshold: %.0f%%\n", threshold*100)
	return nil
}

func outputSentiment(points []model.SentimentPoint) error {
	if len(points) == 0 {
		fmt.Println("No sentiment readings. Is sentiment.enabled set?")
		return nil
	}
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Date", "Value", "Classification", "Regime"}),
	)
	for _, p := range points {
		table.Append([]string{
			p.Date.Format(series.DateLayout),
			fmt.Sprintf("%d", p.Value),
			p.Classification,
			sentiment.RegimeOf(p.Date.Year()),
		})
	}
	return table.Render()
}

func outputRefreshes(results []model.RefreshResult) error {
	if len(results) == 0 {
		fmt.Println("No refresh runs.")
		return nil
	}
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Ticker", "Status", "New", "Updated", "Latest", "Started", "Message"}),
	)
	for _, r := range results {
		msg := r.Message
		if len(msg) > 60 {
			msg = msg[:60] + "..."
		}
		table.Append([]string{
			r.Ticker,
			r.Status,
			fmt.Sprintf("%d", r.Inserted),
			fmt.Sprintf("%d", r.Updated),
			r.LatestDate,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			msg,
		})
	}
	return table.Render()
}
