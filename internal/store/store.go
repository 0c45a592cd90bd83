// Package store persists daily price bars and refresh runs in Postgres or SQLite.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const timeLayout = time.RFC3339

// Store handles database operations for daily prices
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects with driver "pgx" or "sqlite" and applies the schema
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
		if !strings.Contains(dsn, ":memory:") {
			if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
				db.Close()
				return nil, fmt.Errorf("set WAL mode: %w", err)
			}
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Store opened", zap.String("driver", driver))
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates tables and indexes if missing
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_prices (
			ticker      TEXT NOT NULL,
			date        TEXT NOT NULL,
			open_price  DOUBLE PRECISION NOT NULL,
			high_price  DOUBLE PRECISION NOT NULL,
			low_price   DOUBLE PRECISION NOT NULL,
			close_price DOUBLE PRECISION NOT NULL,
			volume      BIGINT,
			updated_at  TEXT NOT NULL,
			PRIMARY KEY (ticker, date)
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_runs (
			id          TEXT PRIMARY KEY,
			ticker      TEXT NOT NULL,
			status      TEXT NOT NULL,
			inserted    INTEGER NOT NULL DEFAULT 0,
			updated     INTEGER NOT NULL DEFAULT 0,
			latest_date TEXT,
			message     TEXT,
			started_at  TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_runs_started ON refresh_runs(started_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type priceRow struct {
	Date   string   `db:"date"`
	Open   float64  `db:"open_price"`
	High   float64  `db:"high_price"`
	Low    float64  `db:"low_price"`
	Close  float64  `db:"close_price"`
	Volume null.Int `db:"volume"`
}

// LoadDaily returns the bars of ticker in date order. Zero bounds are open.
func (s *Store) LoadDaily(ctx context.Context, ticker string, from, to time.Time) ([]model.Candle, error) {
	query := `
		SELECT date, open_price, high_price, low_price, close_price, volume
		FROM daily_prices
		WHERE ticker = ?`
	args := []interface{}{ticker}

	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, from.Format(series.DateLayout))
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, to.Format(series.DateLayout))
	}
	query += " ORDER BY date"

	var rows []priceRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		s.logger.Error("Failed to load daily prices", zap.Error(err), zap.String("ticker", ticker))
		return nil, err
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		day, err := parseDay(r.Date)
		if err != nil {
			return nil, fmt.Errorf("row %s/%s: %w", ticker, r.Date, err)
		}
		candles = append(candles, model.Candle{
			Time:   day,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume.Int64,
		})
	}
	return candles, nil
}

// LatestDate returns the most recent stored day of ticker
func (s *Store) LatestDate(ctx context.Context, ticker string) (time.Time, bool, error) {
	var latest null.String
	err := s.db.GetContext(ctx, &latest, s.db.Rebind(`SELECT MAX(date) FROM daily_prices WHERE ticker = ?`), ticker)
	if err != nil {
		return time.Time{}, false, err
	}
	if !latest.Valid || latest.String == "" {
		return time.Time{}, false, nil
	}
	day, err := parseDay(latest.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return day, true, nil
}

// Tickers lists tickers that have stored prices
func (s *Store) Tickers(ctx context.Context) ([]string, error) {
	var tickers []string
	err := s.db.SelectContext(ctx, &tickers, `SELECT DISTINCT ticker FROM daily_prices ORDER BY ticker`)
	return tickers, err
}

// UpsertDaily writes bars for ticker, replacing existing days.
// It reports how many days were new and how many were overwritten.
func (s *Store) UpsertDaily(ctx context.Context, ticker string, candles []model.Candle) (inserted, updated int, err error) {
	if len(candles) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error("Failed to begin transaction", zap.Error(err))
		return 0, 0, err
	}
	defer tx.Rollback()

	minDay, maxDay := candles[0].Time, candles[0].Time
	for _, c := range candles {
		if c.Time.Before(minDay) {
			minDay = c.Time
		}
		if c.Time.After(maxDay) {
			maxDay = c.Time
		}
	}

	var existingDays []string
	err = tx.SelectContext(ctx, &existingDays, tx.Rebind(
		`SELECT date FROM daily_prices WHERE ticker = ? AND date >= ? AND date <= ?`),
		ticker, minDay.Format(series.DateLayout), maxDay.Format(series.DateLayout))
	if err != nil {
		return 0, 0, err
	}
	existing := make(map[string]bool, len(existingDays))
	for _, d := range existingDays {
		existing[d[:10]] = true
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO daily_prices (ticker, date, open_price, high_price, low_price, close_price, volume, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, date)
		DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume,
			updated_at = EXCLUDED.updated_at`))
	if err != nil {
		s.logger.Error("Failed to prepare statement", zap.Error(err))
		return 0, 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(timeLayout)
	seen := make(map[string]bool, len(candles))
	for _, c := range candles {
		day := c.Time.Format(series.DateLayout)
		volume := null.NewInt(c.Volume, c.Volume > 0)
		if _, err := stmt.ExecContext(ctx, ticker, day, c.Open, c.High, c.Low, c.Close, volume, now); err != nil {
			s.logger.Error("Failed to upsert daily price", zap.Error(err), zap.String("ticker", ticker), zap.String("date", day))
			return 0, 0, err
		}
		if seen[day] {
			continue
		}
		seen[day] = true
		if existing[day] {
			updated++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", zap.Error(err))
		return 0, 0, err
	}
	return inserted, updated, nil
}

type refreshRow struct {
	ID         string      `db:"id"`
	Ticker     string      `db:"ticker"`
	Status     string      `db:"status"`
	Inserted   int         `db:"inserted"`
	Updated    int         `db:"updated"`
	LatestDate null.String `db:"latest_date"`
	Message    null.String `db:"message"`
	StartedAt  string      `db:"started_at"`
	FinishedAt string      `db:"finished_at"`
}

// RecordRefresh appends a refresh run
func (s *Store) RecordRefresh(ctx context.Context, r model.RefreshResult) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO refresh_runs (id, ticker, status, inserted, updated, latest_date, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.RunID, r.Ticker, r.Status, r.Inserted, r.Updated,
		null.NewString(r.LatestDate, r.LatestDate != ""),
		null.NewString(r.Message, r.Message != ""),
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		s.logger.Error("Failed to record refresh", zap.Error(err), zap.String("ticker", r.Ticker))
	}
	return err
}

// RecentRefreshes returns the latest runs, newest first
func (s *Store) RecentRefreshes(ctx context.Context, limit int) ([]model.RefreshResult, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []refreshRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, ticker, status, inserted, updated, latest_date, message, started_at, finished_at
		FROM refresh_runs
		ORDER BY started_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}

	out := make([]model.RefreshResult, 0, len(rows))
	for _, r := range rows {
		started, err := time.Parse(timeLayout, r.StartedAt)
		if err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", r.ID, err)
		}
		finished, err := time.Parse(timeLayout, r.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("run %s finished_at: %w", r.ID, err)
		}
		out = append(out, model.RefreshResult{
			RunID:      r.ID,
			Ticker:     r.Ticker,
			Status:     r.Status,
			Message:    r.Message.String,
			Inserted:   r.Inserted,
			Updated:    r.Updated,
			LatestDate: r.LatestDate.String,
			StartedAt:  started,
			FinishedAt: finished,
		})
	}
	return out, nil
}

func parseDay(s string) (time.Time, error) {
	if len(s) < 10 {
		return time.Time{}, fmt.Errorf("bad date %q", s)
	}
	return time.Parse(series.DateLayout, s[:10])
}
