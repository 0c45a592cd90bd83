package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"weekgrid/internal/bucket"
	"weekgrid/internal/symbols"
	"weekgrid/pkg/model"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	API       APIConfig       `yaml:"api"`
	Tickers   []model.Ticker  `yaml:"tickers"`
	Buckets   BucketsConfig   `yaml:"buckets"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Grid      GridConfig      `yaml:"grid"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DatabaseConfig selects the price store. An empty DSN runs without a store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // pgx or sqlite
	DSN    string `yaml:"dsn"`
}

// CacheConfig selects the query cache backend
type CacheConfig struct {
	Backend    string        `yaml:"backend"` // memory, redis or none
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds the redis connection
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

// APIConfig holds API provider configurations
type APIConfig struct {
	CoinAPI      ProviderConfig `yaml:"coinapi"`
	Finnhub      ProviderConfig `yaml:"finnhub"`
	AlphaVantage ProviderConfig `yaml:"alphavantage"`
	Yahoo        YahooConfig    `yaml:"yahoo"`
}

// ProviderConfig holds individual provider settings
type ProviderConfig struct {
	Key       string `yaml:"key"`
	RateLimit int    `yaml:"rate_limit"` // requests per minute
}

// YahooConfig toggles the keyless Yahoo provider
type YahooConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BucketsConfig holds the change-ratio bin edges
type BucketsConfig struct {
	Boundaries []float64 `yaml:"boundaries"`
}

// RefreshConfig holds incremental update settings
type RefreshConfig struct {
	Schedule     string        `yaml:"schedule"` // cron with seconds; empty disables
	HistoryStart string        `yaml:"history_start"`
	Workers      int           `yaml:"workers"`
	Attempts     int           `yaml:"attempts"`
	Backoff      time.Duration `yaml:"backoff"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SentimentConfig controls the Fear & Greed join
type SentimentConfig struct {
	Enabled bool `yaml:"enabled"`
	Require bool `yaml:"require"` // drop days without a reading
	Limit   int  `yaml:"limit"`
}

// GridConfig holds the 52-week grid settings
type GridConfig struct {
	BreachThreshold float64 `yaml:"breach_threshold"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "weekgrid.db",
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        time.Hour,
			MaxEntries: 512,
			Redis:      RedisConfig{Addr: "localhost:6379", Namespace: "weekgrid"},
		},
		API: APIConfig{
			CoinAPI:      ProviderConfig{RateLimit: 10},
			Finnhub:      ProviderConfig{RateLimit: 60},
			AlphaVantage: ProviderConfig{RateLimit: 5},
			Yahoo:        YahooConfig{Enabled: true},
		},
		Tickers: symbols.Default(),
		Buckets: BucketsConfig{Boundaries: append([]float64(nil), bucket.DefaultBoundaries...)},
		Refresh: RefreshConfig{
			Schedule:     "0 30 17 * * *",
			HistoryStart: "2020-01-01",
			Workers:      4,
			Attempts:     3,
			Backoff:      5 * time.Second,
			Timeout:      5 * time.Minute,
		},
		Sentiment: SentimentConfig{Enabled: true, Require: true, Limit: 2200},
		Grid:      GridConfig{BreachThreshold: 0.10},
	}
}

// Load loads .env, the YAML file at path (defaults if absent) and environment overrides
func Load(path string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Database.Driver = "pgx"
		}
	}
	if v := os.Getenv("COINAPI_KEY"); v != "" {
		c.API.CoinAPI.Key = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.API.Finnhub.Key = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		c.API.AlphaVantage.Key = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Backend = "redis"
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("WEEKGRID_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEEKGRID_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Database.DSN != "" && c.Database.Driver != "pgx" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be pgx or sqlite, got %q", c.Database.Driver)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "none", "":
	default:
		return fmt.Errorf("cache.backend must be memory, redis or none, got %q", c.Cache.Backend)
	}
	if len(c.Tickers) == 0 {
		return fmt.Errorf("at least one ticker is required")
	}
	seen := make(map[string]bool)
	for _, t := range c.Tickers {
		sym := strings.ToUpper(t.Symbol)
		if sym == "" {
			return fmt.Errorf("ticker with empty symbol")
		}
		if seen[sym] {
			return fmt.Errorf("ticker %s listed twice", sym)
		}
		seen[sym] = true
	}
	if _, err := bucket.NewBins(c.Buckets.Boundaries); err != nil {
		return fmt.Errorf("buckets.boundaries: %w", err)
	}
	if _, err := time.Parse("2006-01-02", c.Refresh.HistoryStart); err != nil {
		return fmt.Errorf("refresh.history_start: %w", err)
	}
	if c.Refresh.Workers < 1 {
		return fmt.Errorf("refresh.workers must be at least 1")
	}
	if c.Refresh.Attempts < 1 {
		return fmt.Errorf("refresh.attempts must be at least 1")
	}
	if c.Grid.BreachThreshold <= 0 {
		return fmt.Errorf("grid.breach_threshold must be positive")
	}
	return nil
}

// HistoryStart returns the first day fetched for an empty store
func (c *Config) HistoryStart() time.Time {
	t, err := time.Parse("2006-01-02", c.Refresh.HistoryStart)
	if err != nil {
		return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}
