package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"weekgrid/internal/bucket"
	"weekgrid/internal/market"
	"weekgrid/internal/provider"
	"weekgrid/internal/sentiment"
	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

// TickersResponse lists the universe and the bucket labels in display order
type TickersResponse struct {
	Tickers []model.Ticker `json:"tickers"`
	Buckets []string       `json:"buckets"`
}

// RecordsResponse carries the daily series of a ticker
type RecordsResponse struct {
	Ticker  string              `json:"ticker"`
	Count   int                 `json:"count"`
	Records []model.DailyRecord `json:"records"`
}

// WeeklyResponse carries the ISO-week summaries of a ticker
type WeeklyResponse struct {
	Ticker string                `json:"ticker"`
	Count  int                   `json:"count"`
	Weeks  []model.WeeklySummary `json:"weeks"`
}

// BucketsResponse carries the year x bucket table
type BucketsResponse struct {
	Ticker      string            `json:"ticker"`
	Granularity model.Granularity `json:"granularity"`
	Buckets     []string          `json:"buckets"`
	Rows        []model.BucketRow `json:"rows"`
}

// GridResponse carries one ISO year of the weekly grid
type GridResponse struct {
	Ticker    string           `json:"ticker"`
	Year      int              `json:"year"`
	Threshold float64          `json:"threshold"`
	Weeks     []model.GridWeek `json:"weeks"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /api/tickers
func (s *Server) handleTickers(c *gin.Context) {
	c.JSON(http.StatusOK, TickersResponse{
		Tickers: s.markets.Tickers(),
		Buckets: s.markets.Bins().Labels(),
	})
}

// GET /api/tickers/:ticker/records?years=2023,2024
func (s *Server) handleRecords(c *gin.Context) {
	years, err := market.ParseYears(c.Query("years"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	records, err := s.markets.Records(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	records = series.FilterYears(records, years)
	c.JSON(http.StatusOK, RecordsResponse{Ticker: c.Param("ticker"), Count: len(records), Records: records})
}

// GET /api/tickers/:ticker/weekly?years=2024
func (s *Server) handleWeekly(c *gin.Context) {
	years, err := market.ParseYears(c.Query("years"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	weeks, err := s.markets.Weekly(c.Request.Context(), c.Param("ticker"), years)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, WeeklyResponse{Ticker: c.Param("ticker"), Count: len(weeks), Weeks: weeks})
}

// GET /api/tickers/:ticker/buckets?mode=daily|weekly&years=
func (s *Server) handleBuckets(c *gin.Context) {
	g, err := market.ParseGranularity(c.Query("mode"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	years, err := market.ParseYears(c.Query("years"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	rows, err := s.markets.Buckets(c.Request.Context(), c.Param("ticker"), g, years)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, BucketsResponse{
		Ticker:      c.Param("ticker"),
		Granularity: g,
		Buckets:     s.markets.Bins().Labels(),
		Rows:        rows,
	})
}

// GET /api/tickers/:ticker/buckets/details?mode=&bucket=&year=
func (s *Server) handleBucketDetails(c *gin.Context) {
	g, err := market.ParseGranularity(c.Query("mode"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	label := c.Query("bucket")
	if label == "" {
		sendError(c, http.StatusBadRequest, "bucket is required")
		return
	}
	d, err := s.markets.Details(c.Request.Context(), c.Param("ticker"), g, label, c.Query("year"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /api/tickers/:ticker/grid?year=2024
func (s *Server) handleGrid(c *gin.Context) {
	year, err := market.ParseYear(c.Query("year"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	weeks, err := s.markets.Grid(c.Request.Context(), c.Param("ticker"), year)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if year == 0 && len(weeks) > 0 {
		year = weeks[0].ISOYear
	}
	c.JSON(http.StatusOK, GridResponse{
		Ticker:    c.Param("ticker"),
		Year:      year,
		Threshold: s.markets.BreachThreshold(),
		Weeks:     weeks,
	})
}

// GET /api/overview
func (s *Server) handleOverview(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tickers": s.markets.Overview(c.Request.Context(), nil)})
}

// GET /api/sentiment
func (s *Server) handleSentiment(c *gin.Context) {
	points, err := s.markets.Sentiment(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if points == nil {
		points = []model.SentimentPoint{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(points), "points": points})
}

// GET /api/sentiment/regimes
func (s *Server) handleRegimes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"regimes": sentiment.Regimes()})
}

// GET /api/refreshes?limit=20
func (s *Server) handleRefreshes(c *gin.Context) {
	if s.updater == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []model.RefreshResult{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 500 {
		limit = 20
	}
	runs, err := s.updater.History(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if runs == nil {
		runs = []model.RefreshResult{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// POST /api/tickers/:ticker/refresh
func (s *Server) handleRefresh(c *gin.Context) {
	if s.updater == nil {
		sendError(c, http.StatusServiceUnavailable, "refresh is disabled")
		return
	}
	t, err := s.markets.Ticker(c.Param("ticker"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.refreshTimeout)
	defer cancel()
	res, err := s.updater.Refresh(ctx, t)
	if err != nil {
		c.JSON(statusFor(err, http.StatusBadGateway), res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/refresh
func (s *Server) handleRefreshAll(c *gin.Context) {
	if s.updater == nil {
		sendError(c, http.StatusServiceUnavailable, "refresh is disabled")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.refreshTimeout)
	defer cancel()
	results := s.updater.RefreshAll(ctx, s.markets.Tickers(), nil)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// DELETE /api/cache
func (s *Server) handleFlushCache(c *gin.Context) {
	if err := s.markets.InvalidateAll(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func sendError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// writeError maps domain errors to HTTP statuses
func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err, http.StatusInternalServerError)

	var dq *series.DataQualityError
	var re *bucket.RangeError
	switch {
	case errors.As(err, &dq):
		c.JSON(status, gin.H{
			"error":  err.Error(),
			"date":   dq.Date.Format(series.DateLayout),
			"field":  dq.Field,
			"reason": dq.Reason,
		})
		return
	case errors.As(err, &re):
		c.JSON(status, gin.H{
			"error":    err.Error(),
			"identity": re.Identity,
			"value":    strconv.FormatFloat(re.Value, 'g', -1, 64),
		})
		return
	}

	if status >= 500 {
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	if status == http.StatusInternalServerError {
		sendError(c, status, "internal error")
		return
	}
	sendError(c, status, err.Error())
}

func statusFor(err error, fallback int) int {
	var dq *series.DataQualityError
	var re *bucket.RangeError
	var pe *provider.ProviderError
	switch {
	case errors.Is(err, market.ErrUnknownTicker), errors.Is(err, market.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, market.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.As(err, &dq), errors.As(err, &re):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &pe):
		return http.StatusBadGateway
	}
	return fallback
}
