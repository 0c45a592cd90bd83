// Package web serves the weekly and bucket views over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"weekgrid/internal/config"
	"weekgrid/internal/market"
)

// Server represents the web server
type Server struct {
	markets        *market.Service
	updater        *market.Updater
	logger         *zap.Logger
	cfg            config.ServerConfig
	refreshTimeout time.Duration
	router         *gin.Engine
	srv            *http.Server
}

// NewServer creates a new web server. updater may be nil, which disables refresh endpoints.
func NewServer(cfg config.ServerConfig, markets *market.Service, updater *market.Updater, refreshTimeout time.Duration, logger *zap.Logger) *Server {
	if refreshTimeout <= 0 {
		refreshTimeout = 5 * time.Minute
	}
	s := &Server{
		markets:        markets,
		updater:        updater,
		logger:         logger,
		cfg:            cfg,
		refreshTimeout: refreshTimeout,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))
	router.Use(cors())

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/tickers", s.handleTickers)
		api.GET("/overview", s.handleOverview)
		api.GET("/sentiment", s.handleSentiment)
		api.GET("/sentiment/regimes", s.handleRegimes)
		api.GET("/refreshes", s.handleRefreshes)
		api.POST("/refresh", s.handleRefreshAll)
		api.DELETE("/cache", s.handleFlushCache)

		t := api.Group("/tickers/:ticker")
		t.GET("/records", s.handleRecords)
		t.GET("/weekly", s.handleWeekly)
		t.GET("/buckets", s.handleBuckets)
		t.GET("/buckets/details", s.handleBucketDetails)
		t.GET("/grid", s.handleGrid)
		t.POST("/refresh", s.handleRefresh)
	}
	return router
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured port and blocks until Shutdown
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("Starting server", zap.Int("port", s.cfg.Port))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs every request with its status and latency
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		switch {
		case status >= 500:
			logger.Error("Server error", fields...)
		case status >= 400:
			logger.Warn("Client error", fields...)
		default:
			logger.Debug("Request completed", fields...)
		}
	}
}

// cors adds CORS headers for local dashboards
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
