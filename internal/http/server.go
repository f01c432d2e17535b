// Package http serves the gateway's operational endpoints. The MCP
// protocol owns stdout, so health, metrics, and the session overview
// live on a separate listener.
package http

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boundaryd/internal/session"
)

// Server provides the operational HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	sessions *session.Manager
	metrics  nethttp.Handler
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Addr string
}

// NewServer creates a new operational HTTP server. metricsHandler may be
// nil when telemetry is disabled; /metrics then returns 404.
func NewServer(sessions *session.Manager, metricsHandler nethttp.Handler, logger *zap.Logger, cfg *Config) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Addr: "localhost:9091"}
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:9091"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		sessions: sessions,
		metrics:  metricsHandler,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/sessions", s.handleSessions)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// SessionsResponse is the response body for GET /api/v1/sessions.
type SessionsResponse struct {
	Active int `json:"active"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(nethttp.StatusOK, HealthResponse{Status: "ok"})
}

// handleSessions reports how many sessions are live. Session contents
// stay private; only the count leaves the process.
func (s *Server) handleSessions(c echo.Context) error {
	return c.JSON(nethttp.StatusOK, SessionsResponse{Active: s.sessions.Len()})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting operational http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the echo handler for tests.
func (s *Server) Handler() nethttp.Handler {
	return s.echo
}
