// Package http provides the REST API over the validation and
// workflow services.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/specd/internal/logging"
	"github.com/fyrsmithlabs/specd/internal/validation"
	"github.com/fyrsmithlabs/specd/internal/workflow"
)

// Server exposes the validation, traceability, and workflow services
// over HTTP.
type Server struct {
	echo      *echo.Echo
	validator validation.Service
	workflows workflow.Service
	metrics   *Metrics
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RateLimit caps requests per second per client IP. Zero disables
	// limiting.
	RateLimit float64
}

// NewServer creates a new HTTP server.
func NewServer(validator validation.Service, workflows workflow.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if validator == nil {
		return nil, fmt.Errorf("validation service is required")
	}
	if workflows == nil {
		return nil, fmt.Errorf("workflow service is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:      "localhost",
			Port:      9190,
			RateLimit: 20,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	metrics := NewMetrics(logger)
	e.Use(metrics.Middleware())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:      e,
		validator: validator,
		workflows: workflows,
		metrics:   metrics,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// requestLogger logs one line per request, correlated with the active
// trace when telemetry is enabled.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			fields := []zap.Field{
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			}
			fields = append(fields, logging.ContextFields(c.Request().Context())...)
			logger.Info("http request", fields...)

			return err
		}
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/validate", s.handleValidate)
	v1.POST("/traceability", s.handleTraceability)
	v1.POST("/workflows", s.handleCreateWorkflow)
	v1.GET("/workflows", s.handleListWorkflows)
	v1.GET("/workflows/:feature", s.handleGetWorkflow)
	v1.POST("/workflows/:feature/transition", s.handleTransition)
	v1.POST("/workflows/:feature/back", s.handleBack)
	v1.GET("/workflows/:feature/transition-check", s.handleTransitionCheck)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Echo returns the underlying router so callers can mount additional
// handlers, e.g. a Prometheus scrape endpoint.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
