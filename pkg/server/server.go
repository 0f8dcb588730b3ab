// Package server assembles the Echo application: middleware, observability
// endpoints, and the versioned API routes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/routes/duplicate"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/match"
	"github.com/Ramsey-B/clover/pkg/routes/merge"
)

// Config holds the HTTP server settings
type Config struct {
	AppName      string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	AllowOrigins []string
	AllowMethods []string
}

// Handlers carries the route handlers the server registers
type Handlers struct {
	Match     *match.Handler
	Merge     *merge.Handler
	Duplicate *duplicate.Handler
	Health    *health.Checker
}

// Server wraps Echo with the service's middleware and routes
type Server struct {
	echo   *echo.Echo
	config Config
	logger ectologger.Logger
}

// New builds the Echo application
func New(cfg Config, logger ectologger.Logger, handlers Handlers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.Server.IdleTimeout = cfg.IdleTimeout

	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if handlers.Health != nil {
		handlers.Health.RegisterRoutes(e)
	}

	api := e.Group("/api/v1")
	if handlers.Match != nil {
		handlers.Match.RegisterRoutes(api)
	}
	if handlers.Merge != nil {
		handlers.Merge.RegisterRoutes(api)
	}
	if handlers.Duplicate != nil {
		handlers.Duplicate.RegisterRoutes(api)
	}

	return &Server{
		echo:   e,
		config: cfg,
		logger: logger,
	}
}

// ServeHTTP dispatches a request through the full middleware chain. Lets
// tests drive the assembled application without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start runs the HTTP listener until it fails or Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Infof("HTTP server listening on %s", addr)

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
