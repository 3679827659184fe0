// Package api provides the HTTP surface of the agentic run subsystem: run
// creation, cancellation, lookup, the combined replay/live-tail event
// stream, health, and metrics.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/dembrane/agentic/pkg/config"
	"github.com/dembrane/agentic/pkg/coordinator"
	"github.com/dembrane/agentic/pkg/metrics"
	"github.com/dembrane/agentic/pkg/runstore"
	"github.com/dembrane/agentic/pkg/worker"
)

// Server is the agentic run subsystem's HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg   *config.AgenticConfig
	runs  *runstore.Store
	coord coordinator.Coordinator
	pool  *worker.Pool
}

// NewServer creates a Server with Echo v5 and registers every route.
func NewServer(cfg *config.AgenticConfig, runs *runstore.Store, coord coordinator.Coordinator, pool *worker.Pool) *Server {
	e := echo.New()

	s := &Server{
		echo:  e,
		cfg:   cfg,
		runs:  runs,
		coord: coord,
		pool:  pool,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	runs := s.echo.Group("/runs", s.requireBearerToken)
	runs.POST("", s.createRunHandler)
	runs.GET("/:run_id", s.getRunHandler)
	runs.POST("/:run_id/cancel", s.cancelRunHandler)
	runs.GET("/:run_id/events", s.streamEventsHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
