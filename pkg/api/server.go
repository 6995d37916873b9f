// Package api is the HTTP surface: echo server, route handlers, middleware,
// and the WebSocket upgrade endpoint.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/shacharon/tavola/pkg/assistant"
	"github.com/shacharon/tavola/pkg/auth"
	"github.com/shacharon/tavola/pkg/config"
	"github.com/shacharon/tavola/pkg/events"
	"github.com/shacharon/tavola/pkg/jobstore"
	"github.com/shacharon/tavola/pkg/metrics"
	"github.com/shacharon/tavola/pkg/pipeline"
	"github.com/shacharon/tavola/pkg/store"
)

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	auth     *auth.Service
	jobs     *jobstore.Store
	hub      *events.Hub
	orch     *pipeline.Orchestrator
	streamer *assistant.Streamer
	backend  store.Backend

	// baseCtx is the parent of every background pipeline run; cancelled on
	// process shutdown.
	baseCtx context.Context

	echo    *echo.Echo
	httpSrv *http.Server
}

// NewServer wires the routes.
func NewServer(baseCtx context.Context, cfg *config.Config, authSvc *auth.Service, jobs *jobstore.Store, hub *events.Hub, orch *pipeline.Orchestrator, streamer *assistant.Streamer, backend store.Backend) *Server {
	s := &Server{
		cfg:      cfg,
		auth:     authSvc,
		jobs:     jobs,
		hub:      hub,
		orch:     orch,
		streamer: streamer,
		backend:  backend,
		baseCtx:  baseCtx,
	}

	e := echo.New()
	e.Use(securityHeaders())
	e.Use(requestLogger())

	e.POST("/auth/bootstrap", s.bootstrapHandler)
	e.POST("/auth/ws-ticket", s.wsTicketHandler)
	e.POST("/search", s.submitSearchHandler)
	e.GET("/search/:requestId", s.getSearchHandler)
	e.GET("/stream/assistant/:requestId", s.assistantStreamHandler)
	e.GET("/ws", s.wsHandler)
	e.GET("/healthz", s.healthHandler)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	s.echo = e
	return s
}

// Handler exposes the routing tree (used by tests).
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr. Blocks until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
