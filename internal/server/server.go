// Package server wires the sidecar's HTTP surface: probe endpoints, the
// peer node endpoint, status, metrics, and the forwarding catch-all.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/devrev/litefs-sidecar/internal/forward"
	"github.com/devrev/litefs-sidecar/internal/health"
	"github.com/devrev/litefs-sidecar/internal/splitbrain"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Options holds listener settings
type Options struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MetricsPath  string
}

// Routes are the handlers mounted on the router. Metrics, Forwarding and
// Upstream are optional.
type Routes struct {
	Health     *health.Handlers
	Node       http.HandlerFunc
	Status     http.Handler
	Metrics    http.Handler
	Forwarding *forward.Middleware
	Upstream   http.Handler
}

// Server represents the HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	opts       Options
	logger     *zap.Logger
}

// NewServer creates the server and configures its routes.
func NewServer(opts Options, routes Routes, recorder HTTPRecorder, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(opts.Host, fmt.Sprint(opts.Port)),
			Handler:      router,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		opts:   opts,
		logger: logger,
	}
	s.setupRoutes(routes, recorder)
	return s
}

func (s *Server) setupRoutes(routes Routes, recorder HTTPRecorder) {
	s.router.Use(Recovery(s.logger), RequestID, Logging(s.logger, recorder))

	s.router.HandleFunc("/health/live", routes.Health.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", routes.Health.ReadinessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health", routes.Health.HealthHandler).Methods(http.MethodGet)
	s.router.HandleFunc(splitbrain.NodePath, routes.Node).Methods(http.MethodGet)
	s.router.Handle("/status", routes.Status).Methods(http.MethodGet)

	if routes.Metrics != nil {
		path := s.opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle(path, routes.Metrics).Methods(http.MethodGet)
	}

	if routes.Upstream == nil {
		return
	}
	upstream := routes.Upstream
	if routes.Forwarding != nil {
		upstream = routes.Forwarding.Handler(upstream)
	}
	s.router.PathPrefix("/").Handler(upstream)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
