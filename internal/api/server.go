// Package api wires the HTTP surface of the file encryptor.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/api/handlers/file"
	"github.com/guided-traffic/file-encryptor/internal/api/handlers/health"
	"github.com/guided-traffic/file-encryptor/internal/api/handlers/key"
	"github.com/guided-traffic/file-encryptor/internal/api/handlers/operation"
	"github.com/guided-traffic/file-encryptor/internal/api/middleware"
	"github.com/guided-traffic/file-encryptor/internal/config"
)

// Dependencies are the components served by the API
type Dependencies struct {
	Keys      key.Store
	Executor  operation.Executor
	Catalog   file.Catalog
	Ingester  file.Ingester
	Previewer file.Previewer
	Build     health.BuildInfo
}

// Server represents the file encryptor API server
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	config     *config.Config
	deps       Dependencies
	logger     *logrus.Entry

	requestTracker *middleware.RequestTracker
	httpLogger     *middleware.Logger
	corsHandler    *middleware.CORS
	authenticator  *middleware.Authenticator

	activeRequests int64
	shutdownMu     sync.RWMutex
	shuttingDown   bool
	shutdownTime   time.Time
}

// NewServer creates a new API server instance
func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.Keys == nil || deps.Executor == nil || deps.Catalog == nil || deps.Ingester == nil || deps.Previewer == nil {
		return nil, fmt.Errorf("incomplete server dependencies")
	}

	logger := logrus.WithField("component", "api-server")

	server := &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	server.setupMiddleware()

	router := mux.NewRouter()
	server.setupRoutes(router)

	// CORS sits outside the router so preflight requests never hit a 405
	server.handler = server.corsHandler.Middleware(router)

	server.httpServer = &http.Server{
		Addr:              cfg.BindAddress,
		Handler:           server.handler,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return server, nil
}

func (s *Server) setupMiddleware() {
	s.requestTracker = middleware.NewRequestTracker(s.logger)
	s.requestTracker.SetHandlers(s.requestStartHandler, s.requestEndHandler)

	s.httpLogger = middleware.NewLogger(s.logger, s.config.LogHealthRequests)
	s.corsHandler = middleware.NewCORS(s.logger)
	s.authenticator = middleware.NewAuthenticator(s.config.Auth, s.logger.WithField("middleware", "auth"))
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Start(ctx context.Context) error {
	serverErrChan := make(chan error, 1)
	go func() {
		s.logger.WithField("address", s.config.BindAddress).Info("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErrChan:
		return err
	case <-ctx.Done():
		s.markShutdown()
		s.logger.WithField("active_requests", atomic.LoadInt64(&s.activeRequests)).Info("Shutting down server")

		timeout := time.Duration(s.config.ShutdownTimeout) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).WithField("active_requests", atomic.LoadInt64(&s.activeRequests)).
				Error("Failed to gracefully shutdown server")
			return err
		}

		s.logger.Info("Server stopped")
		return nil
	}
}

func (s *Server) markShutdown() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	if !s.shuttingDown {
		s.shuttingDown = true
		s.shutdownTime = time.Now()
	}
}

func (s *Server) shutdownStateHandler() (bool, time.Time) {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.shuttingDown, s.shutdownTime
}

func (s *Server) requestStartHandler() {
	atomic.AddInt64(&s.activeRequests, 1)
}

func (s *Server) requestEndHandler() {
	atomic.AddInt64(&s.activeRequests, -1)
}
