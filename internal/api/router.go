package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/guided-traffic/file-encryptor/internal/api/handlers/file"
	"github.com/guided-traffic/file-encryptor/internal/api/handlers/health"
	"github.com/guided-traffic/file-encryptor/internal/api/handlers/key"
	"github.com/guided-traffic/file-encryptor/internal/api/handlers/operation"
	"github.com/guided-traffic/file-encryptor/internal/monitoring"
)

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes(router *mux.Router) {
	if s.config.Monitoring.Enabled {
		router.Use(monitoring.HTTPMiddleware)
	}

	healthHandler := health.NewHandler(s.logger.WithField("handler", "health"), s.config.LogHealthRequests, s.deps.Build)
	healthHandler.SetShutdownStateHandler(s.shutdownStateHandler)

	// Health and version endpoints stay outside authentication
	healthRouter := router.NewRoute().Subrouter()
	healthRouter.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	healthRouter.HandleFunc("/version", healthHandler.Version).Methods(http.MethodGet)

	// Order matters: auth first, then tracking and logging
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(s.authenticator.Middleware)
	apiRouter.Use(s.requestTracker.Middleware)
	apiRouter.Use(s.httpLogger.Middleware)

	keyHandler := key.NewHandler(s.deps.Keys, s.logger.WithField("handler", "key"))
	operationHandler := operation.NewHandler(s.deps.Executor, s.logger.WithField("handler", "operation"))
	fileHandler := file.NewHandler(s.deps.Catalog, s.deps.Ingester, s.deps.Previewer,
		s.config.Storage.MaxUploadSize, s.logger.WithField("handler", "file"))

	apiRouter.HandleFunc("/set-key", keyHandler.SetKey).Methods(http.MethodPost)

	apiRouter.HandleFunc("/create-test-files", operationHandler.CreateTestFiles).Methods(http.MethodPost)
	apiRouter.HandleFunc("/encrypt-file", operationHandler.EncryptFile).Methods(http.MethodPost)
	apiRouter.HandleFunc("/decrypt-file", operationHandler.DecryptFile).Methods(http.MethodPost)
	apiRouter.HandleFunc("/encrypt-all", operationHandler.EncryptAll).Methods(http.MethodPost)
	apiRouter.HandleFunc("/decrypt-all", operationHandler.DecryptAll).Methods(http.MethodPost)

	apiRouter.HandleFunc("/upload-file", fileHandler.Upload).Methods(http.MethodPost)
	apiRouter.HandleFunc("/files", fileHandler.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/file-preview/{path:.+}", fileHandler.Preview).Methods(http.MethodGet)
	apiRouter.HandleFunc("/file-content/{path:.+}", fileHandler.Content).Methods(http.MethodGet)
	apiRouter.HandleFunc("/file-download/{path:.+}", fileHandler.Download).Methods(http.MethodGet)
}
