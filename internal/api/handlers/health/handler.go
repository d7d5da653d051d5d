package health

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/api/response"
)

// BuildInfo is injected at build time
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

// Handler handles health and version endpoints
type Handler struct {
	logger               *logrus.Entry
	logHealthRequests    bool
	build                BuildInfo
	writer               *response.Writer
	shutdownStateHandler func() (bool, time.Time)
}

// NewHandler creates a new health handler
func NewHandler(logger *logrus.Entry, logHealthRequests bool, build BuildInfo) *Handler {
	return &Handler{
		logger:            logger,
		logHealthRequests: logHealthRequests,
		build:             build,
		writer:            response.NewWriter(logger),
	}
}

// SetShutdownStateHandler sets the handler to check shutdown state
func (h *Handler) SetShutdownStateHandler(handler func() (bool, time.Time)) {
	h.shutdownStateHandler = handler
}

// Health handles the health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.logHealthRequests {
		h.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		}).Debug("Health check request")
	}

	if h.shutdownStateHandler != nil {
		if shutdownInitiated, shutdownTime := h.shutdownStateHandler(); shutdownInitiated {
			h.writer.Write(w, http.StatusServiceUnavailable, response.Envelope{
				Success: false,
				Message: "Server is shutting down gracefully",
				Payload: map[string]string{
					"status":        "shutting_down",
					"shutdown_time": shutdownTime.Format(time.RFC3339),
				},
			})
			return
		}
	}

	h.writer.Success(w, "healthy", map[string]string{"status": "healthy"})
}

// Version handles the version endpoint
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	if h.logHealthRequests {
		h.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		}).Debug("Version check request")
	}

	h.writer.Success(w, "file-encryptor", h.build)
}
