package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// CORS provides CORS headers middleware. The browser UI may be served from a
// different origin than the API.
type CORS struct {
	logger *logrus.Entry
}

// NewCORS creates a new CORS middleware
func NewCORS(logger *logrus.Entry) *CORS {
	return &CORS{
		logger: logger,
	}
}

// Middleware returns the HTTP middleware function
func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Length, Content-Disposition")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
