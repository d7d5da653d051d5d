package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the id assigned by the tracker, or ""
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestTracker tags each request with an id and reports its start and end
// so the server can drain in-flight requests on shutdown.
type RequestTracker struct {
	logger              *logrus.Entry
	requestStartHandler func()
	requestEndHandler   func()
}

// NewRequestTracker creates a new request tracker middleware
func NewRequestTracker(logger *logrus.Entry) *RequestTracker {
	return &RequestTracker{
		logger: logger,
	}
}

// SetHandlers sets the start and end handlers for request tracking
func (rt *RequestTracker) SetHandlers(onStart, onEnd func()) {
	rt.requestStartHandler = onStart
	rt.requestEndHandler = onEnd
}

// Middleware returns the HTTP middleware function
func (rt *RequestTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.requestStartHandler != nil {
			rt.requestStartHandler()
		}
		defer func() {
			if rt.requestEndHandler != nil {
				rt.requestEndHandler()
			}
		}()

		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}
