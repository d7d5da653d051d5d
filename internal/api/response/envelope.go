// Package response writes the JSON envelope every API endpoint returns.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/fault"
)

// Envelope is the body of every API response
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Payload interface{} `json:"payload"`
}

// ErrorPayload is the payload of a failed request
type ErrorPayload struct {
	Error fault.Kind `json:"error"`
}

// Writer handles API responses
type Writer struct {
	logger *logrus.Entry
}

// NewWriter creates a new response writer
func NewWriter(logger *logrus.Entry) *Writer {
	return &Writer{
		logger: logger,
	}
}

// StatusFor maps an error kind to its HTTP status code
func StatusFor(kind fault.Kind) int {
	switch kind {
	case fault.InvalidKey, fault.InvalidRequest:
		return http.StatusBadRequest
	case fault.Unauthorized:
		return http.StatusUnauthorized
	case fault.NotFound:
		return http.StatusNotFound
	case fault.PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case fault.EngineFailure:
		return http.StatusBadGateway
	case fault.LaunchError:
		return http.StatusServiceUnavailable
	case fault.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Success writes a 200 envelope
func (w *Writer) Success(rw http.ResponseWriter, message string, payload interface{}) {
	w.Write(rw, http.StatusOK, Envelope{Success: true, Message: message, Payload: payload})
}

// Error writes a failure envelope with the status derived from err's kind
func (w *Writer) Error(rw http.ResponseWriter, r *http.Request, err error) {
	w.ErrorWithPayload(rw, r, err, ErrorPayload{Error: fault.KindOf(err)})
}

// ErrorWithPayload is Error with a caller-supplied payload
func (w *Writer) ErrorWithPayload(rw http.ResponseWriter, r *http.Request, err error, payload interface{}) {
	kind := fault.KindOf(err)
	status := StatusFor(kind)

	logEntry := w.logger.WithError(err).WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"status":     status,
		"error_kind": kind,
	})
	if status >= http.StatusInternalServerError {
		logEntry.Error("Request failed")
	} else {
		logEntry.Debug("Request rejected")
	}

	w.Write(rw, status, Envelope{Success: false, Message: err.Error(), Payload: payload})
}

// Write encodes env with the given status
func (w *Writer) Write(rw http.ResponseWriter, status int, env Envelope) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(env); err != nil {
		w.logger.WithError(err).Error("Failed to write response")
	}
}
