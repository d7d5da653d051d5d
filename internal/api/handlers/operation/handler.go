// Package operation serves the endpoints that run the encryption engine.
package operation

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/api/response"
	"github.com/guided-traffic/file-encryptor/internal/fault"
	"github.com/guided-traffic/file-encryptor/internal/orchestration"
)

const maxBodySize = 64 * 1024

// Executor runs operations
type Executor interface {
	Execute(ctx context.Context, req orchestration.Request) *orchestration.Result
}

// Handler handles engine operations
type Handler struct {
	executor Executor
	writer   *response.Writer
	logger   *logrus.Entry
}

// NewHandler creates a new operation handler
func NewHandler(executor Executor, logger *logrus.Entry) *Handler {
	return &Handler{
		executor: executor,
		writer:   response.NewWriter(logger),
		logger:   logger,
	}
}

// resultPayload is the operation result plus the error kind on failure
type resultPayload struct {
	*orchestration.Result
	Error fault.Kind `json:"error,omitempty"`
}

type fileRequest struct {
	FilePath string `json:"filePath"`
}

// CreateTestFiles handles POST /api/create-test-files
func (h *Handler) CreateTestFiles(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, orchestration.CreateCorpus{}, "Test files created successfully")
}

// EncryptAll handles POST /api/encrypt-all
func (h *Handler) EncryptAll(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, orchestration.EncryptAll{}, "All files encrypted successfully")
}

// DecryptAll handles POST /api/decrypt-all
func (h *Handler) DecryptAll(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, orchestration.DecryptAll{}, "All files decrypted successfully")
}

// EncryptFile handles POST /api/encrypt-file
func (h *Handler) EncryptFile(w http.ResponseWriter, r *http.Request) {
	path, ok := h.filePath(w, r)
	if !ok {
		return
	}
	h.run(w, r, orchestration.EncryptOne{Path: path}, "File encrypted successfully")
}

// DecryptFile handles POST /api/decrypt-file
func (h *Handler) DecryptFile(w http.ResponseWriter, r *http.Request) {
	path, ok := h.filePath(w, r)
	if !ok {
		return
	}
	h.run(w, r, orchestration.DecryptOne{Path: path}, "File decrypted successfully")
}

func (h *Handler) filePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req fileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writer.Error(w, r, fault.Errorf(fault.InvalidRequest, "decode", "invalid request body: %v", err))
		return "", false
	}
	if req.FilePath == "" {
		h.writer.Error(w, r, fault.New(fault.InvalidRequest, "decode", "File path is required"))
		return "", false
	}
	return req.FilePath, true
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, req orchestration.Request, successMessage string) {
	res := h.executor.Execute(r.Context(), req)

	if !res.Succeeded() {
		h.writer.ErrorWithPayload(w, r, res.Err, resultPayload{Result: res, Error: fault.KindOf(res.Err)})
		return
	}

	h.writer.Success(w, successMessage, resultPayload{Result: res})
}
