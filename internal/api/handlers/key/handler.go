// Package key serves the endpoint that replaces the active engine key.
package key

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/api/response"
	"github.com/guided-traffic/file-encryptor/internal/fault"
	"github.com/guided-traffic/file-encryptor/internal/keystore"
)

// maxBodySize bounds the JSON body of a key update
const maxBodySize = 64 * 1024

// Store is the key store as seen by the handler
type Store interface {
	SetKey(newValue string) error
}

// Handler handles key updates
type Handler struct {
	store  Store
	writer *response.Writer
	logger *logrus.Entry
}

// NewHandler creates a new key handler
func NewHandler(store Store, logger *logrus.Entry) *Handler {
	return &Handler{
		store:  store,
		writer: response.NewWriter(logger),
		logger: logger,
	}
}

type setKeyRequest struct {
	Key *string `json:"key"`
}

// SetKey handles POST /api/set-key
func (h *Handler) SetKey(w http.ResponseWriter, r *http.Request) {
	var req setKeyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writer.Error(w, r, fault.Errorf(fault.InvalidRequest, "set-key", "invalid request body: %v", err))
		return
	}
	if req.Key == nil {
		h.writer.Error(w, r, fault.New(fault.InvalidKey, "set-key", "Key must be a valid string"))
		return
	}

	if err := h.store.SetKey(*req.Key); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.Success(w, "Key set successfully", map[string]string{
		"fingerprint": keystore.Fingerprint(*req.Key),
	})
}
