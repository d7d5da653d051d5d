// Package file serves listing, upload, preview and download of stored files.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/api/response"
	"github.com/guided-traffic/file-encryptor/internal/fault"
	"github.com/guided-traffic/file-encryptor/internal/preview"
	"github.com/guided-traffic/file-encryptor/internal/registry"
)

// multipartOverhead is the room left for boundaries and part headers on top
// of the upload limit
const multipartOverhead = 1 << 20

// uploadField is the multipart field carrying the file
const uploadField = "file"

// Catalog lists and resolves stored files
type Catalog interface {
	ListFiltered(ctx context.Context, f registry.Filter) []registry.FileRecord
	Resolve(rel string) (string, error)
}

// Ingester stores uploads
type Ingester interface {
	Ingest(ctx context.Context, originalName string, src io.Reader) (registry.FileRecord, error)
}

// Previewer builds preview payloads
type Previewer interface {
	Preview(ctx context.Context, rel string) (*preview.Payload, error)
	RawContent(ctx context.Context, rel string) (*preview.Content, error)
}

// Handler handles file endpoints
type Handler struct {
	catalog   Catalog
	ingester  Ingester
	previewer Previewer
	maxUpload int64
	writer    *response.Writer
	logger    *logrus.Entry
}

// NewHandler creates a new file handler
func NewHandler(catalog Catalog, ingester Ingester, previewer Previewer, maxUpload int64, logger *logrus.Entry) *Handler {
	return &Handler{
		catalog:   catalog,
		ingester:  ingester,
		previewer: previewer,
		maxUpload: maxUpload,
		writer:    response.NewWriter(logger),
		logger:    logger,
	}
}

// List handles GET /api/files?type=&q=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	files := h.catalog.ListFiltered(r.Context(), registry.Filter{
		Type:  query.Get("type"),
		Query: query.Get("q"),
	})

	h.writer.Success(w, fmt.Sprintf("%d files", len(files)), map[string]interface{}{
		"files": files,
	})
}

// Upload handles POST /api/upload-file with a multipart "file" field. The
// part is streamed to disk without buffering the whole request.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	reader, err := r.MultipartReader()
	if err != nil {
		h.writer.Error(w, r, fault.New(fault.InvalidRequest, "upload", "No file uploaded"))
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			h.writer.Error(w, r, fault.New(fault.InvalidRequest, "upload", "No file uploaded"))
			return
		}
		if err != nil {
			h.writer.Error(w, r, classifyBodyError(err))
			return
		}

		if part.FormName() != uploadField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		originalName := part.FileName()
		record, err := h.ingester.Ingest(r.Context(), originalName, part)
		_ = part.Close()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				err = classifyBodyError(err)
			}
			h.writer.Error(w, r, err)
			return
		}

		h.writer.Success(w, "File uploaded successfully", map[string]interface{}{
			"file":         record,
			"originalName": originalName,
		})
		return
	}
}

// Preview handles GET /api/file-preview/{path}
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	rel := mux.Vars(r)["path"]

	payload, err := h.previewer.Preview(r.Context(), rel)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	message := "Preview ready"
	if payload.Kind == preview.KindUnsupported {
		message = "Preview not available for this file type"
	}
	h.writer.Success(w, message, payload)
}

// Content handles GET /api/file-content/{path}
func (h *Handler) Content(w http.ResponseWriter, r *http.Request) {
	rel := mux.Vars(r)["path"]

	content, err := h.previewer.RawContent(r.Context(), rel)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}
	h.writer.Success(w, "Content loaded", content)
}

// Download handles GET /api/file-download/{path}. It serves the raw bytes
// for client side renderers such as PDF viewers.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	rel := mux.Vars(r)["path"]

	full, err := h.catalog.Resolve(rel)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	f, err := os.Open(full)
	if err != nil {
		h.writer.Error(w, r, fault.Errorf(fault.NotFound, "download", "file not found: %s", rel))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writer.Error(w, r, fault.Wrap(fault.Internal, "download", err))
		return
	}

	name := path.Base(rel)
	w.Header().Set("Content-Type", preview.MimeType(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func classifyBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fault.Errorf(fault.PayloadTooLarge, "upload", "request body exceeds %d bytes", tooLarge.Limit)
	}
	return fault.Wrap(fault.InvalidRequest, "upload", err)
}
