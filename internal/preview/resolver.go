// Package preview turns stored files into payloads a browser can render.
package preview

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/fault"
	"github.com/guided-traffic/file-encryptor/internal/monitoring"
	"github.com/guided-traffic/file-encryptor/internal/registry"
)

// Kind is the preview family of a file
type Kind string

const (
	KindImage       Kind = "image"
	KindDocument    Kind = "document"
	KindPDF         Kind = "pdf"
	KindUnsupported Kind = "unsupported"
)

// BinaryPlaceholder replaces text-typed files that are not valid UTF-8
const BinaryPlaceholder = "[Binary file - cannot display as text]"

// Payload is what the client needs to render a preview. Data is a data URI
// for images and documents; PDFs are fetched separately by path.
type Payload struct {
	Kind     Kind   `json:"kind"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
	Path     string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Class    string `json:"class,omitempty"`
}

// Content is the raw text view of a file
type Content struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	IsBinary bool   `json:"isBinary"`
	Size     int64  `json:"size"`
}

// Files resolves root-qualified paths to files on disk
type Files interface {
	Resolve(rel string) (string, error)
}

type format struct {
	kind  Kind
	mime  string
	class string
}

var formats = map[string]format{
	"png":  {kind: KindImage, mime: "image/png"},
	"jpg":  {kind: KindImage, mime: "image/jpeg"},
	"jpeg": {kind: KindImage, mime: "image/jpeg"},
	"gif":  {kind: KindImage, mime: "image/gif"},
	"bmp":  {kind: KindImage, mime: "image/bmp"},
	"svg":  {kind: KindImage, mime: "image/svg+xml"},
	"webp": {kind: KindImage, mime: "image/webp"},

	"pdf": {kind: KindPDF, mime: "application/pdf"},

	"ppt":  {kind: KindDocument, mime: "application/vnd.ms-powerpoint", class: "ppt"},
	"pptx": {kind: KindDocument, mime: "application/vnd.openxmlformats-officedocument.presentationml.presentation", class: "ppt"},
	"doc":  {kind: KindDocument, mime: "application/msword", class: "doc"},
	"docx": {kind: KindDocument, mime: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", class: "doc"},
}

var textTypes = map[string]bool{
	"txt":  true,
	"json": true,
	"xml":  true,
	"csv":  true,
	"log":  true,
	"md":   true,
	"js":   true,
	"html": true,
	"css":  true,
}

// MimeType returns the content type used for a file name, falling back to
// application/octet-stream.
func MimeType(name string) string {
	if f, ok := formats[registry.InferType(name)]; ok {
		return f.mime
	}
	if textTypes[registry.InferType(name)] {
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// Resolver builds previews. It keeps no state between calls.
type Resolver struct {
	files  Files
	logger *logrus.Entry
}

// NewResolver creates a resolver over files
func NewResolver(files Files, logger *logrus.Entry) *Resolver {
	if logger == nil {
		logger = logrus.WithField("component", "preview-resolver")
	}
	return &Resolver{files: files, logger: logger}
}

// Preview dispatches on the extension of rel. The content is never sniffed.
func (r *Resolver) Preview(ctx context.Context, rel string) (*Payload, error) {
	full, err := r.files.Resolve(rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, statError(rel, err)
	}

	payload := &Payload{
		Path: rel,
		Name: path.Base(rel),
		Size: info.Size(),
	}

	f, ok := formats[registry.InferType(payload.Name)]
	if !ok {
		payload.Kind = KindUnsupported
		monitoring.RecordPreview(string(payload.Kind))
		return payload, nil
	}

	payload.Kind = f.kind
	payload.MimeType = f.mime
	payload.Class = f.class

	if f.kind == KindImage || f.kind == KindDocument {
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, statError(rel, err)
		}
		payload.Data = "data:" + f.mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	}

	r.logger.WithFields(logrus.Fields{
		"path": rel,
		"kind": payload.Kind,
		"size": payload.Size,
	}).Debug("Preview resolved")
	monitoring.RecordPreview(string(payload.Kind))

	return payload, nil
}

// RawContent returns the text of allow-listed text files. Anything else, or
// text that is not valid UTF-8, yields a placeholder with IsBinary set.
func (r *Resolver) RawContent(ctx context.Context, rel string) (*Content, error) {
	full, err := r.files.Resolve(rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, statError(rel, err)
	}

	content := &Content{Path: rel, Size: info.Size()}

	ext := registry.InferType(path.Base(rel))
	if !textTypes[ext] {
		content.IsBinary = true
		content.Content = binaryPlaceholder(ext, info.Size())
		monitoring.RecordPreview("binary")
		return content, nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, statError(rel, err)
	}

	if !utf8.Valid(data) {
		decodeErr := fault.Errorf(fault.DecodeError, "raw-content", "%s is not valid UTF-8", rel)
		r.logger.WithError(decodeErr).Debug("Serving binary placeholder")
		content.IsBinary = true
		content.Content = BinaryPlaceholder
		monitoring.RecordPreview("binary")
		return content, nil
	}

	content.Content = string(data)
	monitoring.RecordPreview("text")
	return content, nil
}

func binaryPlaceholder(ext string, size int64) string {
	label := "." + ext
	if ext == registry.UnknownType {
		label = registry.UnknownType
	}
	return fmt.Sprintf("[Binary file: %s - %.2f KB]", label, float64(size)/1024)
}

// statError maps a file vanishing after Resolve to NotFound
func statError(rel string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fault.Errorf(fault.NotFound, "preview", "file not found: %s", rel)
	}
	return fault.Wrap(fault.Internal, "preview", err)
}
