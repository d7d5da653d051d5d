package file

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/file-encryptor/internal/config"
	"github.com/guided-traffic/file-encryptor/internal/preview"
	"github.com/guided-traffic/file-encryptor/internal/registry"
)

const testUploadLimit = 4096

type fixture struct {
	handler *Handler
	base    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	entry := logrus.NewEntry(logger)

	base := t.TempDir()
	reg, err := registry.FromConfig(&config.StorageConfig{
		BaseDir: base,
		Roots:   []config.RootConfig{{Name: "test"}, {Name: "uploads", Writable: true}},
	}, entry)
	require.NoError(t, err)

	ingestor, err := registry.NewIngestor(reg, "uploads", testUploadLimit, entry)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(base, "test"), 0755))

	return &fixture{
		handler: NewHandler(reg, ingestor, preview.NewResolver(reg, entry), testUploadLimit, entry),
		base:    base,
	}
}

func (f *fixture) put(t *testing.T, rel string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.base, filepath.FromSlash(rel)), data, 0644))
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func withPath(r *http.Request, rel string) *http.Request {
	return mux.SetURLVars(r, map[string]string{"path": rel})
}

func multipartBody(t *testing.T, field, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (f *fixture) upload(t *testing.T, field, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, name, data)
	req := httptest.NewRequest(http.MethodPost, "/api/upload-file", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	f.handler.Upload(rr, req)
	return rr
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.put(t, "test/a.txt", []byte("hello"))
	f.put(t, "test/b.png", []byte{0x89, 'P', 'N', 'G'})

	rr := httptest.NewRecorder()
	f.handler.List(rr, httptest.NewRequest(http.MethodGet, "/api/files", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	env := decode(t, rr)
	assert.True(t, env.Success)

	var payload struct {
		Files []registry.FileRecord `json:"files"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Len(t, payload.Files, 2)

	types := map[string]string{}
	for _, rec := range payload.Files {
		types[rec.Path] = rec.Type
	}
	assert.Equal(t, map[string]string{"test/a.txt": "txt", "test/b.png": "png"}, types)
}

func TestList_Filtered(t *testing.T) {
	f := newFixture(t)
	f.put(t, "test/a.txt", []byte("hello"))
	f.put(t, "test/b.png", []byte("png"))

	rr := httptest.NewRecorder()
	f.handler.List(rr, httptest.NewRequest(http.MethodGet, "/api/files?type=image", nil))

	assert.Contains(t, rr.Body.String(), "test/b.png")
	assert.NotContains(t, rr.Body.String(), "test/a.txt")
}

func TestList_EmptyIsArray(t *testing.T) {
	f := newFixture(t)

	rr := httptest.NewRecorder()
	f.handler.List(rr, httptest.NewRequest(http.MethodGet, "/api/files", nil))

	assert.Contains(t, rr.Body.String(), `"files":[]`)
}

func TestUpload_TwiceSameNameBothListed(t *testing.T) {
	f := newFixture(t)

	first := f.upload(t, "file", "report.txt", []byte("one"))
	second := f.upload(t, "file", "report.txt", []byte("two"))
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	var p1, p2 struct {
		File         registry.FileRecord `json:"file"`
		OriginalName string              `json:"originalName"`
	}
	require.NoError(t, json.Unmarshal(decode(t, first).Payload, &p1))
	require.NoError(t, json.Unmarshal(decode(t, second).Payload, &p2))

	assert.Equal(t, "report.txt", p1.OriginalName)
	assert.NotEqual(t, p1.File.Path, p2.File.Path)
	assert.True(t, strings.HasPrefix(p1.File.Path, "uploads/"))

	rr := httptest.NewRecorder()
	f.handler.List(rr, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	assert.Contains(t, rr.Body.String(), p1.File.Path)
	assert.Contains(t, rr.Body.String(), p2.File.Path)
}

func TestUpload_NoFile(t *testing.T) {
	f := newFixture(t)

	rr := f.upload(t, "other", "x.txt", []byte("data"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "upload: No file uploaded", decode(t, rr).Message)

	req := httptest.NewRequest(http.MethodPost, "/api/upload-file", strings.NewReader(`{"json":true}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	f.handler.Upload(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture(t)

	rr := f.upload(t, "file", "big.bin", make([]byte, testUploadLimit+1))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error":"PayloadTooLarge"`)

	entries, err := os.ReadDir(filepath.Join(f.base, "uploads"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	f.put(t, "test/b.png", []byte{0x89, 'P', 'N', 'G'})
	f.put(t, "test/unknown.xyz", []byte("?"))

	rr := httptest.NewRecorder()
	f.handler.Preview(rr, withPath(httptest.NewRequest(http.MethodGet, "/api/file-preview/test/b.png", nil), "test/b.png"))
	require.Equal(t, http.StatusOK, rr.Code)
	var p preview.Payload
	require.NoError(t, json.Unmarshal(decode(t, rr).Payload, &p))
	assert.Equal(t, preview.KindImage, p.Kind)
	assert.True(t, strings.HasPrefix(p.Data, "data:image/png;base64,"))

	rr = httptest.NewRecorder()
	f.handler.Preview(rr, withPath(httptest.NewRequest(http.MethodGet, "/api/file-preview/test/unknown.xyz", nil), "test/unknown.xyz"))
	require.Equal(t, http.StatusOK, rr.Code)
	env := decode(t, rr)
	assert.Equal(t, "Preview not available for this file type", env.Message)
	assert.Contains(t, string(env.Payload), `"kind":"unsupported"`)

	rr = httptest.NewRecorder()
	f.handler.Preview(rr, withPath(httptest.NewRequest(http.MethodGet, "/api/file-preview/test/nope.png", nil), "test/nope.png"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestContent(t *testing.T) {
	f := newFixture(t)
	f.put(t, "test/a.txt", []byte("hello"))

	rr := httptest.NewRecorder()
	f.handler.Content(rr, withPath(httptest.NewRequest(http.MethodGet, "/api/file-content/test/a.txt", nil), "test/a.txt"))

	require.Equal(t, http.StatusOK, rr.Code)
	var c preview.Content
	require.NoError(t, json.Unmarshal(decode(t, rr).Payload, &c))
	assert.Equal(t, "hello", c.Content)
	assert.False(t, c.IsBinary)
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	f.put(t, "test/paper.pdf", []byte("%PDF-1.7 body"))

	rr := httptest.NewRecorder()
	f.handler.Download(rr, withPath(httptest.NewRequest(http.MethodGet, "/api/file-download/test/paper.pdf", nil), "test/paper.pdf"))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "paper.pdf")
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 body", string(body))

	rr = httptest.NewRecorder()
	f.handler.Download(rr, withPath(httptest.NewRequest(http.MethodGet, "/api/file-download/../etc/passwd", nil), "../etc/passwd"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
