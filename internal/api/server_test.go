package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/file-encryptor/internal/api/handlers/health"
	"github.com/guided-traffic/file-encryptor/internal/api/middleware"
	"github.com/guided-traffic/file-encryptor/internal/config"
	"github.com/guided-traffic/file-encryptor/internal/keystore"
	"github.com/guided-traffic/file-encryptor/internal/orchestration"
	"github.com/guided-traffic/file-encryptor/internal/preview"
	"github.com/guided-traffic/file-encryptor/internal/registry"
)

const testSecret = "test-signing-secret"

// recordingExecutor answers every request with success and remembers it
type recordingExecutor struct {
	requests []orchestration.Request
}

func (e *recordingExecutor) Execute(ctx context.Context, req orchestration.Request) *orchestration.Result {
	e.requests = append(e.requests, req)
	return &orchestration.Result{
		ID:      "op",
		Kind:    req.Kind(),
		Outcome: orchestration.OutcomeSuccess,
		Output:  "done\n",
	}
}

type testServer struct {
	server   *Server
	keys     *keystore.Store
	executor *recordingExecutor
	base     string
}

func newTestServer(t *testing.T, auth bool) *testServer {
	t.Helper()
	logrus.SetLevel(logrus.ErrorLevel)
	entry := logrus.WithField("component", "test")

	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "test"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "test", "a.txt"), []byte("hello"), 0644))

	cfg := &config.Config{
		BindAddress:     "127.0.0.1:0",
		ShutdownTimeout: 1,
		Storage: config.StorageConfig{
			BaseDir:       base,
			Roots:         []config.RootConfig{{Name: "test"}, {Name: "uploads", Writable: true}},
			UploadRoot:    "uploads",
			MaxUploadSize: 1024,
		},
		Auth: config.AuthConfig{Enabled: auth, Secret: testSecret, Issuer: "file-encryptor"},
	}

	reg, err := registry.FromConfig(&cfg.Storage, entry)
	require.NoError(t, err)
	ingestor, err := registry.NewIngestor(reg, cfg.Storage.UploadRoot, cfg.Storage.MaxUploadSize, entry)
	require.NoError(t, err)
	keys, err := keystore.New("5", entry)
	require.NoError(t, err)

	exec := &recordingExecutor{}
	server, err := NewServer(cfg, Dependencies{
		Keys:      keys,
		Executor:  exec,
		Catalog:   reg,
		Ingester:  ingestor,
		Previewer: preview.NewResolver(reg, entry),
		Build:     health.BuildInfo{Version: "1.2.3", Commit: "abc", BuildTime: "now"},
	})
	require.NoError(t, err)

	return &testServer{server: server, keys: keys, executor: exec, base: base}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(&config.Config{}, Dependencies{})
	assert.Error(t, err)
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t, true)

	rr := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"healthy"`)

	rr = ts.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"version":"1.2.3"`)
}

func TestHealth_ShuttingDown(t *testing.T) {
	ts := newTestServer(t, false)
	ts.server.markShutdown()

	rr := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "shutting_down")
}

func TestRoutes(t *testing.T) {
	ts := newTestServer(t, false)

	rr := ts.do(httptest.NewRequest(http.MethodPost, "/api/set-key", strings.NewReader(`{"key":"abc"}`)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "abc", ts.keys.CurrentKey())

	rr = ts.do(httptest.NewRequest(http.MethodPost, "/api/encrypt-file", strings.NewReader(`{"filePath":"test/a.txt"}`)))
	assert.Equal(t, http.StatusOK, rr.Code)

	for _, path := range []string{"/api/create-test-files", "/api/encrypt-all", "/api/decrypt-all"} {
		rr = ts.do(httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	assert.Equal(t, []orchestration.Request{
		orchestration.EncryptOne{Path: "test/a.txt"},
		orchestration.CreateCorpus{},
		orchestration.EncryptAll{},
		orchestration.DecryptAll{},
	}, ts.executor.requests)

	rr = ts.do(httptest.NewRequest(http.MethodGet, "/api/file-content/test/a.txt", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var env struct {
		Payload preview.Content `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "hello", env.Payload.Content)

	rr = ts.do(httptest.NewRequest(http.MethodGet, "/api/file-preview/test/missing.txt", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(httptest.NewRequest(http.MethodGet, "/api/files?q=a.txt", nil))
	assert.Contains(t, rr.Body.String(), "test/a.txt")
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, false)

	rr := ts.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set(middleware.RequestIDHeader, "3f1c9a52-6a7e-4c55-9b53-0d4b2c1e8f10")
	rr = ts.do(req)
	assert.Equal(t, "3f1c9a52-6a7e-4c55-9b53-0d4b2c1e8f10", rr.Header().Get(middleware.RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodOptions, "/api/set-key", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := ts.do(req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, true)

	rr := ts.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error":"Unauthorized"`)

	wrongSecret, _, err := middleware.IssueToken([]byte("other"), "file-encryptor", "ui", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Authorization", "Bearer "+wrongSecret)
	assert.Equal(t, http.StatusUnauthorized, ts.do(req).Code)

	token, _, err := middleware.IssueToken([]byte(testSecret), "file-encryptor", "ui", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, ts.do(req).Code)
}

func TestRequestTrackingCounts(t *testing.T) {
	ts := newTestServer(t, false)

	ts.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))

	assert.Equal(t, int64(0), ts.server.activeRequests)
}

func TestStart_GracefulShutdown(t *testing.T) {
	ts := newTestServer(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	shuttingDown, _ := ts.server.shutdownStateHandler()
	assert.True(t, shuttingDown)
}
