package key

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/file-encryptor/internal/keystore"
)

func newTestHandler(t *testing.T) (*Handler, *keystore.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	entry := logrus.NewEntry(logger)

	store, err := keystore.New("5", entry)
	require.NoError(t, err)
	return NewHandler(store, entry), store
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/set-key", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.SetKey(rr, req)
	return rr
}

func TestSetKey_Success(t *testing.T) {
	h, store := newTestHandler(t)

	rr := post(h, `{"key":"new secret"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"success":true`)
	assert.Contains(t, rr.Body.String(), keystore.Fingerprint("new secret"))
	assert.NotContains(t, rr.Body.String(), "new secret")
	assert.Equal(t, "new secret", store.CurrentKey())
}

func TestSetKey_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind string
	}{
		{"empty key", `{"key":""}`, "InvalidKey"},
		{"missing key", `{}`, "InvalidKey"},
		{"malformed json", `{"key":`, "InvalidRequest"},
		{"wrong type", `{"key":5}`, "InvalidRequest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store := newTestHandler(t)

			rr := post(h, tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), `"error":"`+tt.kind+`"`)
			assert.Equal(t, "5", store.CurrentKey())
		})
	}
}
