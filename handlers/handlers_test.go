package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestGetStreamsRejectsBadType(t *testing.T) {
	h := NewStreamHandler(nil)
	r := mux.NewRouter()
	r.HandleFunc("/stream/{type}/{id}", h.GetStreams)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/channel/tt1.json", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadsProgressRequiresURL(t *testing.T) {
	h := NewDownloadsHandler(nil)
	rec := httptest.NewRecorder()
	h.Progress(rec, httptest.NewRequest(http.MethodGet, "/downloads/progress", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
