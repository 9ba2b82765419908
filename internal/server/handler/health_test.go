package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheckReportsServiceIdentity(t *testing.T) {
	h := NewHealthHandler("indexer", slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "bolindexer", body["service"])
	assert.Equal(t, "indexer", body["mode"])
	assert.GreaterOrEqual(t, body["uptime_seconds"], float64(0))
	assert.NotEmpty(t, body["timestamp"])
}
