package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_NoProvider_Returns503(t *testing.T) {
	h := NewStatusHandler(nil)

	code, resp := probe(t, h.Snapshot, "/api/v1/status")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", resp.Status)
}

func TestStatus_ReturnsSnapshot(t *testing.T) {
	h := NewStatusHandler(StatusFunc(primaryStatus))
	w := httptest.NewRecorder()
	h.Snapshot(w, httptest.NewRequest("GET", "/api/v1/status", nil))

	require.Equal(t, http.StatusOK, w.Code)

	// Decode Data into the concrete Status type so every field is checked
	// after the trip through the envelope.
	var resp struct {
		Status string `json:"status"`
		Data   Status `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, primaryStatus(), resp.Data)
}
