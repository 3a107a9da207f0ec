package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func primaryStatus() Status {
	return Status{
		ReplicaID:      1,
		Role:           "primary",
		PrimaryID:      1,
		LivePeers:      []int{2, 3},
		Connections:    4,
		Accounts:       2,
		LoggedIn:       1,
		QueuedMessages: 3,
	}
}

// probe runs one handler against a GET request and decodes the reply envelope.
func probe(t *testing.T, h http.HandlerFunc, path string) (int, Response) {
	t.Helper()

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("GET", path, nil))

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w.Code, resp
}

func TestLiveness_ReturnsOK(t *testing.T) {
	h := NewHealthHandler(nil)

	code, resp := probe(t, h.Liveness, "/health")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data should decode as an object")
	assert.Equal(t, "parrot", data["service"])
}

func TestReadiness_NoProvider_Returns503(t *testing.T) {
	h := NewHealthHandler(nil)

	code, resp := probe(t, h.Readiness, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "status provider not initialized", resp.Error)
}

func TestReadiness_Primary_ReturnsOK(t *testing.T) {
	h := NewHealthHandler(StatusFunc(primaryStatus))

	code, resp := probe(t, h.Readiness, "/health/ready")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data should decode as an object")
	assert.Equal(t, "primary", data["role"])
	assert.EqualValues(t, 1, data["primary_id"])
}

func TestReadiness_BackupWithLivePrimaryLink_ReturnsOK(t *testing.T) {
	h := NewHealthHandler(StatusFunc(func() Status {
		return Status{ReplicaID: 2, Role: "backup", PrimaryID: 1, LivePeers: []int{1, 3}}
	}))

	code, _ := probe(t, h.Readiness, "/health/ready")
	assert.Equal(t, http.StatusOK, code)
}

func TestReadiness_BackupWithDeadPrimaryLink_Returns503(t *testing.T) {
	h := NewHealthHandler(StatusFunc(func() Status {
		return Status{ReplicaID: 2, Role: "backup", PrimaryID: 1, LivePeers: []int{3}}
	}))

	code, resp := probe(t, h.Readiness, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "primary link down", resp.Error)
}
