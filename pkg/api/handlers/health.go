package handlers

import (
	"net/http"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the replica process running?
//   - Readiness probe: Can the replica point a client at a live primary?
type HealthHandler struct {
	provider StatusProvider
}

// NewHealthHandler creates a new health handler.
//
// The provider parameter may be nil, in which case readiness checks will
// return unhealthy status.
func NewHealthHandler(provider StatusProvider) *HealthHandler {
	return &HealthHandler{provider: provider}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the replica process is running. This endpoint is
// designed for Kubernetes liveness probes and should always succeed as long
// as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, "healthy", map[string]string{
		"service": "parrot",
	})
}

// Readiness handles GET /health/ready - readiness probe.
//
// A replica is ready when it is the primary itself, or when it still holds
// a live replication link to the id it believes is primary. A backup whose
// primary link is down is mid-failover: clients asking it for the primary
// would be pointed at a dead replica, so it reports unready until the next
// election settles.
//
// Returns 503 Service Unavailable if the replica is not ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeFailure(w, http.StatusServiceUnavailable, "unhealthy", "status provider not initialized")
		return
	}

	st := h.provider.Status()

	if st.Role != "primary" && !livePeer(st, st.PrimaryID) {
		writeFailure(w, http.StatusServiceUnavailable, "unhealthy", "primary link down")
		return
	}

	writeResult(w, http.StatusOK, "healthy", map[string]interface{}{
		"role":        st.Role,
		"primary_id":  st.PrimaryID,
		"live_peers":  st.LivePeers,
		"connections": st.Connections,
	})
}

func livePeer(st Status, id int) bool {
	for _, peer := range st.LivePeers {
		if peer == id {
			return true
		}
	}
	return false
}
