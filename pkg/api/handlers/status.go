package handlers

import "net/http"

// Status is one replica's self-reported view of itself and the cluster.
//
// PrimaryID is the id this replica currently believes is primary; before
// the first election it is the lowest configured id. LivePeers lists the
// peer ids with an open replication link, so a primary with an empty list
// is running unreplicated.
type Status struct {
	ReplicaID      int    `json:"replica_id"`
	Role           string `json:"role"`
	PrimaryID      int    `json:"primary_id"`
	LivePeers      []int  `json:"live_peers"`
	Connections    int32  `json:"connections"`
	Accounts       int    `json:"accounts"`
	LoggedIn       int    `json:"logged_in"`
	QueuedMessages int    `json:"queued_messages"`
}

// StatusProvider supplies point-in-time replica status snapshots.
//
// The provider is expected to be cheap and safe to call from concurrent
// HTTP handlers.
type StatusProvider interface {
	Status() Status
}

// StatusFunc adapts a plain function to the StatusProvider interface.
type StatusFunc func() Status

func (f StatusFunc) Status() Status { return f() }

// StatusHandler serves the replica status endpoint.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a new status handler.
//
// The provider parameter may be nil, in which case the endpoint returns
// 503 Service Unavailable.
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

// Snapshot handles GET /api/v1/status - full replica status.
//
// Returns the replica's current role, primary belief, live peer set and
// store counters. The snapshot is taken under the replica's locks, so the
// fields are mutually consistent.
func (h *StatusHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeFailure(w, http.StatusServiceUnavailable, "error", "status provider not initialized")
		return
	}

	writeResult(w, http.StatusOK, "ok", h.provider.Status())
}
