package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the envelope every status API reply travels in. Status is one
// of "healthy", "unhealthy", "ok" or "error". Data carries the payload on
// success; Error carries the message on failure.
type Response struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// writeResult sends a stamped envelope carrying a payload.
func writeResult(w http.ResponseWriter, code int, status string, data interface{}) {
	writeJSON(w, code, Response{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// writeFailure sends a stamped envelope carrying only an error message.
func writeFailure(w http.ResponseWriter, code int, status, errMsg string) {
	writeJSON(w, code, Response{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	})
}

// writeJSON sends v with the given HTTP status code. A hand-built error
// document is the fallback when encoding fails.
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}
