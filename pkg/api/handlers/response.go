package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/marmos91/pgstate/internal/logger"
)

// Response represents a standard health response wrapper.
//
//   - Status is "healthy" or "unhealthy"
//   - Timestamp is the response time
//   - Data contains the payload (optional)
//   - Error contains details when Status is "unhealthy" (optional)
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
//
// Encoding is done to a buffer first so an encoding failure can still be
// reported before headers are sent.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", logger.Err(err))
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func healthyResponse(data any) Response {
	return Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func unhealthyResponse(errMsg string) Response {
	return Response{
		Status:    "unhealthy",
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}

func unhealthyResponseWithData(data any) Response {
	return Response{
		Status:    "unhealthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
