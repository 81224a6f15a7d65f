// Package health provides shared types for the ops server's health responses.
package health

// Status values reported by the ops server.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Response is the liveness payload served on /health.
type Response struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		Service   string `json:"service"`
		StartedAt string `json:"started_at"`
		Uptime    string `json:"uptime"`
		UptimeSec int64  `json:"uptime_sec"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// Healthy reports whether the server answered with StatusHealthy.
func (r *Response) Healthy() bool {
	return r.Status == StatusHealthy
}

// ReadyResponse is the readiness payload served on /health/ready. Data is
// only set once the sidecar has initialized the component.
type ReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      *struct {
		Schema      string `json:"schema"`
		Table       string `json:"table"`
		Tenant      string `json:"tenant"`
		MaxAttempts int    `json:"max_attempts"`
	} `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Healthy reports whether the component is initialized.
func (r *ReadyResponse) Healthy() bool {
	return r.Status == StatusHealthy
}

// StoreResponse is the database probe payload served on /health/store.
type StoreResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      *struct {
		Name    string `json:"name"`
		Type    string `json:"type"`
		Status  string `json:"status"`
		Error   string `json:"error,omitempty"`
		Latency string `json:"latency,omitempty"`
	} `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Healthy reports whether PostgreSQL answered the probe.
func (r *StoreResponse) Healthy() bool {
	return r.Status == StatusHealthy
}

// Reason returns the most specific failure message available.
func (r *StoreResponse) Reason() string {
	if r.Data != nil && r.Data.Error != "" {
		return r.Data.Error
	}
	return r.Error
}
