package models

// Run states reported by the HTTP API.
const (
	RunStateRunning   = "running"
	RunStateCompleted = "completed"
	RunStateErrored   = "errored"
)

// RunResponse is the immediate response for POST /api/v1/runs.
type RunResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Scenarios int    `json:"scenarios"`
}

// RunStatusResponse is the response for GET /api/v1/runs/:id.
type RunStatusResponse struct {
	ID        string       `json:"id"`
	Status    string       `json:"status"`
	Scenarios int          `json:"scenarios"`
	Report    *Report      `json:"report,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// ValidateResponse is the response for POST /api/v1/validate.
type ValidateResponse struct {
	Valid     bool         `json:"valid"`
	Scenarios int          `json:"scenarios"`
	Steps     int          `json:"steps"`
	Problems  []string     `json:"problems,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// ErrorResponse wraps an API-level error.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string       `json:"status"` // "healthy" or "degraded"
	Uptime     string       `json:"uptime"`
	ActiveRuns int          `json:"active_runs"`
	MaxRuns    int          `json:"max_runs"`
	Contexts   ContextStats `json:"contexts"`
	Version    string       `json:"version"`
}

// ContextStats reports browsing context bookkeeping across runs.
type ContextStats struct {
	Created int64 `json:"created"`
	Closed  int64 `json:"closed"`
	Active  int64 `json:"active"`
}
