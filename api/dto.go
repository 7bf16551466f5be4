package api

// AcquireRequest is the body of POST /acquire
type AcquireRequest struct {
	NodeLabels []string `json:"nodeLabels"`
}

// ErrorResponse is returned for all non-2xx responses
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status   string      `json:"status"` // ok, degraded
	Polling  bool        `json:"polling"`
	Cursor   string      `json:"cursor"`
	LastTick *TickStatus `json:"lastTick,omitempty"`
}

// TickStatus summarizes the most recent poll cycle
type TickStatus struct {
	ID                  string `json:"id"`
	OK                  bool   `json:"ok"`
	Rows                int    `json:"rows"`
	Published           int    `json:"published"`
	DurationMs          int64  `json:"durationMs"`
	Error               string `json:"error,omitempty"`
	ConsecutiveFailures int64  `json:"consecutiveFailures"`
}
