package api

// CancelResponse is returned by POST /matches/:id/cancel.
type CancelResponse struct {
	MatchID string `json:"matchId"`
	Message string `json:"message"`
}

// HealthCheck is one named probe inside the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}
