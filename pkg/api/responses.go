package api

import "github.com/shacharon/tavola/pkg/models"

// BootstrapResponse is returned by POST /auth/bootstrap.
type BootstrapResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"sessionId"`
}

// TicketResponse is returned by POST /auth/ws-ticket.
type TicketResponse struct {
	Ticket     string `json:"ticket"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// SearchAcceptedResponse is returned by POST /search.
type SearchAcceptedResponse struct {
	RequestID   string           `json:"requestId"`
	Status      models.JobStatus `json:"status"`
	Reused      bool             `json:"reused,omitempty"`
	ReuseReason string           `json:"reuseReason,omitempty"`
}

// JobSnapshotResponse is returned by GET /search/:requestId.
type JobSnapshotResponse struct {
	RequestID string                 `json:"requestId"`
	Status    models.JobStatus       `json:"status"`
	Progress  int                    `json:"progress"`
	Result    *models.SearchResponse `json:"result,omitempty"`
	Error     *models.ErrorRecord    `json:"error,omitempty"`
	Assist    *models.Assist         `json:"assist,omitempty"`
}

// HealthCheck is one named health probe result.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string                 `json:"status"`
	Ready  bool                   `json:"ready"`
	Checks map[string]HealthCheck `json:"checks"`
}
