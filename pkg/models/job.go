// Package models defines the domain types shared across the search backend:
// jobs, search requests and responses, result items, and the error taxonomy.
package models

import "time"

// JobStatus is the lifecycle state of a search job.
type JobStatus string

// Job lifecycle states. Transitions only move forward along the DAG:
// PENDING → RUNNING → one of the DONE_* terminal states.
const (
	StatusPending     JobStatus = "PENDING"
	StatusRunning     JobStatus = "RUNNING"
	StatusDoneSuccess JobStatus = "DONE_SUCCESS"
	StatusDoneClarify JobStatus = "DONE_CLARIFY"
	StatusDoneStopped JobStatus = "DONE_STOPPED"
	StatusDoneFailed  JobStatus = "DONE_FAILED"
)

// Terminal reports whether the status is absorbing.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusDoneSuccess, StatusDoneClarify, StatusDoneStopped, StatusDoneFailed:
		return true
	}
	return false
}

// rank orders statuses along the lifecycle DAG for transition checks.
func (s JobStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	default:
		return 2
	}
}

// CanTransitionTo reports whether a forward transition from s to next is legal.
// Terminal states never transition; setting the same status twice is allowed
// (idempotent no-op at the store layer).
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Job is the server-side record of one logical search request.
type Job struct {
	RequestID      string `json:"request_id"`
	IdempotencyKey string `json:"idempotency_key"`

	OwnerSessionID string `json:"owner_session_id"`
	OwnerUserID    string `json:"owner_user_id,omitempty"`

	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Request SearchRequest `json:"request"`

	// Exactly one of Result / Error / Assist is set in a terminal state:
	// Result for DONE_SUCCESS, Error for DONE_FAILED, Assist for
	// DONE_CLARIFY and DONE_STOPPED.
	Result *SearchResponse `json:"result,omitempty"`
	Error  *ErrorRecord    `json:"error,omitempty"`
	Assist *Assist         `json:"assist,omitempty"`

	// FailureReason mirrors Error.FailureReason for quick access by the
	// assistant streamer without unpacking the error record.
	FailureReason string `json:"failure_reason,omitempty"`

	// Language fields captured from the pipeline's language context so the
	// assistant streamer can localize after the pipeline is gone.
	AssistantLanguage string `json:"assistant_language,omitempty"`
	UILanguage        string `json:"ui_language,omitempty"`
}

// ErrorRecord is the structured failure payload of a DONE_FAILED job.
type ErrorRecord struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	FailureReason string `json:"failure_reason,omitempty"`
	Retryable     bool   `json:"retryable"`
}

// ReuseDecision is the outcome of idempotent job creation.
type ReuseDecision struct {
	Reuse  bool   `json:"reuse"`
	Reason string `json:"reason"`
}

// Dedup decision reason codes (see the job store decision matrix).
const (
	ReuseCachedResultAvailable = "CACHED_RESULT_AVAILABLE"
	ReuseCachedStale           = "CACHED_STALE"
	ReusePreviousJobFailed     = "PREVIOUS_JOB_FAILED"
	ReuseRunningFresh          = "RUNNING_FRESH"
	ReuseStaleNoHeartbeat      = "STALE_RUNNING_NO_HEARTBEAT"
	ReuseStaleTooOld           = "STALE_RUNNING_TOO_OLD"
	ReuseStatusPending         = "STATUS_PENDING"
	ReuseStatusClarify         = "STATUS_CLARIFY"
	ReuseStatusStopped         = "STATUS_STOPPED"
)
