package models

// Error taxonomy codes. These are wire-level codes, not Go error types; the
// packages that raise them wrap them in their own typed errors.
const (
	// Input
	CodeValidationError  = "VALIDATION_ERROR"
	CodeLocationRequired = "LOCATION_REQUIRED"
	CodeUnauthorized     = "UNAUTHORIZED"

	// Dedup / state
	CodeStaleNoHeartbeat  = "STALE_RUNNING_NO_HEARTBEAT"
	CodeStaleTooOld       = "STALE_RUNNING_TOO_OLD"
	CodePreviousJobFailed = "PREVIOUS_JOB_FAILED"

	// Language
	CodeLangEnforcement = "LANG_ENFORCEMENT_VIOLATION"

	// Upstream
	CodeUpstreamTimeout = "UPSTREAM_TIMEOUT"
	CodeDNSFail         = "DNS_FAIL"
	CodeHTTPError       = "HTTP_ERROR"
	CodeNetworkError    = "NETWORK_ERROR"
	CodeRateLimited     = "RATE_LIMITED"

	// Pipeline
	CodePipelineTimeout     = "PIPELINE_TIMEOUT"
	CodeStageError          = "STAGE_ERROR"
	CodeProviderZeroResults = "PROVIDER_ZERO_RESULTS"

	// Infra
	CodeStoreUnavailable        = "STORE_UNAVAILABLE"
	CodeSessionStoreUnavailable = "SESSION_STORE_UNAVAILABLE"
)
