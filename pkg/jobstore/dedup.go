package jobstore

import (
	"time"

	"github.com/shacharon/tavola/pkg/models"
)

// DecideReuse is the deduplication decision matrix. Pure function of the
// existing job's status and ages:
//
//	DONE_SUCCESS fresh          → reuse  CACHED_RESULT_AVAILABLE
//	DONE_SUCCESS aged           → new    CACHED_STALE
//	DONE_FAILED                 → new    PREVIOUS_JOB_FAILED
//	RUNNING both ages ≤ max     → reuse  RUNNING_FRESH
//	RUNNING updatedAge > max    → new    STALE_RUNNING_NO_HEARTBEAT
//	RUNNING age > max           → new    STALE_RUNNING_TOO_OLD
//	PENDING / CLARIFY / STOPPED → reuse  STATUS_<x>
//
// Staleness is strict: a job exactly at the max age is still fresh. When both
// the heartbeat and the creation age exceed the max, the missing heartbeat
// wins the tie-break.
func DecideReuse(status models.JobStatus, age, updatedAge, runningMaxAge, successFreshWindow time.Duration) models.ReuseDecision {
	switch status {
	case models.StatusDoneSuccess:
		if updatedAge <= successFreshWindow {
			return models.ReuseDecision{Reuse: true, Reason: models.ReuseCachedResultAvailable}
		}
		return models.ReuseDecision{Reuse: false, Reason: models.ReuseCachedStale}

	case models.StatusDoneFailed:
		return models.ReuseDecision{Reuse: false, Reason: models.ReusePreviousJobFailed}

	case models.StatusRunning:
		if updatedAge > runningMaxAge {
			return models.ReuseDecision{Reuse: false, Reason: models.ReuseStaleNoHeartbeat}
		}
		if age > runningMaxAge {
			return models.ReuseDecision{Reuse: false, Reason: models.ReuseStaleTooOld}
		}
		return models.ReuseDecision{Reuse: true, Reason: models.ReuseRunningFresh}

	case models.StatusPending:
		return models.ReuseDecision{Reuse: true, Reason: models.ReuseStatusPending}
	case models.StatusDoneClarify:
		return models.ReuseDecision{Reuse: true, Reason: models.ReuseStatusClarify}
	case models.StatusDoneStopped:
		return models.ReuseDecision{Reuse: true, Reason: models.ReuseStatusStopped}
	}
	return models.ReuseDecision{Reuse: false, Reason: models.ReuseCachedStale}
}
