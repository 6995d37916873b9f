package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/shacharon/tavola/pkg/models"
)

// maxQueryBytes bounds the free-text query length.
const maxQueryBytes = 2048

// submitSearchHandler handles POST /search. Creates or reuses a job per the
// idempotency matrix and launches the pipeline in the background for new
// jobs; returns 202 with the requestId immediately.
func (s *Server) submitSearchHandler(c echo.Context) error {
	identity, err := s.auth.ResolveIdentity(c.Request().Context(), c.Request())
	if err != nil {
		return mapServiceError(err)
	}

	var req models.SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if len(req.Query) > maxQueryBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "query too long")
	}

	key := idempotencyKey(&req, identity)
	job, decision, err := s.jobs.CreateOrGet(c.Request().Context(), req, key, identity.SessionID, identity.UserID)
	if err != nil {
		return mapServiceError(err)
	}

	if !decision.Reuse {
		// One pipeline goroutine per new job; the base context outlives this
		// HTTP request and is cancelled only on shutdown.
		go s.orch.Run(s.baseCtx, job)
	}

	return c.JSON(http.StatusAccepted, &SearchAcceptedResponse{
		RequestID:   job.RequestID,
		Status:      job.Status,
		Reused:      decision.Reuse,
		ReuseReason: decision.Reason,
	})
}

// getSearchHandler handles GET /search/:requestId.
func (s *Server) getSearchHandler(c echo.Context) error {
	identity, err := s.auth.ResolveIdentity(c.Request().Context(), c.Request())
	if err != nil {
		return mapServiceError(err)
	}

	requestID := c.PathParam("requestId")
	job, _ := s.jobs.GetJob(c.Request().Context(), requestID)
	if job == nil || !ownsJob(job, identity.SessionID, identity.UserID) {
		return echo.NewHTTPError(http.StatusNotFound, "request not found")
	}

	return c.JSON(http.StatusOK, &JobSnapshotResponse{
		RequestID: job.RequestID,
		Status:    job.Status,
		Progress:  job.Progress,
		Result:    job.Result,
		Error:     job.Error,
		Assist:    job.Assist,
	})
}

// ownsJob reports whether the caller may read the job.
func ownsJob(job *models.Job, sessionID, userID string) bool {
	if job.OwnerSessionID != "" && job.OwnerSessionID == sessionID {
		return true
	}
	if job.OwnerUserID != "" && job.OwnerUserID == userID {
		return true
	}
	return job.OwnerSessionID == "" && job.OwnerUserID == ""
}
