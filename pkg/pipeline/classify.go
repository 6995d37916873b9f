package pipeline

import (
	"errors"
	"fmt"

	"github.com/shacharon/tavola/pkg/jobstore"
	"github.com/shacharon/tavola/pkg/langctx"
	"github.com/shacharon/tavola/pkg/models"
	"github.com/shacharon/tavola/pkg/places"
)

// stageError tags a failure with the stage that raised it.
type stageError struct {
	stage string
	err   error
	// pipelineTimeout is set when the overall pipeline deadline was already
	// crossed when the stage failed.
	pipelineTimeout bool
}

func (e *stageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.stage, e.err)
}

func (e *stageError) Unwrap() error { return e.err }

// zeroResultsError marks an empty provider result set.
type zeroResultsError struct{}

func (e *zeroResultsError) Error() string { return "provider returned zero results" }

// classify maps a pipeline failure to the wire-level error record.
func classify(err error) *models.ErrorRecord {
	stage := ""
	pipelineTimeout := false
	var serr *stageError
	if errors.As(err, &serr) {
		stage = serr.stage
		pipelineTimeout = serr.pipelineTimeout
	}

	rec := func(code, message string, retryable bool) *models.ErrorRecord {
		if stage != "" {
			message = fmt.Sprintf("%s (stage %s)", message, stage)
		}
		return &models.ErrorRecord{Code: code, Message: message, FailureReason: code, Retryable: retryable}
	}

	switch {
	case pipelineTimeout:
		return rec(models.CodePipelineTimeout, "search exceeded the pipeline deadline", true)

	case errors.Is(err, langctx.ErrImmutableViolation):
		return rec(models.CodeLangEnforcement, "language context immutability violated", false)

	case errors.As(err, new(*zeroResultsError)):
		return rec(models.CodeProviderZeroResults, "no places matched the search", true)

	case errors.Is(err, jobstore.ErrStoreUnavailable):
		return rec(models.CodeStoreUnavailable, "job store unavailable", true)
	}

	var perr *places.Error
	if errors.As(err, &perr) {
		code := perr.DomainCode()
		return rec(code, "places provider call failed", code != models.CodeValidationError)
	}

	return rec(models.CodeStageError, "pipeline stage failed", true)
}
