package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/shacharon/tavola/pkg/auth"
	"github.com/shacharon/tavola/pkg/jobstore"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	if errors.Is(err, auth.ErrUnauthorized) {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	if errors.Is(err, auth.ErrSessionStoreUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
	}
	if errors.Is(err, jobstore.ErrStoreUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "job store unavailable")
	}
	if errors.Is(err, jobstore.ErrInvalidTransition) {
		return echo.NewHTTPError(http.StatusConflict, "job is not in a mutable state")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
