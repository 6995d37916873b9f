package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// assistantStreamHandler handles GET /stream/assistant/:requestId as SSE.
// Ownership is enforced best-effort inside the streamer; identity resolution
// failures still fail fast here.
func (s *Server) assistantStreamHandler(c echo.Context) error {
	identity, err := s.auth.ResolveIdentity(c.Request().Context(), c.Request())
	if err != nil {
		return mapServiceError(err)
	}

	requestID := c.PathParam("requestId")
	if requestID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requestId is required")
	}

	s.streamer.Stream(c.Request().Context(), c.Response(), requestID, identity)
	return nil
}
