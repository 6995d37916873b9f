package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// bootstrapHandler handles POST /auth/bootstrap. Creates a fresh anonymous
// session and sets the signed HttpOnly cookie.
func (s *Server) bootstrapHandler(c echo.Context) error {
	sessionID, cookie, err := s.auth.BootstrapSession(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	c.SetCookie(cookie)
	return c.JSON(http.StatusOK, &BootstrapResponse{OK: true, SessionID: sessionID})
}

// wsTicketHandler handles POST /auth/ws-ticket. Requires an authenticated
// caller; mints a one-time short-lived WebSocket ticket.
func (s *Server) wsTicketHandler(c echo.Context) error {
	identity, err := s.auth.ResolveIdentity(c.Request().Context(), c.Request())
	if err != nil {
		return mapServiceError(err)
	}
	ticket, ttl, err := s.auth.IssueWSTicket(c.Request().Context(), identity)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &TicketResponse{Ticket: ticket, TTLSeconds: int(ttl.Seconds())})
}
